package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"

	"github.com/benchsuite/reproduce/internal/command"
	"github.com/benchsuite/reproduce/internal/console"
	"github.com/benchsuite/reproduce/internal/errors"
	"github.com/benchsuite/reproduce/internal/logging"
)

// MissingArtifacts returns the artifacts of stage that do not exist on fs,
// in declaration order. A stat error other than not-exist counts as missing.
func MissingArtifacts(fs afero.Fs, stage Stage) []string {
	var missing []string
	for _, path := range stage.Artifacts {
		ok, err := afero.Exists(fs, path)
		if err != nil || !ok {
			missing = append(missing, path)
		}
	}
	return missing
}

// Satisfied reports whether every artifact of stage exists on fs.
func Satisfied(fs afero.Fs, stage Stage) bool {
	return len(MissingArtifacts(fs, stage)) == 0
}

// Validate checks that stages can be executed: names are set and unique,
// and every stage declares at least one artifact and an action.
func Validate(stages []Stage) error {
	seen := make(map[string]bool, len(stages))
	for i, s := range stages {
		switch {
		case s.Name == "":
			return errors.NewValidationError(fmt.Sprintf("stage %d has no name", i)).WithField("name")
		case seen[s.Name]:
			return errors.NewValidationError("duplicate stage name").WithField("name").WithValue(s.Name)
		case len(s.Artifacts) == 0:
			return errors.NewValidationError(fmt.Sprintf("stage %q declares no artifacts", s.Name)).WithField("artifacts")
		case s.Action.IsZero():
			return errors.NewValidationError(fmt.Sprintf("stage %q has no action", s.Name)).WithField("action")
		}
		seen[s.Name] = true
	}
	return nil
}

// Executor runs build stages in order, skipping satisfied ones.
type Executor struct {
	runner  command.Runner
	fs      afero.Fs
	logger  *logging.Logger
	console *console.Console
}

// NewExecutor creates an Executor running actions through runner.
func NewExecutor(runner command.Runner, opts ...Option) (*Executor, error) {
	if runner == nil {
		return nil, errors.New("pipeline: runner is required")
	}

	cfg := &executorConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.fs == nil {
		cfg.fs = afero.NewOsFs()
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	if cfg.console == nil {
		cfg.console = console.Plain(io.Discard)
	}

	return &Executor{
		runner:  runner,
		fs:      cfg.fs,
		logger:  cfg.logger.WithPhase("build"),
		console: cfg.console,
	}, nil
}

// Plan evaluates every stage without running anything.
func (e *Executor) Plan(stages []Stage) []StageStatus {
	statuses := make([]StageStatus, 0, len(stages))
	for _, s := range stages {
		missing := MissingArtifacts(e.fs, s)
		statuses = append(statuses, StageStatus{
			Stage:     s,
			Satisfied: len(missing) == 0,
			Missing:   missing,
		})
	}
	return statuses
}

// Run executes unsatisfied stages in order, then verifies every artifact.
//
// A failing action aborts immediately with a *errors.StageError; stages
// after it are reported as OutcomeNotRun and verification is skipped. When
// all actions succeed but artifacts are still missing, the returned error
// joins one *errors.ArtifactError per missing path. The report is non-nil
// whenever the stages were valid.
func (e *Executor) Run(ctx context.Context, stages []Stage) (*Report, error) {
	if err := Validate(stages); err != nil {
		return nil, err
	}

	report := &Report{Stages: make([]StageResult, 0, len(stages))}

	for i, stage := range stages {
		result, err := e.runStage(ctx, stage)
		report.Stages = append(report.Stages, result)
		if err != nil {
			for _, rest := range stages[i+1:] {
				report.Stages = append(report.Stages, StageResult{Name: rest.Name, Outcome: OutcomeNotRun})
			}
			e.console.Error(fmt.Sprintf("Error: %v", err))
			return report, err
		}
	}

	if err := e.verify(stages, report); err != nil {
		e.console.Error("Aborting due to previous errors")
		return report, err
	}

	e.logger.Info("pipeline complete",
		"executed", report.Count(OutcomeExecuted),
		"skipped", report.Count(OutcomeSkipped),
	)
	return report, nil
}

// Verify re-checks every artifact without running anything. It returns the
// same joined error as the verification pass of Run.
func (e *Executor) Verify(stages []Stage) error {
	return e.verify(stages, &Report{})
}

func (e *Executor) runStage(ctx context.Context, stage Stage) (StageResult, error) {
	log := e.logger.WithStage(stage.Name)
	result := StageResult{Name: stage.Name}

	if err := ctx.Err(); err != nil {
		result.Outcome = OutcomeFailed
		result.Err = errors.NewStageError("canceled before start", err).WithStage(stage.Name)
		return result, result.Err
	}

	missing := MissingArtifacts(e.fs, stage)
	if len(missing) == 0 {
		log.Info("stage satisfied, skipping")
		e.console.Infof("%s detected, skipping", stage.Label())
		result.Outcome = OutcomeSkipped
		return result, nil
	}

	log.Info("stage starting", "missing", missing)
	e.console.Info(stage.Action.String())

	start := time.Now()
	err := e.runner.Run(ctx, stage.Action)
	result.Duration = time.Since(start)

	if err != nil {
		stageErr := errors.NewStageError("action failed", err).WithStage(stage.Name)
		if code, ok := command.ExitCode(err); ok {
			stageErr = stageErr.WithExitCode(code)
		}
		log.Error("stage failed", "error", err, "duration_ms", result.Duration.Milliseconds())
		result.Outcome = OutcomeFailed
		result.Err = stageErr
		return result, stageErr
	}

	log.Info("stage finished", "duration_ms", result.Duration.Milliseconds())
	result.Outcome = OutcomeExecuted
	return result, nil
}

func (e *Executor) verify(stages []Stage, report *Report) error {
	var errs []error
	seen := make(map[string]bool)

	for _, stage := range stages {
		for _, path := range MissingArtifacts(e.fs, stage) {
			// Stages may share artifacts; report each path once.
			if seen[path] {
				continue
			}
			seen[path] = true

			report.Missing = append(report.Missing, path)
			errs = append(errs, errors.NewArtifactError(path).WithStage(stage.Name))
			e.logger.WithStage(stage.Name).Error("artifact missing after build", "path", path)
			e.console.Errorf("Error: %s not found at %s", stage.Label(), path)
		}
	}

	return errors.Join(errs...)
}
