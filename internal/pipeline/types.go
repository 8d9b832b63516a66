package pipeline

import (
	"time"

	"github.com/spf13/afero"

	"github.com/benchsuite/reproduce/internal/command"
	"github.com/benchsuite/reproduce/internal/console"
	"github.com/benchsuite/reproduce/internal/logging"
)

// Stage is one unit of the build, gated by the existence of its artifacts.
type Stage struct {
	Name        string          // Unique within a pipeline
	Description string          // Human label for console notes; Name when empty
	Artifacts   []string        // Paths that must all exist for the stage to be satisfied
	Action      command.Command // Run when any artifact is missing
}

// Label returns the text used for the stage in console output.
func (s Stage) Label() string {
	if s.Description != "" {
		return s.Description
	}
	return s.Name
}

// Outcome describes what happened to a stage during a run.
type Outcome string

const (
	// OutcomeSkipped indicates every artifact was already present.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeExecuted indicates the action ran and exited 0.
	OutcomeExecuted Outcome = "executed"

	// OutcomeFailed indicates the action could not be run or exited non-zero.
	OutcomeFailed Outcome = "failed"

	// OutcomeNotRun indicates an earlier stage aborted the run.
	OutcomeNotRun Outcome = "not-run"
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}

// StageResult is the per-stage entry of a Report.
type StageResult struct {
	Name     string
	Outcome  Outcome
	Duration time.Duration // Zero unless the action ran
	Err      error         // Set when Outcome is OutcomeFailed
}

// Report summarizes a Run.
type Report struct {
	Stages  []StageResult
	Missing []string // Artifacts absent after the verification pass
}

// Count returns the number of stages with the given outcome.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, s := range r.Stages {
		if s.Outcome == o {
			n++
		}
	}
	return n
}

// result returns the entry for the named stage.
func (r *Report) result(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// Verified reports whether the verification pass found every artifact.
func (r *Report) Verified() bool {
	return len(r.Missing) == 0
}

// StageStatus is a dry-run evaluation of a single stage.
type StageStatus struct {
	Stage     Stage
	Satisfied bool
	Missing   []string
}

// executorConfig holds optional settings for the Executor.
type executorConfig struct {
	fs      afero.Fs
	logger  *logging.Logger
	console *console.Console
}
