package bench

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/benchsuite/reproduce/internal/command"
	"github.com/benchsuite/reproduce/internal/console"
	"github.com/benchsuite/reproduce/internal/errors"
	"github.com/benchsuite/reproduce/internal/logging"
)

// CLIConfig describes how the host CLI is invoked.
type CLIConfig struct {
	Nix      command.NixShell
	RepoRoot string // nix-shell starts here
	CLIDir   string // cargo runs here
	Raw      bool   // send each input line to the suite verbatim (-r)
	Verbose  bool   // -v
}

// CLIRunner runs the benchmark CLI through cargo inside nix-shell. It
// satisfies simulator.BenchmarkRunner.
type CLIRunner struct {
	cfg     CLIConfig
	runner  command.Runner
	logger  *logging.Logger
	console *console.Console
}

// NewCLIRunner creates a CLIRunner executing through runner. logger and
// out may be nil.
func NewCLIRunner(cfg CLIConfig, runner command.Runner, logger *logging.Logger, out *console.Console) *CLIRunner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if out == nil {
		out = console.Plain(io.Discard)
	}
	return &CLIRunner{
		cfg:     cfg,
		runner:  runner,
		logger:  logger.WithPhase("bench"),
		console: out,
	}
}

// Command builds the CLI invocation for tty and files.
func (r *CLIRunner) Command(tty string, files []string) command.Command {
	args := []string{"cargo", "run", "--release", "--"}
	if r.cfg.Raw {
		args = append(args, "-r")
	}
	if r.cfg.Verbose {
		args = append(args, "-v")
	}
	args = append(args, "--tty", command.Quote(tty), "-f")
	for _, f := range files {
		args = append(args, command.Quote(f))
	}

	script := command.Chdir(r.cfg.CLIDir, strings.Join(args, " "))
	return r.cfg.Nix.Run(script, r.cfg.RepoRoot, nil)
}

// Run executes every benchmark file against tty in one CLI invocation. A
// non-zero exit is returned as *errors.BenchmarkError carrying the code.
func (r *CLIRunner) Run(ctx context.Context, tty string, files []string) error {
	if len(files) == 0 {
		return errors.NewBenchmarkError("nothing to run", errors.ErrNoBenchmarks).WithResourceID(tty)
	}

	cmd := r.Command(tty, files)
	r.console.Infof("Running %d benchmark(s) against %s", len(files), tty)
	r.console.Info(cmd.String())
	r.logger.Info("benchmark runner starting", "tty", tty, "files", len(files))

	start := time.Now()
	err := r.runner.Run(ctx, cmd)
	elapsed := time.Since(start)

	if err != nil {
		be := errors.NewBenchmarkError("benchmark runner failed", err).
			WithResourceID(tty).
			WithFiles(len(files))
		if code, ok := command.ExitCode(err); ok {
			be = be.WithExitCode(code)
		}
		r.logger.Error("benchmark runner failed", "error", err, "duration_ms", elapsed.Milliseconds())
		return be
	}

	r.logger.Info("benchmark runner finished", "duration_ms", elapsed.Milliseconds())
	return nil
}
