package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/benchsuite/reproduce/internal/logging"
)

// Runner executes a Command synchronously.
type Runner interface {
	// Run starts cmd and waits for it. A non-zero exit is reported as
	// *ExitError; failure to start is returned as-is.
	Run(ctx context.Context, cmd Command) error
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Command Command
	Code    int
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Command.Executable(), e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode extracts the exit status from err. ok is false when err does not
// carry one (nil, start failures, cancellation).
func ExitCode(err error) (code int, ok bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

// Option configures an ExecRunner.
type Option func(*ExecRunner)

// withOutput sets where the child's stdout and stderr go.
func withOutput(stdout, stderr io.Writer) Option {
	return func(r *ExecRunner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithLogger sets the logger for launch and exit records.
func WithLogger(logger *logging.Logger) Option {
	return func(r *ExecRunner) {
		r.logger = logger
	}
}

// WithEnviron replaces os.Environ as the base environment.
func WithEnviron(environ func() []string) Option {
	return func(r *ExecRunner) {
		r.environ = environ
	}
}

// ExecRunner runs commands with os/exec, inheriting the process
// environment plus each command's overrides.
type ExecRunner struct {
	stdout  io.Writer
	stderr  io.Writer
	logger  *logging.Logger
	environ func() []string
}

// NewExecRunner creates an ExecRunner. By default the child shares this
// process's stdout and stderr.
func NewExecRunner(opts ...Option) *ExecRunner {
	r := &ExecRunner{
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		environ: os.Environ,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.NopLogger()
	}
	return r
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) error {
	if cmd.IsZero() {
		return errors.New("command has no executable")
	}

	c := exec.CommandContext(ctx, cmd.Executable(), cmd.Args()...)
	c.Dir = cmd.Dir()
	c.Env = cmd.MergedEnv(r.environ())
	c.Stdout = r.stdout
	c.Stderr = r.stderr

	start := time.Now()
	r.logger.Debug("command starting",
		"executable", cmd.Executable(),
		"args", cmd.Args(),
		"dir", cmd.Dir(),
		"env_overrides", cmd.EnvKeys(),
	)

	err := c.Run()
	elapsed := time.Since(start)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		r.logger.Debug("command finished", "executable", cmd.Executable(), "duration_ms", elapsed.Milliseconds())
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("%s interrupted: %w", cmd.Executable(), ctx.Err())
	case errors.As(err, &exitErr):
		r.logger.Warn("command exited non-zero",
			"executable", cmd.Executable(),
			"exit_code", exitErr.ExitCode(),
			"duration_ms", elapsed.Milliseconds(),
		)
		return &ExitError{Command: cmd, Code: exitErr.ExitCode(), Err: err}
	default:
		return fmt.Errorf("failed to start %s: %w", cmd.Executable(), err)
	}
}

var _ Runner = (*ExecRunner)(nil)
