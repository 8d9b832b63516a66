package simulator

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"

	"github.com/benchsuite/reproduce/internal/command"
	"github.com/benchsuite/reproduce/internal/errors"
	"github.com/benchsuite/reproduce/internal/logging"
)

// State is a step of the session lifecycle.
type State string

const (
	// StateCreated indicates the process has not been started.
	StateCreated State = "created"

	// StateSpawned indicates the process is running and nothing has been read.
	StateSpawned State = "spawned"

	// StateDiscovering indicates output is being scanned for the marker.
	StateDiscovering State = "discovering"

	// StateReady indicates the resource id is known.
	StateReady State = "ready"

	// StateRunning indicates the benchmark runner is executing.
	StateRunning State = "running_benchmarks"

	// StateDone indicates the benchmark runner succeeded.
	StateDone State = "done"

	// StateFailed indicates spawn, discovery or the benchmark run failed.
	StateFailed State = "failed"

	// StateTornDown indicates the process group has been signaled and reaped.
	StateTornDown State = "torn_down"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal returns true if no further work will happen in this state
// other than teardown.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed || s == StateTornDown
}

// BenchmarkRunner runs the benchmark files against the discovered resource.
type BenchmarkRunner interface {
	Run(ctx context.Context, resourceID string, files []string) error
}

// DefaultTeardownGrace is how long Teardown waits for the process to exit
// after the interrupt.
const DefaultTeardownGrace = 30 * time.Second

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the session's logger.
func WithSessionLogger(logger *logging.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithTeardownGrace sets how long Teardown waits for the process to exit.
func WithTeardownGrace(d time.Duration) SessionOption {
	return func(s *Session) {
		s.grace = d
	}
}

// WithTeardownSignal overrides the interrupt sent at teardown.
func WithTeardownSignal(sig os.Signal) SessionOption {
	return func(s *Session) {
		s.signal = sig
	}
}

// Session is one spawned simulator. It owns the process and its output
// stream exclusively and is not meant to be shared.
type Session struct {
	proc   Process
	marker *Marker
	logger *logging.Logger
	grace  time.Duration
	signal os.Signal

	mu         sync.Mutex
	state      State
	resourceID string

	bg           conc.WaitGroup
	teardownOnce sync.Once
	teardownErr  error
}

// NewSession wraps proc. The process is not started until Spawn.
func NewSession(proc Process, marker *Marker, opts ...SessionOption) *Session {
	s := &Session{
		proc:   proc,
		marker: marker,
		grace:  DefaultTeardownGrace,
		signal: os.Interrupt,
		state:  StateCreated,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NopLogger()
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ResourceID returns the discovered resource id, if any.
func (s *Session) ResourceID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resourceID, s.resourceID != ""
}

// PID returns the process group id, or 0 before a successful Spawn.
func (s *Session) PID() int {
	return s.proc.PID()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()
	s.logger.Debug("session state changed", "from", prev.String(), "to", state.String())
}

// expect moves the session to next if it is currently in want.
func (s *Session) expect(want, next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTornDown {
		return errors.ErrSessionTornDown
	}
	if s.state != want {
		return fmt.Errorf("session is %s, want %s", s.state, want)
	}
	s.state = next
	return nil
}

// Spawn starts the process as a new process group leader.
func (s *Session) Spawn(ctx context.Context) error {
	if err := s.expect(StateCreated, StateSpawned); err != nil {
		return err
	}

	if err := s.proc.Start(ctx); err != nil {
		s.setState(StateFailed)
		s.logger.Error("simulator spawn failed", "error", err)
		return errors.NewSimulatorError("failed to spawn simulator", fmt.Errorf("%w: %w", errors.ErrSpawnFailed, err))
	}

	s.logger.Info("simulator spawned", "pid", s.proc.PID())
	return nil
}

type readResult struct {
	line string
	err  error
}

// Discover reads output lines until one matches the startup marker and
// returns its captured resource id. Lines before the marker are discarded;
// nothing after it is read.
//
// A stream that ends first fails with errors.ErrDiscoveryStreamExhausted. A
// positive timeout bounds the whole scan and fails with a
// *errors.TimeoutError wrapping errors.ErrDiscoveryTimeout.
func (s *Session) Discover(ctx context.Context, timeout time.Duration) (string, error) {
	if err := s.expect(StateSpawned, StateDiscovering); err != nil {
		return "", err
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	pid := s.proc.PID()
	discarded := 0

	for {
		// One read at a time, so no line past the marker is consumed.
		results := make(chan readResult, 1)
		s.bg.Go(func() {
			line, err := s.proc.ReadLine()
			results <- readResult{line: line, err: err}
		})

		select {
		case <-ctx.Done():
			s.setState(StateFailed)
			return "", errors.NewSimulatorError("discovery canceled", ctx.Err()).WithPID(pid)

		case <-deadline:
			s.setState(StateFailed)
			s.logger.Error("startup marker not seen before deadline",
				"timeout", timeout.String(), "lines_discarded", discarded)
			return "", errors.NewTimeoutError("waiting for startup marker", timeout).
				WithCause(errors.ErrDiscoveryTimeout).
				WithRetryable(false)

		case r := <-results:
			if r.err != nil {
				s.setState(StateFailed)
				s.logger.Error("simulator output ended before startup marker",
					"error", r.err, "lines_discarded", discarded)
				cause := errors.ErrDiscoveryStreamExhausted
				if r.err != io.EOF {
					cause = fmt.Errorf("%w: %w", errors.ErrDiscoveryStreamExhausted, r.err)
				}
				return "", errors.NewSimulatorError("discovery failed", cause).WithPID(pid)
			}

			id, ok := s.marker.Match(r.line)
			if !ok {
				discarded++
				s.logger.Debug("simulator output", "line", r.line)
				continue
			}

			s.mu.Lock()
			s.resourceID = id
			s.state = StateReady
			s.mu.Unlock()
			s.logger.Info("startup marker matched", "resource_id", id, "lines_discarded", discarded)
			return id, nil
		}
	}
}

// Drain copies the rest of the output stream to w in the background, one
// line per write, until the stream ends. Call it at most once, after a
// successful Discover; the lines are forwarded, never matched.
func (s *Session) Drain(w io.Writer) error {
	if st := s.State(); st != StateReady {
		return fmt.Errorf("cannot drain output in state %s", st)
	}

	s.bg.Go(func() {
		for {
			line, err := s.proc.ReadLine()
			if err != nil {
				return
			}
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				s.logger.Warn("dropping simulator output", "error", err)
				return
			}
		}
	})
	return nil
}

// Probe waits until the discovered resource exists on fs, retrying with
// exponential backoff for at most timeout.
func (s *Session) Probe(ctx context.Context, fs afero.Fs, timeout time.Duration) error {
	id, ok := s.ResourceID()
	if !ok {
		return errors.New("probe before discovery")
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = timeout

	attempts := 0
	op := func() error {
		attempts++
		exists, err := afero.Exists(fs, id)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%s does not exist yet", id)
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		s.logger.Error("resource never appeared", "resource_id", id, "attempts", attempts)
		return errors.NewTimeoutError("waiting for "+id, timeout).WithCause(err)
	}
	s.logger.Debug("resource present", "resource_id", id, "attempts", attempts)
	return nil
}

// RunBenchmarks hands the resource id and files to runner and waits for it.
// A runner failure is returned as *errors.BenchmarkError.
func (s *Session) RunBenchmarks(ctx context.Context, runner BenchmarkRunner, files []string) error {
	if err := s.expect(StateReady, StateRunning); err != nil {
		return err
	}
	id, _ := s.ResourceID()

	start := time.Now()
	err := runner.Run(ctx, id, files)
	elapsed := time.Since(start)

	if err != nil {
		s.setState(StateFailed)
		s.logger.Error("benchmark run failed", "error", err, "duration_ms", elapsed.Milliseconds())

		var benchErr *errors.BenchmarkError
		if errors.As(err, &benchErr) {
			return err
		}
		be := errors.NewBenchmarkError("benchmark runner failed", err).
			WithResourceID(id).
			WithFiles(len(files))
		if code, ok := command.ExitCode(err); ok {
			be = be.WithExitCode(code)
		}
		return be
	}

	s.setState(StateDone)
	s.logger.Info("benchmark run finished", "files", len(files), "duration_ms", elapsed.Milliseconds())
	return nil
}

// Teardown interrupts the process group and reaps the process, waiting at
// most the grace period for each. It never escalates to a kill. Only the
// first call does anything; later calls return the first result.
func (s *Session) Teardown() error {
	s.teardownOnce.Do(func() {
		defer s.setState(StateTornDown)

		pid := s.proc.PID()
		if pid == 0 {
			return
		}

		s.logger.Info("stopping simulator", "pid", pid, "signal", s.signal.String())
		if err := s.proc.Signal(s.signal); err != nil {
			s.teardownErr = errors.NewSimulatorError("failed to signal simulator", err).WithPID(pid)
			s.logger.Error("teardown signal failed", "pid", pid, "error", err)
		}

		var waitErr error
		if !waitTimeout(func() { waitErr = s.proc.Wait() }, s.grace) {
			s.logger.Warn("simulator still running after grace period", "pid", pid, "grace", s.grace.String())
		} else {
			s.logger.Debug("simulator exited", "pid", pid, "status", fmt.Sprint(waitErr))
		}

		if c, ok := s.proc.(io.Closer); ok {
			_ = c.Close()
		}
		if !waitTimeout(s.bg.Wait, s.grace) {
			s.logger.Warn("output readers still blocked after teardown", "pid", pid)
		}
	})
	return s.teardownErr
}

// waitTimeout runs wait and reports whether it returned within d.
func waitTimeout(wait func(), d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
