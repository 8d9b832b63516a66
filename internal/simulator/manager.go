package simulator

import (
	"context"
	"io"
	"time"

	"github.com/spf13/afero"

	"github.com/benchsuite/reproduce/internal/command"
	"github.com/benchsuite/reproduce/internal/console"
	"github.com/benchsuite/reproduce/internal/errors"
	"github.com/benchsuite/reproduce/internal/logging"
)

// Config describes how to launch and supervise the simulator.
type Config struct {
	Command          command.Command // Launches the simulator
	PTY              bool            // Capture stdout through a pseudo-terminal
	Marker           *Marker         // Startup marker; DefaultStartupPattern when nil
	DiscoveryTimeout time.Duration   // Zero waits forever
	ProbeDevice      bool            // Wait for the resource to exist before benchmarking
	ProbeTimeout     time.Duration
	TeardownGrace    time.Duration
	OutputLog        string // Post-discovery output goes here when set
	OutputRotation   logging.RotationConfig
}

// Result describes a finished session.
type Result struct {
	ResourceID string
	PID        int
	Files      int
	Duration   time.Duration
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithProcessFactory replaces the ExecProcess used for each session.
func WithProcessFactory(newProcess func(Config) Process) ManagerOption {
	return func(m *Manager) {
		m.newProcess = newProcess
	}
}

// WithFs sets the filesystem used by the readiness probe.
func WithFs(fs afero.Fs) ManagerOption {
	return func(m *Manager) {
		m.fs = fs
	}
}

// WithLogger sets the manager's logger.
func WithLogger(logger *logging.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithConsole sets where operator-facing progress lines go.
func WithConsole(c *console.Console) ManagerOption {
	return func(m *Manager) {
		m.console = c
	}
}

// Manager drives one simulator session from spawn to teardown.
type Manager struct {
	cfg        Config
	runner     BenchmarkRunner
	newProcess func(Config) Process
	fs         afero.Fs
	logger     *logging.Logger
	console    *console.Console
}

// NewManager creates a Manager that hands the discovered resource to runner.
func NewManager(cfg Config, runner BenchmarkRunner, opts ...ManagerOption) (*Manager, error) {
	if runner == nil {
		return nil, errors.New("simulator: benchmark runner is required")
	}
	if cfg.Marker == nil {
		cfg.Marker = MustMarker(DefaultStartupPattern)
	}
	if cfg.TeardownGrace <= 0 {
		cfg.TeardownGrace = DefaultTeardownGrace
	}

	m := &Manager{
		cfg:    cfg,
		runner: runner,
		newProcess: func(c Config) Process {
			return NewExecProcess(ExecConfig{Command: c.Command, PTY: c.PTY})
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.fs == nil {
		m.fs = afero.NewOsFs()
	}
	if m.logger == nil {
		m.logger = logging.NopLogger()
	}
	if m.console == nil {
		m.console = console.Plain(io.Discard)
	}
	m.logger = m.logger.WithPhase("simulator")
	return m, nil
}

// Run spawns the simulator, discovers its resource id, runs the benchmarks
// against it and tears the process group down. Teardown happens exactly
// once on every path that got past spawn, after any benchmark attempt.
func (m *Manager) Run(ctx context.Context, files []string) (res *Result, err error) {
	start := time.Now()
	session := NewSession(m.newProcess(m.cfg), m.cfg.Marker,
		WithSessionLogger(m.logger),
		WithTeardownGrace(m.cfg.TeardownGrace),
	)

	m.console.Info("Starting suite in background")
	if err := session.Spawn(ctx); err != nil {
		m.console.Errorf("Error: %v", err)
		return nil, err
	}

	res = &Result{PID: session.PID(), Files: len(files)}
	var closeLog func()

	defer func() {
		m.console.Info("Stopping suite")
		if terr := session.Teardown(); terr != nil {
			m.console.Errorf("Error: %v", terr)
			if err == nil {
				err = terr
			}
		}
		if closeLog != nil {
			closeLog()
		}
		res.Duration = time.Since(start)
	}()

	id, err := session.Discover(ctx, m.cfg.DiscoveryTimeout)
	if err != nil {
		m.console.Errorf("Error: %v", err)
		return res, err
	}
	res.ResourceID = id
	m.console.Infof("Simulator ready on %s", id)

	closeLog, err = m.drain(session)
	if err != nil {
		m.console.Errorf("Error: %v", err)
		return res, err
	}

	if m.cfg.ProbeDevice {
		if err := session.Probe(ctx, m.fs, m.cfg.ProbeTimeout); err != nil {
			m.console.Errorf("Error: %v", err)
			return res, err
		}
	}

	m.console.Infof("Running %d benchmark file(s)", len(files))
	if err := session.RunBenchmarks(ctx, m.runner, files); err != nil {
		m.console.Errorf("Error: %v", err)
		return res, err
	}
	return res, nil
}

// drain keeps reading the output stream after discovery so the simulator
// never blocks on a full pipe. Lines go to the output log when one is
// configured and opens, otherwise they are discarded. The returned func
// closes the log.
func (m *Manager) drain(session *Session) (func(), error) {
	var w io.Writer = io.Discard
	closeLog := func() {}

	if path := m.cfg.OutputLog; path != "" {
		rot := m.cfg.OutputRotation
		if rot.MaxSizeMB <= 0 {
			rot = logging.DefaultRotationConfig()
		}
		rw, err := logging.NewRotatingWriter(path, rot)
		if err != nil {
			m.logger.Warn("simulator output will not be logged", "path", path, "error", err)
		} else {
			m.logger.Debug("forwarding simulator output", "path", path)
			w = rw
			closeLog = func() { _ = rw.Close() }
		}
	}

	if err := session.Drain(w); err != nil {
		closeLog()
		return nil, err
	}
	return closeLog, nil
}
