package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/benchsuite/reproduce/internal/bench"
	"github.com/benchsuite/reproduce/internal/command"
	"github.com/benchsuite/reproduce/internal/config"
	"github.com/benchsuite/reproduce/internal/console"
	"github.com/benchsuite/reproduce/internal/errors"
	"github.com/benchsuite/reproduce/internal/logging"
	"github.com/benchsuite/reproduce/internal/pipeline"
	"github.com/benchsuite/reproduce/internal/runlock"
	"github.com/benchsuite/reproduce/internal/simulator"
	"github.com/benchsuite/reproduce/internal/stages"
)

// runtime carries what every command needs once the configuration is
// loaded.
type runtime struct {
	cfg      *config.Config
	repoRoot string
	layout   stages.Layout
	fs       afero.Fs
	logger   *logging.Logger
	console  *console.Console

	// Both default to real processes when nil.
	runner     command.Runner
	newProcess func(simulator.Config) simulator.Process
}

func loadRuntime(name string) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	repoRoot, err := cfg.Paths.ResolveRepoRoot()
	if err != nil {
		return nil, errors.Wrap(err, "resolving repository root")
	}

	rt := &runtime{
		cfg:      cfg,
		repoRoot: repoRoot,
		layout:   cfg.Paths.Layout(repoRoot),
		fs:       afero.NewOsFs(),
		logger:   logging.NopLogger(),
		console:  console.Stderr(),
	}

	if cfg.Logging.Enabled {
		logger, err := logging.NewLogger(cfg.LogDir(repoRoot), cfg.Logging.Level, cfg.Logging.Rotation())
		if err != nil {
			rt.console.Warnf("Debug log disabled: %v", err)
		} else {
			rt.logger = logger.With("command", name)
		}
	}

	rt.logger.Info("configuration loaded", "repo_root", repoRoot, "opentitan_dir", rt.layout.OpenTitanDir)
	return rt, nil
}

func (rt *runtime) close() {
	_ = rt.logger.Close()
}

// lock takes the run lock in the work directory.
func (rt *runtime) lock(name string) (*runlock.Lock, error) {
	lock, err := runlock.Acquire(rt.cfg.Paths.ResolveWorkDir(rt.repoRoot), name, rt.logger)
	if err != nil {
		rt.console.Errorf("Error: %v", err)
		return nil, errors.Reported(err)
	}
	rt.logger.Debug("run lock taken", "path", lock.Path())
	return lock, nil
}

// nixShell locates nix-shell.
func (rt *runtime) nixShell() (command.NixShell, error) {
	nix, err := command.FindNixShell(rt.cfg.Build.NixShell)
	if err != nil {
		rt.console.Error("Error: could not find nix-shell")
		return command.NixShell{}, errors.Reported(err)
	}
	return nix, nil
}

// displayNixShell is nixShell for commands that only print stages.
func (rt *runtime) displayNixShell() command.NixShell {
	nix, err := command.FindNixShell(rt.cfg.Build.NixShell)
	if err != nil {
		name := rt.cfg.Build.NixShell
		if name == "" {
			name = "nix-shell"
		}
		return command.NixShell{Path: name}
	}
	return nix
}

// buildStages returns the manifest stages when a manifest is configured,
// otherwise the built-in OpenTitan stages.
func (rt *runtime) buildStages(nix command.NixShell) ([]pipeline.Stage, error) {
	if path := rt.cfg.ResolveManifest(rt.repoRoot); path != "" {
		m, err := stages.LoadManifest(path)
		if err != nil {
			return nil, err
		}
		rt.logger.Info("stages loaded from manifest", "path", path, "stages", len(m.Stages))
		return m.Build(rt.layout, nix)
	}
	return stages.Default(rt.layout, nix, rt.cfg.Build.OpenTitanRepo, rt.cfg.Build.CargoBuilds), nil
}

func (rt *runtime) commandRunner() command.Runner {
	if rt.runner != nil {
		return rt.runner
	}
	return command.NewExecRunner(command.WithLogger(rt.logger))
}

func (rt *runtime) executor() (*pipeline.Executor, error) {
	return pipeline.NewExecutor(rt.commandRunner(),
		pipeline.WithFs(rt.fs),
		pipeline.WithLogger(rt.logger),
		pipeline.WithConsole(rt.console),
	)
}

// benchmarkFiles returns args made absolute, or every benchmark below the
// benchmarks directory when args is empty.
func (rt *runtime) benchmarkFiles(args []string) ([]string, error) {
	if len(args) > 0 {
		files := make([]string, 0, len(args))
		for _, arg := range args {
			abs, err := filepath.Abs(arg)
			if err != nil {
				return nil, err
			}
			if ok, _ := afero.Exists(rt.fs, abs); !ok {
				return nil, errors.NewNotFoundError("benchmark file", abs)
			}
			files = append(files, abs)
		}
		return files, nil
	}

	m, err := bench.NewMatcher(rt.cfg.Bench.Pattern)
	if err != nil {
		return nil, err
	}
	files, err := bench.Discover(rt.fs, rt.layout.BenchmarksDir, m)
	if err != nil {
		return nil, err
	}
	rt.logger.Info("benchmarks discovered", "dir", rt.layout.BenchmarksDir, "pattern", m.String(), "count", len(files))
	return files, nil
}

// runBenchmarks boots the simulator, runs files against it and tears it
// down.
func (rt *runtime) runBenchmarks(ctx context.Context, nix command.NixShell, files []string) error {
	marker, err := simulator.NewMarker(rt.cfg.Simulator.StartupPattern)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(rt.repoRoot, rt.layout.BenchmarksDir)
	if err != nil {
		rel = rt.layout.BenchmarksDir
	}
	rt.console.Infof("Running all benchmarks inside '%s/' folder", rel)

	cli := bench.NewCLIRunner(bench.CLIConfig{
		Nix:      nix,
		RepoRoot: rt.repoRoot,
		CLIDir:   rt.layout.CLIDir,
		Raw:      rt.cfg.Bench.Raw,
		Verbose:  rt.cfg.Bench.Verbose,
	}, rt.commandRunner(), rt.logger, rt.console)

	opts := []simulator.ManagerOption{
		simulator.WithFs(rt.fs),
		simulator.WithLogger(rt.logger),
		simulator.WithConsole(rt.console),
	}
	if rt.newProcess != nil {
		opts = append(opts, simulator.WithProcessFactory(rt.newProcess))
	}

	mgr, err := simulator.NewManager(simulator.Config{
		Command:          stages.Simulator(rt.layout, nix),
		PTY:              rt.cfg.Simulator.PTY,
		Marker:           marker,
		DiscoveryTimeout: rt.cfg.Simulator.DiscoveryTimeout,
		ProbeDevice:      rt.cfg.Simulator.ProbeDevice,
		ProbeTimeout:     rt.cfg.Simulator.ProbeTimeout,
		TeardownGrace:    rt.cfg.Simulator.TeardownGrace,
		OutputLog:        rt.cfg.ResolveOutputLog(rt.repoRoot),
		OutputRotation:   rt.cfg.Logging.Rotation(),
	}, cli, opts...)
	if err != nil {
		return err
	}

	var watcher *bench.ResultWatcher
	if rt.cfg.Bench.WatchResults {
		if watcher = rt.watchResults(files); watcher != nil {
			defer watcher.Stop()
		}
	}

	res, err := mgr.Run(ctx, files)
	if res != nil {
		rt.logger.Info("simulator session finished",
			"resource_id", res.ResourceID,
			"pid", res.PID,
			"duration_ms", res.Duration.Milliseconds(),
		)
	}
	if err != nil {
		// The manager prints every failure past spawn itself.
		return errors.Reported(err)
	}

	if watcher != nil {
		watcher.Stop()
		rt.logger.Info("results written during run", "completed", len(watcher.Completed()), "total", len(files))
	}
	for _, f := range bench.MissingResults(rt.fs, files) {
		rt.console.Warnf("No result written for %s", f)
	}
	return nil
}

// watchResults reports each result file as the CLI writes it. Failing to
// watch only costs the progress lines, so it returns nil instead of an
// error.
func (rt *runtime) watchResults(files []string) *bench.ResultWatcher {
	w, err := bench.NewResultWatcher(files, func(p bench.Progress) {
		name, err := filepath.Rel(rt.layout.BenchmarksDir, p.Benchmark)
		if err != nil {
			name = p.Benchmark
		}
		rt.console.Infof("[%d/%d] %s done", p.Done, p.Total, name)
	}, rt.logger)
	if err != nil {
		rt.logger.Warn("result watcher unavailable", "error", err)
		return nil
	}
	w.Start()
	return w
}
