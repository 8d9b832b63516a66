package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/benchsuite/reproduce/internal/bench"
	"github.com/benchsuite/reproduce/internal/logging"
	"github.com/benchsuite/reproduce/internal/simulator"
	"github.com/benchsuite/reproduce/internal/stages"
)

// Config represents the complete reproduce configuration
type Config struct {
	Paths     PathsConfig     `mapstructure:"paths"`
	Build     BuildConfig     `mapstructure:"build"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Bench     BenchConfig     `mapstructure:"bench"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// PathsConfig locates the repository and the trees a run works in. Relative
// paths are resolved against RepoRoot.
type PathsConfig struct {
	// RepoRoot is the benchmark repository holding shell.nix (default: cwd)
	RepoRoot string `mapstructure:"repo_root"`
	// WorkDir holds the run lock and logs (default: target)
	WorkDir string `mapstructure:"work_dir"`
	// OpenTitanDir is the OpenTitan checkout (default: target/opentitan)
	OpenTitanDir string `mapstructure:"opentitan_dir"`
	// ToolchainDir is the RISC-V toolchain install (default: target/riscv_toolchain)
	ToolchainDir string `mapstructure:"toolchain_dir"`
	SuiteDir     string `mapstructure:"suite_dir"`
	CLIDir       string `mapstructure:"cli_dir"`
	// BenchmarksDir is searched for benchmark files (default: benchmarks)
	BenchmarksDir string `mapstructure:"benchmarks_dir"`
}

// BuildConfig controls the build pipeline
type BuildConfig struct {
	// NixShell overrides the nix-shell executable looked up on PATH
	NixShell string `mapstructure:"nix_shell"`
	// OpenTitanRepo is cloned when the checkout is missing
	OpenTitanRepo string `mapstructure:"opentitan_repo"`
	// Manifest replaces the built-in stage list with a YAML manifest
	Manifest string `mapstructure:"manifest"`
	// CargoBuilds adds explicit release builds of the suite and CLI
	CargoBuilds bool `mapstructure:"cargo_builds"`
	// DryRun prints the plan without running any stage action
	DryRun bool `mapstructure:"dry_run"`
}

// SimulatorConfig controls the simulator session
type SimulatorConfig struct {
	// StartupPattern must contain exactly one capture group: the UART device
	StartupPattern string `mapstructure:"startup_pattern"`
	// DiscoveryTimeout bounds the wait for the startup marker
	DiscoveryTimeout time.Duration `mapstructure:"discovery_timeout"`
	// ProbeDevice waits for the announced device node to exist
	ProbeDevice  bool          `mapstructure:"probe_device"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	// TeardownGrace is how long teardown waits for the process group to exit
	TeardownGrace time.Duration `mapstructure:"teardown_grace"`
	// PTY attaches the simulator's stdout to a pseudo-terminal
	PTY bool `mapstructure:"pty"`
	// OutputLog receives simulator output after the marker ("" disables)
	OutputLog string `mapstructure:"output_log"`
}

// BenchConfig controls benchmark discovery and the host CLI
type BenchConfig struct {
	// Pattern selects benchmark files below BenchmarksDir
	Pattern string `mapstructure:"pattern"`
	// Raw passes -r to the CLI
	Raw     bool `mapstructure:"raw"`
	Verbose bool `mapstructure:"verbose"`
	// WatchResults reports each .result file as the CLI writes it
	WatchResults bool `mapstructure:"watch_results"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled writes JSON debug records to <work_dir>/logs/debug.log
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			RepoRoot:      "", // Empty means the current directory
			WorkDir:       "target",
			OpenTitanDir:  "target/opentitan",
			ToolchainDir:  "target/riscv_toolchain",
			SuiteDir:      "suite",
			CLIDir:        "cli",
			BenchmarksDir: "benchmarks",
		},
		Build: BuildConfig{
			NixShell:      "",
			OpenTitanRepo: stages.DefaultOpenTitanRepo,
			Manifest:      "",
			CargoBuilds:   false,
			DryRun:        false,
		},
		Simulator: SimulatorConfig{
			StartupPattern: simulator.DefaultStartupPattern,
			// The suite is compiled by cargo before the simulator boots.
			DiscoveryTimeout: 30 * time.Minute,
			ProbeDevice:      true,
			ProbeTimeout:     10 * time.Second,
			TeardownGrace:    simulator.DefaultTeardownGrace,
			PTY:              false,
			OutputLog:        "logs/simulator.log",
		},
		Bench: BenchConfig{
			Pattern:      bench.DefaultPattern,
			Raw:          true,
			Verbose:      false,
			WatchResults: true,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Paths defaults
	viper.SetDefault("paths.repo_root", defaults.Paths.RepoRoot)
	viper.SetDefault("paths.work_dir", defaults.Paths.WorkDir)
	viper.SetDefault("paths.opentitan_dir", defaults.Paths.OpenTitanDir)
	viper.SetDefault("paths.toolchain_dir", defaults.Paths.ToolchainDir)
	viper.SetDefault("paths.suite_dir", defaults.Paths.SuiteDir)
	viper.SetDefault("paths.cli_dir", defaults.Paths.CLIDir)
	viper.SetDefault("paths.benchmarks_dir", defaults.Paths.BenchmarksDir)

	// Build defaults
	viper.SetDefault("build.nix_shell", defaults.Build.NixShell)
	viper.SetDefault("build.opentitan_repo", defaults.Build.OpenTitanRepo)
	viper.SetDefault("build.manifest", defaults.Build.Manifest)
	viper.SetDefault("build.cargo_builds", defaults.Build.CargoBuilds)
	viper.SetDefault("build.dry_run", defaults.Build.DryRun)

	// Simulator defaults
	viper.SetDefault("simulator.startup_pattern", defaults.Simulator.StartupPattern)
	viper.SetDefault("simulator.discovery_timeout", defaults.Simulator.DiscoveryTimeout)
	viper.SetDefault("simulator.probe_device", defaults.Simulator.ProbeDevice)
	viper.SetDefault("simulator.probe_timeout", defaults.Simulator.ProbeTimeout)
	viper.SetDefault("simulator.teardown_grace", defaults.Simulator.TeardownGrace)
	viper.SetDefault("simulator.pty", defaults.Simulator.PTY)
	viper.SetDefault("simulator.output_log", defaults.Simulator.OutputLog)

	// Bench defaults
	viper.SetDefault("bench.pattern", defaults.Bench.Pattern)
	viper.SetDefault("bench.raw", defaults.Bench.Raw)
	viper.SetDefault("bench.verbose", defaults.Bench.Verbose)
	viper.SetDefault("bench.watch_results", defaults.Bench.WatchResults)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ResolveRepoRoot returns the absolute repository root, defaulting to the current
// directory.
func (p *PathsConfig) ResolveRepoRoot() (string, error) {
	root := expandHome(p.RepoRoot)
	if root == "" {
		return os.Getwd()
	}
	return filepath.Abs(root)
}

// Layout returns the stage layout with every directory resolved against
// repoRoot.
func (p *PathsConfig) Layout(repoRoot string) stages.Layout {
	return stages.Layout{
		RepoRoot:      repoRoot,
		OpenTitanDir:  expandHome(p.OpenTitanDir),
		ToolchainDir:  expandHome(p.ToolchainDir),
		SuiteDir:      expandHome(p.SuiteDir),
		CLIDir:        expandHome(p.CLIDir),
		BenchmarksDir: expandHome(p.BenchmarksDir),
	}.Resolve()
}

// ResolveWorkDir returns the absolute work directory.
func (p *PathsConfig) ResolveWorkDir(repoRoot string) string {
	return resolvePath(p.WorkDir, repoRoot, filepath.Join(repoRoot, "target"))
}

// LogDir is where the debug log is written.
func (c *Config) LogDir(repoRoot string) string {
	return filepath.Join(c.Paths.ResolveWorkDir(repoRoot), "logs")
}

// ResolveOutputLog returns the absolute simulator output log, or "" when
// disabled. Relative paths are taken from the work directory.
func (c *Config) ResolveOutputLog(repoRoot string) string {
	if c.Simulator.OutputLog == "" {
		return ""
	}
	return resolvePath(c.Simulator.OutputLog, c.Paths.ResolveWorkDir(repoRoot), "")
}

// ResolveManifest returns the absolute manifest path, or "" when unset.
func (c *Config) ResolveManifest(repoRoot string) string {
	if c.Build.Manifest == "" {
		return ""
	}
	return resolvePath(c.Build.Manifest, repoRoot, "")
}

// Rotation returns the log rotation settings.
func (c *LoggingConfig) Rotation() logging.RotationConfig {
	return logging.RotationConfig{
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
	}
}

func resolvePath(path, base, fallback string) string {
	path = expandHome(path)
	if path == "" {
		return fallback
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "reproduce")
	}
	// Fall back to ~/.config/reproduce
	home, err := os.UserHomeDir()
	if err != nil {
		return ".reproduce"
	}
	return filepath.Join(home, ".config", "reproduce")
}

// ConfigFile returns the path to the user config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
