package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/benchsuite/reproduce/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View reproduce configuration",
	Long: `View reproduce configuration.

Without arguments, displays the effective configuration.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/reproduce/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	writeConfig(cmd.OutOrStdout(), cfg, viper.ConfigFileUsed())
	return nil
}

func writeConfig(w io.Writer, cfg *config.Config, source string) {
	if source != "" {
		fmt.Fprintf(w, "# Config file: %s\n", source)
	} else {
		fmt.Fprintln(w, "# Config file: (none - using defaults)")
	}

	fmt.Fprintln(w, "paths:")
	fmt.Fprintf(w, "  repo_root: %q\n", cfg.Paths.RepoRoot)
	fmt.Fprintf(w, "  work_dir: %q\n", cfg.Paths.WorkDir)
	fmt.Fprintf(w, "  opentitan_dir: %q\n", cfg.Paths.OpenTitanDir)
	fmt.Fprintf(w, "  toolchain_dir: %q\n", cfg.Paths.ToolchainDir)
	fmt.Fprintf(w, "  suite_dir: %q\n", cfg.Paths.SuiteDir)
	fmt.Fprintf(w, "  cli_dir: %q\n", cfg.Paths.CLIDir)
	fmt.Fprintf(w, "  benchmarks_dir: %q\n", cfg.Paths.BenchmarksDir)

	fmt.Fprintln(w, "build:")
	fmt.Fprintf(w, "  nix_shell: %q\n", cfg.Build.NixShell)
	fmt.Fprintf(w, "  opentitan_repo: %q\n", cfg.Build.OpenTitanRepo)
	fmt.Fprintf(w, "  manifest: %q\n", cfg.Build.Manifest)
	fmt.Fprintf(w, "  cargo_builds: %v\n", cfg.Build.CargoBuilds)
	fmt.Fprintf(w, "  dry_run: %v\n", cfg.Build.DryRun)

	fmt.Fprintln(w, "simulator:")
	fmt.Fprintf(w, "  startup_pattern: %q\n", cfg.Simulator.StartupPattern)
	fmt.Fprintf(w, "  discovery_timeout: %s\n", cfg.Simulator.DiscoveryTimeout)
	fmt.Fprintf(w, "  probe_device: %v\n", cfg.Simulator.ProbeDevice)
	fmt.Fprintf(w, "  probe_timeout: %s\n", cfg.Simulator.ProbeTimeout)
	fmt.Fprintf(w, "  teardown_grace: %s\n", cfg.Simulator.TeardownGrace)
	fmt.Fprintf(w, "  pty: %v\n", cfg.Simulator.PTY)
	fmt.Fprintf(w, "  output_log: %q\n", cfg.Simulator.OutputLog)

	fmt.Fprintln(w, "bench:")
	fmt.Fprintf(w, "  pattern: %q\n", cfg.Bench.Pattern)
	fmt.Fprintf(w, "  raw: %v\n", cfg.Bench.Raw)
	fmt.Fprintf(w, "  verbose: %v\n", cfg.Bench.Verbose)
	fmt.Fprintf(w, "  watch_results: %v\n", cfg.Bench.WatchResults)

	fmt.Fprintln(w, "logging:")
	fmt.Fprintf(w, "  enabled: %v\n", cfg.Logging.Enabled)
	fmt.Fprintf(w, "  level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(w, "  max_size_mb: %d\n", cfg.Logging.MaxSizeMB)
	fmt.Fprintf(w, "  max_backups: %d\n", cfg.Logging.MaxBackups)
}

const defaultConfigContent = `# reproduce configuration
# Relative paths are resolved against paths.repo_root.

paths:
  # Benchmark repository holding shell.nix (default: current directory)
  repo_root: ""
  # Run lock and logs
  work_dir: target
  opentitan_dir: target/opentitan
  toolchain_dir: target/riscv_toolchain
  suite_dir: suite
  cli_dir: cli
  benchmarks_dir: benchmarks

build:
  # nix-shell executable (default: looked up on PATH)
  nix_shell: ""
  opentitan_repo: https://github.com/harshanavkis/opentitan.git
  # YAML stage manifest replacing the built-in stages
  manifest: ""
  # Build the suite and cli in release mode before running
  cargo_builds: false

simulator:
  # Must contain exactly one capture group: the UART device
  startup_pattern: "UART: Created (.*) for uart0."
  discovery_timeout: 30m
  # Wait for the announced device to exist before running benchmarks
  probe_device: true
  probe_timeout: 10s
  # How long to wait for the simulator to exit after the interrupt
  teardown_grace: 30s
  pty: false
  # Simulator output after startup, relative to work_dir ("" disables)
  output_log: logs/simulator.log

bench:
  pattern: "**/*.bench"
  raw: true
  verbose: false
  # Print a line as each .result file is written
  watch_results: true

logging:
  enabled: true
  # debug, info, warn, error
  level: info
  max_size_mb: 10
  max_backups: 3
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s", configFile)
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(w, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(w, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(w, "\nSearch order:")
	fmt.Fprintln(w, "  1. --config flag")
	fmt.Fprintf(w, "  2. ./%s (current directory)\n", localConfigFile)
	fmt.Fprintf(w, "  3. %s\n", config.ConfigFile())
	fmt.Fprintln(w, "\nEnvironment variables: REPRODUCE_* (e.g., REPRODUCE_SIMULATOR_DISCOVERY_TIMEOUT)")

	return nil
}
