package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/benchsuite/reproduce/internal/bench"
	"github.com/benchsuite/reproduce/internal/simulator"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "simulator.discovery_timeout")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// maxPathLength is a conservative bound most filesystems accept.
const maxPathLength = 4096

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validatePaths()...)
	errors = append(errors, c.validateBuild()...)
	errors = append(errors, c.validateSimulator()...)
	errors = append(errors, c.validateBench()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validatePaths validates the PathsConfig
func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	fields := []struct {
		name  string
		value string
	}{
		{"paths.repo_root", c.Paths.RepoRoot},
		{"paths.work_dir", c.Paths.WorkDir},
		{"paths.opentitan_dir", c.Paths.OpenTitanDir},
		{"paths.toolchain_dir", c.Paths.ToolchainDir},
		{"paths.suite_dir", c.Paths.SuiteDir},
		{"paths.cli_dir", c.Paths.CLIDir},
		{"paths.benchmarks_dir", c.Paths.BenchmarksDir},
	}
	for _, f := range fields {
		errors = append(errors, validatePath(f.name, f.value)...)
	}

	return errors
}

func validatePath(field, path string) []ValidationError {
	var errors []ValidationError

	// Check for null bytes which are invalid in paths
	if strings.ContainsRune(path, '\x00') {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: "path contains invalid null character",
		})
	}
	if len(path) > maxPathLength {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
		})
	}

	return errors
}

// validateBuild validates the BuildConfig
func (c *Config) validateBuild() []ValidationError {
	var errors []ValidationError

	// The repository is only needed when the built-in stages are used.
	if c.Build.Manifest == "" && strings.TrimSpace(c.Build.OpenTitanRepo) == "" {
		errors = append(errors, ValidationError{
			Field:   "build.opentitan_repo",
			Value:   c.Build.OpenTitanRepo,
			Message: "must be set unless build.manifest is used",
		})
	}
	errors = append(errors, validatePath("build.manifest", c.Build.Manifest)...)
	errors = append(errors, validatePath("build.nix_shell", c.Build.NixShell)...)

	return errors
}

// validateSimulator validates the SimulatorConfig
func (c *Config) validateSimulator() []ValidationError {
	var errors []ValidationError

	if _, err := simulator.NewMarker(c.Simulator.StartupPattern); err != nil {
		errors = append(errors, ValidationError{
			Field:   "simulator.startup_pattern",
			Value:   c.Simulator.StartupPattern,
			Message: err.Error(),
		})
	}

	// A hung simulator must not block a run forever.
	if c.Simulator.DiscoveryTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "simulator.discovery_timeout",
			Value:   c.Simulator.DiscoveryTimeout,
			Message: "must be positive",
		})
	}

	if c.Simulator.ProbeDevice && c.Simulator.ProbeTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "simulator.probe_timeout",
			Value:   c.Simulator.ProbeTimeout,
			Message: "must be positive when simulator.probe_device is enabled",
		})
	}

	const maxGrace = 10 * time.Minute
	if c.Simulator.TeardownGrace <= 0 || c.Simulator.TeardownGrace > maxGrace {
		errors = append(errors, ValidationError{
			Field:   "simulator.teardown_grace",
			Value:   c.Simulator.TeardownGrace,
			Message: fmt.Sprintf("must be between 0 and %s", maxGrace),
		})
	}

	errors = append(errors, validatePath("simulator.output_log", c.Simulator.OutputLog)...)

	return errors
}

// validateBench validates the BenchConfig
func (c *Config) validateBench() []ValidationError {
	var errors []ValidationError

	if _, err := bench.NewMatcher(c.Bench.Pattern); err != nil {
		errors = append(errors, ValidationError{
			Field:   "bench.pattern",
			Value:   c.Bench.Pattern,
			Message: "invalid glob pattern",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
