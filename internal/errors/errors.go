// Package errors provides centralized error definitions and error handling utilities
// for the reproduce tool. It defines the error taxonomy of a reproduction run,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent failures of a run phase:
//   - StageError: a build stage's action exited non-zero (the pipeline aborts)
//   - ArtifactError: an artifact is still missing after all stage actions ran
//   - SimulatorError: the simulator could not be spawned or exited before it
//     announced its communication channel
//   - BenchmarkError: the benchmark runner exited non-zero
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or configuration
//   - TimeoutError: operation timed out (discovery deadline, readiness probe)
//
// # Usage
//
//	err := errors.NewStageError("action exited non-zero", cause).
//		WithStage("rom").
//		WithExitCode(2)
//
//	if errors.Is(err, errors.ErrStageFailed) { ... }
//
//	var stageErr *errors.StageError
//	if errors.As(err, &stageErr) { ... }
//
// [ExitCode] maps any error returned by a run to the process exit status.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that abort the whole run.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Build pipeline sentinel errors
var (
	// ErrStageFailed indicates that a build stage's action exited non-zero.
	ErrStageFailed = New("build stage failed")
	// ErrArtifactMissing indicates that a declared artifact does not exist
	// after the pipeline ran.
	ErrArtifactMissing = New("artifact missing after build")
)

// Simulator sentinel errors
var (
	// ErrSpawnFailed indicates that the simulator process could not be launched.
	ErrSpawnFailed = New("simulator failed to start")
	// ErrDiscoveryStreamExhausted indicates that the simulator's output ended
	// before the startup marker appeared.
	ErrDiscoveryStreamExhausted = New("simulator exited before becoming ready")
	// ErrDiscoveryTimeout indicates that the startup marker did not appear
	// within the discovery deadline.
	ErrDiscoveryTimeout = New("simulator did not become ready in time")
	// ErrSessionTornDown indicates an operation on a session after teardown.
	ErrSessionTornDown = New("simulator session already torn down")
)

// Benchmark sentinel errors
var (
	// ErrBenchmarkFailed indicates that the benchmark runner exited non-zero.
	ErrBenchmarkFailed = New("benchmark runner failed")
	// ErrNoBenchmarks indicates that no benchmark files were found.
	ErrNoBenchmarks = New("no benchmark files found")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrRunLocked indicates that another run holds the workspace lock.
	ErrRunLocked = New("workspace is locked by another run")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// RunError is the base interface for all errors raised by a reproduction run.
// It extends the standard error interface with classification methods.
type RunError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if rerunning the tool may succeed without
	// operator intervention.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to the operator as-is.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

func formatPrefix(kind string, parts []string) string {
	if len(parts) == 0 {
		return kind
	}
	return fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// StageError reports a build stage whose action exited non-zero.
// It always matches ErrStageFailed.
//
// Example:
//
//	err := errors.NewStageError("action failed", cause).WithStage("otp").WithExitCode(1)
//	fmt.Println(err) // "stage error [stage=otp, exit=1]: action failed: exit status 1"
type StageError struct {
	baseError
	Stage    string
	ExitCode int
}

// NewStageError creates a new StageError.
func NewStageError(message string, cause error) *StageError {
	return &StageError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
		ExitCode: -1,
	}
}

// WithStage adds the failing stage name.
func (e *StageError) WithStage(name string) *StageError {
	e.Stage = name
	return e
}

// WithExitCode adds the action's exit code.
func (e *StageError) WithExitCode(code int) *StageError {
	e.ExitCode = code
	return e
}

// Error returns the formatted error message.
func (e *StageError) Error() string {
	var parts []string
	if e.Stage != "" {
		parts = append(parts, fmt.Sprintf("stage=%s", e.Stage))
	}
	if e.ExitCode >= 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}

	prefix := formatPrefix("stage error", parts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *StageError) Is(target error) bool {
	if _, ok := target.(*StageError); ok {
		return true
	}
	if target == ErrStageFailed {
		return true
	}
	return e.baseError.Is(target)
}

// ArtifactError reports an artifact that does not exist after the pipeline's
// actions all completed. It always matches ErrArtifactMissing.
type ArtifactError struct {
	baseError
	Stage string
	Path  string
}

// NewArtifactError creates a new ArtifactError for the given path.
func NewArtifactError(path string) *ArtifactError {
	return &ArtifactError{
		baseError: baseError{
			message:    "artifact not found",
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
		Path: path,
	}
}

// WithStage adds the stage that declared the artifact.
func (e *ArtifactError) WithStage(name string) *ArtifactError {
	e.Stage = name
	return e
}

// WithCause adds a cause to the error.
func (e *ArtifactError) WithCause(cause error) *ArtifactError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ArtifactError) Error() string {
	var parts []string
	if e.Stage != "" {
		parts = append(parts, fmt.Sprintf("stage=%s", e.Stage))
	}

	prefix := formatPrefix("artifact error", parts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s at %s: %v", prefix, e.message, e.Path, e.cause)
	}
	return fmt.Sprintf("%s: %s at %s", prefix, e.message, e.Path)
}

// Is checks if this error matches the target.
func (e *ArtifactError) Is(target error) bool {
	if _, ok := target.(*ArtifactError); ok {
		return true
	}
	if target == ErrArtifactMissing {
		return true
	}
	return e.baseError.Is(target)
}

// SimulatorError represents errors related to the simulator process.
//
// Example:
//
//	err := errors.NewSimulatorError("discovery failed", errors.ErrDiscoveryStreamExhausted).
//		WithPID(4242)
type SimulatorError struct {
	baseError
	PID        int
	ResourceID string
}

// NewSimulatorError creates a new SimulatorError.
func NewSimulatorError(message string, cause error) *SimulatorError {
	return &SimulatorError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithPID adds the simulator's process (group) id.
func (e *SimulatorError) WithPID(pid int) *SimulatorError {
	e.PID = pid
	return e
}

// WithResourceID adds the discovered resource id.
func (e *SimulatorError) WithResourceID(id string) *SimulatorError {
	e.ResourceID = id
	return e
}

// Error returns the formatted error message.
func (e *SimulatorError) Error() string {
	var parts []string
	if e.PID > 0 {
		parts = append(parts, fmt.Sprintf("pid=%d", e.PID))
	}
	if e.ResourceID != "" {
		parts = append(parts, fmt.Sprintf("resource=%s", e.ResourceID))
	}

	prefix := formatPrefix("simulator error", parts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *SimulatorError) Is(target error) bool {
	if _, ok := target.(*SimulatorError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// BenchmarkError reports a benchmark runner that exited non-zero. The exit
// code becomes the exit status of the whole run.
type BenchmarkError struct {
	baseError
	ExitCode   int
	ResourceID string
	Files      int
}

// NewBenchmarkError creates a new BenchmarkError.
func NewBenchmarkError(message string, cause error) *BenchmarkError {
	return &BenchmarkError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		ExitCode: -1,
	}
}

// WithExitCode adds the runner's exit code.
func (e *BenchmarkError) WithExitCode(code int) *BenchmarkError {
	e.ExitCode = code
	return e
}

// WithResourceID adds the resource id the runner was pointed at.
func (e *BenchmarkError) WithResourceID(id string) *BenchmarkError {
	e.ResourceID = id
	return e
}

// WithFiles records how many benchmark files were handed to the runner.
func (e *BenchmarkError) WithFiles(n int) *BenchmarkError {
	e.Files = n
	return e
}

// Error returns the formatted error message.
func (e *BenchmarkError) Error() string {
	var parts []string
	if e.ResourceID != "" {
		parts = append(parts, fmt.Sprintf("tty=%s", e.ResourceID))
	}
	if e.ExitCode >= 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	if e.Files > 0 {
		parts = append(parts, fmt.Sprintf("files=%d", e.Files))
	}

	prefix := formatPrefix("benchmark error", parts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *BenchmarkError) Is(target error) bool {
	if _, ok := target.(*BenchmarkError); ok {
		return true
	}
	if target == ErrBenchmarkFailed {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("executable", "nix-shell")
//	fmt.Println(err) // "executable 'nix-shell' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("must contain exactly one capture group").
//		WithField("simulator.startup_pattern")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := formatPrefix("validation error", parts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for startup marker", 5*time.Minute).
//		WithCause(errors.ErrDiscoveryTimeout)
//	fmt.Println(err) // "timeout error: waiting for startup marker (timeout: 5m0s): simulator did not become ready in time"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityError,
			retryable:  true, // Timeouts are generally retryable
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// WithRetryable sets whether the error is retryable (default true for timeouts).
func (e *TimeoutError) WithRetryable(r bool) *TimeoutError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on a later invocation.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var runErr RunError
	if As(err, &runErr) {
		return runErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to the
// operator without additional context.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var runErr RunError
	if As(err, &runErr) {
		return runErr.IsUserFacing()
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement RunError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var runErr RunError
	if As(err, &runErr) {
		return runErr.Severity()
	}

	return SeverityError
}

// ExitCode maps an error returned by a run to the process exit status.
// A nil error maps to 0. A failed benchmark runner propagates its own exit
// code; every other failure maps to 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var benchErr *BenchmarkError
	if As(err, &benchErr) && benchErr.ExitCode > 0 {
		return benchErr.ExitCode
	}

	return 1
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this returns nil for a nil error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Reported marks err as already shown to the operator so the entry point
// does not print it a second time. Is, As and ExitCode see through the mark.
func Reported(err error) error {
	if err == nil || IsReported(err) {
		return err
	}
	return &reportedError{err: err}
}

// IsReported reports whether err carries the Reported mark.
func IsReported(err error) bool {
	var r *reportedError
	return As(err, &r)
}

type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }
