package simulator

import (
	"context"
	"errors"
	"os"
)

// Common errors returned by Process implementations.
var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("process already started")

	// ErrNotStarted is returned when an operation requires a started process.
	ErrNotStarted = errors.New("process not started")
)

// Process is the capability the session manager needs from the simulator.
//
// Implementations launch the program as the leader of a new process group,
// so Signal reaches it and every descendant. The real implementation is
// [ExecProcess]; tests use a scripted fake.
//
// The typical lifecycle is:
//  1. Start launches the process without waiting for it
//  2. ReadLine is called repeatedly by a single reader
//  3. Signal delivers the teardown signal to the group
//  4. Wait reaps the process
type Process interface {
	// Start launches the process. It must not block on the program itself.
	// Returns ErrAlreadyStarted on a second call.
	Start(ctx context.Context) error

	// ReadLine returns the next line of standard output without its line
	// terminator. Returns io.EOF once the stream is exhausted. Not safe for
	// concurrent use.
	ReadLine() (string, error)

	// SendInput writes to the process's standard input.
	SendInput(input string) error

	// Signal delivers sig to the whole process group.
	Signal(sig os.Signal) error

	// Wait blocks until the process exits. It may be called more than once,
	// and from several goroutines; every call returns the same result.
	Wait() error

	// PID returns the process (and process group) id, or 0 before Start.
	PID() int
}
