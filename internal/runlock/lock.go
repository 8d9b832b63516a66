// Package runlock keeps two reproduce runs from sharing a work directory.
// The build stages and the simulator write to the same tree, so a second
// run would race the first one's artifacts.
package runlock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/benchsuite/reproduce/internal/errors"
	"github.com/benchsuite/reproduce/internal/logging"
)

// FileName is the lock file created inside the work directory.
const FileName = "reproduce.lock"

// unreadableGrace is how old an unparseable lock file must be before it is
// treated as stale.
const unreadableGrace = 5 * time.Second

// Lock is a held run lock.
type Lock struct {
	Command   string    `json:"command"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	path   string
	logger *logging.Logger
}

// Acquire takes the lock in workDir for the named command. A lock left by a
// process that no longer exists is replaced. logger may be nil.
func Acquire(workDir, command string, logger *logging.Logger) (*Lock, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating work directory")
	}
	path := filepath.Join(workDir, FileName)

	held, err := Read(path)
	switch {
	case err == nil:
		if alive(held.PID) {
			logger.Error("run lock held", "pid", held.PID, "host", held.Hostname, "command", held.Command)
			return nil, lockedError(held)
		}
		if err := removeStale(path); err != nil {
			return nil, err
		}
		logger.Warn("stale run lock removed", "old_pid", held.PID)
	case !os.IsNotExist(err):
		// A run killed between creating and writing the file leaves it
		// empty. Give a run that is writing it right now a moment first.
		if info, statErr := os.Stat(path); statErr == nil && time.Since(info.ModTime()) < unreadableGrace {
			return nil, errors.ErrRunLocked
		}
		if err := removeStale(path); err != nil {
			return nil, err
		}
		logger.Warn("unreadable run lock removed", "error", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	lock := &Lock{
		Command:   command,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		path:      path,
		logger:    logger,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encoding lock")
	}

	// O_EXCL settles a race with another run that passed the check above.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			if held, readErr := Read(path); readErr == nil {
				return nil, lockedError(held)
			}
			return nil, errors.ErrRunLocked
		}
		return nil, errors.Wrap(err, "creating lock file")
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		_ = os.Remove(path)
		return nil, errors.Wrap(err, "writing lock file")
	}

	logger.Debug("run lock acquired", "path", path, "pid", lock.PID)
	return lock, nil
}

// Release removes the lock file if this process still owns it. It is safe
// to call more than once and on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}

	held, err := Read(l.path)
	if err != nil || held.PID != l.PID {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	l.logger.Debug("run lock released", "path", l.path)
	return nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Read parses the lock file at path.
func Read(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("parsing lock file: %w", err)
	}
	lock.path = path
	return &lock, nil
}

// Held reports whether a live process holds the lock in workDir.
func Held(workDir string) (*Lock, bool) {
	lock, err := Read(filepath.Join(workDir, FileName))
	if err != nil {
		return nil, false
	}
	return lock, alive(lock.PID)
}

func removeStale(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing stale lock")
	}
	return nil
}

func lockedError(held *Lock) error {
	return fmt.Errorf("%w: %s started by PID %d on %s at %s",
		errors.ErrRunLocked, held.Command, held.PID, held.Hostname, held.StartedAt.Format(time.RFC3339))
}
