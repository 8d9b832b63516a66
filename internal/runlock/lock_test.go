package runlock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benchsuite/reproduce/internal/errors"
)

func writeLock(t *testing.T, dir string, pid int) {
	t.Helper()
	data, err := json.Marshal(Lock{Command: "run", PID: pid, Hostname: "elsewhere", StartedAt: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestAcquireRelease(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "work")

	lock, err := Acquire(dir, "run", nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if lock.PID != os.Getpid() || lock.Command != "run" {
		t.Errorf("lock = %+v", lock)
	}

	held, ok := Held(dir)
	if !ok || held.PID != os.Getpid() {
		t.Errorf("Held() = %+v, %v", held, ok)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Errorf("lock file still present: %v", err)
	}
}

func TestAcquire_HeldByLiveProcess(t *testing.T) {
	dir := t.TempDir()
	// The test process itself is certainly alive.
	writeLock(t, dir, os.Getpid())

	_, err := Acquire(dir, "build", nil)
	if !errors.Is(err, errors.ErrRunLocked) {
		t.Fatalf("Acquire() = %v, want ErrRunLocked", err)
	}
}

func TestAcquire_ReplacesStaleLock(t *testing.T) {
	dir := t.TempDir()
	// PIDs are capped well below this on Linux.
	writeLock(t, dir, 1<<30)

	lock, err := Acquire(dir, "run", nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer func() { _ = lock.Release() }()

	if lock.PID != os.Getpid() {
		t.Errorf("lock PID = %d", lock.PID)
	}
}

func TestRelease_ForeignLock(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir, "run", nil)
	if err != nil {
		t.Fatal(err)
	}

	// Another process took over the file.
	writeLock(t, dir, 1<<30)
	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(lock.Path()); err != nil {
		t.Errorf("foreign lock removed: %v", err)
	}

	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Errorf("nil Release: %v", err)
	}
}

func TestRead_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	_ = os.WriteFile(path, []byte("{not json"), 0o644)
	if _, err := Read(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestAcquire_UnreadableLock(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		age      time.Duration
		wantLock bool
	}{
		{"empty and old", "", time.Minute, true},
		{"corrupt and old", "{not json", time.Minute, true},
		{"empty and fresh", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, FileName)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if tt.age > 0 {
				old := time.Now().Add(-tt.age)
				if err := os.Chtimes(path, old, old); err != nil {
					t.Fatal(err)
				}
			}

			lock, err := Acquire(dir, "run", nil)
			if !tt.wantLock {
				if !errors.Is(err, errors.ErrRunLocked) {
					t.Fatalf("Acquire() = %v, want ErrRunLocked", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}
			defer func() { _ = lock.Release() }()

			held, err := Read(lock.Path())
			if err != nil || held.PID != os.Getpid() {
				t.Errorf("lock file after takeover = %+v, %v", held, err)
			}
		})
	}
}
