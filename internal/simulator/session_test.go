package simulator

import (
	"bytes"
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/benchsuite/reproduce/internal/command"
	"github.com/benchsuite/reproduce/internal/errors"
)

const markerLine = "UART: Created /dev/pts/7 for uart0."

func TestMarker(t *testing.T) {
	m := MustMarker(DefaultStartupPattern)

	tests := []struct {
		line   string
		want   string
		wanted bool
	}{
		{markerLine, "/dev/pts/7", true},
		{"[42] UART: Created /dev/pts/12 for uart0. extra", "/dev/pts/12", true},
		{"UART: Created /dev/pts/7 for uart1.", "", false},
		{"boot...", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := m.Match(tt.line)
			if ok != tt.wanted || got != tt.want {
				t.Errorf("Match(%q) = %q, %v; want %q, %v", tt.line, got, ok, tt.want, tt.wanted)
			}
		})
	}
}

func TestNewMarker_Invalid(t *testing.T) {
	for _, pattern := range []string{"no groups", "(a)(b)", "(unclosed"} {
		t.Run(pattern, func(t *testing.T) {
			if _, err := NewMarker(pattern); err == nil {
				t.Errorf("NewMarker(%q) succeeded", pattern)
			}
		})
	}
}

func TestState(t *testing.T) {
	for _, s := range []State{StateDone, StateFailed, StateTornDown} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []State{StateCreated, StateSpawned, StateDiscovering, StateReady, StateRunning} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func spawnedSession(t *testing.T, proc *fakeProcess) *Session {
	t.Helper()
	s := NewSession(proc, MustMarker(DefaultStartupPattern), WithTeardownGrace(time.Second))
	if err := s.Spawn(context.Background()); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	return s
}

func TestDiscover_StopsAtMarker(t *testing.T) {
	proc := newFakeProcess(&eventLog{}, "boot...", markerLine, "ready")
	s := spawnedSession(t, proc)
	defer func() { _ = s.Teardown() }()

	id, err := s.Discover(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if id != "/dev/pts/7" {
		t.Errorf("resource id = %q, want /dev/pts/7", id)
	}
	if got := proc.readCount(); got != 2 {
		t.Errorf("ReadLine called %d times, want 2 (the line after the marker must not be read)", got)
	}
	if s.State() != StateReady {
		t.Errorf("state = %s, want ready", s.State())
	}
	if got, ok := s.ResourceID(); !ok || got != id {
		t.Errorf("ResourceID() = %q, %v", got, ok)
	}
}

func TestDiscover_StreamExhausted(t *testing.T) {
	proc := newFakeProcess(&eventLog{}, "boot...", "panic!")
	s := spawnedSession(t, proc)

	_, err := s.Discover(context.Background(), time.Second)
	if !errors.Is(err, errors.ErrDiscoveryStreamExhausted) {
		t.Fatalf("Discover() = %v, want ErrDiscoveryStreamExhausted", err)
	}
	var simErr *errors.SimulatorError
	if !errors.As(err, &simErr) || simErr.PID != 4242 {
		t.Errorf("error = %#v, want SimulatorError with pid", err)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %s, want failed", s.State())
	}
	_ = s.Teardown()
}

func TestDiscover_Timeout(t *testing.T) {
	proc := newFakeProcess(&eventLog{}, "boot...")
	proc.hang = true
	s := spawnedSession(t, proc)

	start := time.Now()
	_, err := s.Discover(context.Background(), 50*time.Millisecond)
	if !errors.Is(err, errors.ErrDiscoveryTimeout) || !errors.Is(err, errors.ErrTimeout) {
		t.Fatalf("Discover() = %v, want discovery timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Discover took %v", elapsed)
	}

	// The pending read is released by teardown.
	if err := s.Teardown(); err != nil {
		t.Errorf("Teardown: %v", err)
	}
	if got := proc.signalCount(); got != 1 {
		t.Errorf("signals = %d, want 1", got)
	}
}

func TestDiscover_Canceled(t *testing.T) {
	proc := newFakeProcess(&eventLog{})
	proc.hang = true
	s := spawnedSession(t, proc)
	defer func() { _ = s.Teardown() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Discover(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Discover() = %v, want context.Canceled", err)
	}
}

func TestDiscover_RequiresSpawn(t *testing.T) {
	s := NewSession(newFakeProcess(&eventLog{}, markerLine), MustMarker(DefaultStartupPattern))
	if _, err := s.Discover(context.Background(), time.Second); err == nil {
		t.Fatal("Discover before Spawn should fail")
	}
}

func TestSpawn_Failure(t *testing.T) {
	proc := newFakeProcess(&eventLog{})
	proc.startErr = os.ErrNotExist
	s := NewSession(proc, MustMarker(DefaultStartupPattern))

	err := s.Spawn(context.Background())
	if !errors.Is(err, errors.ErrSpawnFailed) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Spawn() = %v, want ErrSpawnFailed wrapping the cause", err)
	}
	if err := s.Teardown(); err != nil {
		t.Errorf("Teardown after failed spawn: %v", err)
	}
	if proc.signalCount() != 0 {
		t.Error("nothing to signal after a failed spawn")
	}
}

func TestTeardown_Once(t *testing.T) {
	proc := newFakeProcess(&eventLog{}, markerLine)
	s := spawnedSession(t, proc)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Teardown()
		}()
	}
	wg.Wait()

	if got := proc.signalCount(); got != 1 {
		t.Errorf("signals = %d, want 1", got)
	}
	if proc.signals[0] != os.Interrupt {
		t.Errorf("signal = %v, want interrupt", proc.signals[0])
	}
	if s.State() != StateTornDown {
		t.Errorf("state = %s, want torn_down", s.State())
	}
	if _, err := s.Discover(context.Background(), time.Second); !errors.Is(err, errors.ErrSessionTornDown) {
		t.Errorf("Discover after teardown = %v, want ErrSessionTornDown", err)
	}
}

func TestTeardown_GracePeriodNeverKills(t *testing.T) {
	proc := newFakeProcess(&eventLog{}, markerLine)
	proc.ignoreSignal = true
	s := NewSession(proc, MustMarker(DefaultStartupPattern), WithTeardownGrace(50*time.Millisecond))
	if err := s.Spawn(context.Background()); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	_ = s.Teardown()
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Teardown blocked for %v", elapsed)
	}
	if got := proc.signalCount(); got != 1 {
		t.Errorf("signals = %d, want exactly the one interrupt", got)
	}
}

func TestTeardown_CustomSignal(t *testing.T) {
	proc := newFakeProcess(&eventLog{}, markerLine)
	s := NewSession(proc, MustMarker(DefaultStartupPattern), WithTeardownSignal(syscall.SIGTERM))
	if err := s.Spawn(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := s.Teardown(); err != nil {
		t.Fatalf("Teardown() error = %v", err)
	}
	if got := proc.signalCount(); got != 1 || proc.signals[0] != syscall.SIGTERM {
		t.Errorf("signals = %v, want [SIGTERM]", proc.signals)
	}
}

func TestDrain(t *testing.T) {
	proc := newFakeProcess(&eventLog{}, "boot", markerLine, "ready", "uart0 tx")
	s := spawnedSession(t, proc)

	if err := s.Drain(&bytes.Buffer{}); err == nil {
		t.Error("Drain before discovery should fail")
	}
	if _, err := s.Discover(context.Background(), time.Second); err != nil {
		t.Fatal(err)
	}

	var out lockedBuffer
	if err := s.Drain(&out); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	_ = s.Teardown()

	if got := out.String(); got != "ready\nuart0 tx\n" {
		t.Errorf("drained %q", got)
	}
}

func TestProbe(t *testing.T) {
	t.Run("appears after a delay", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		s := spawnedSession(t, newFakeProcess(&eventLog{}, markerLine))
		defer func() { _ = s.Teardown() }()
		if _, err := s.Discover(context.Background(), time.Second); err != nil {
			t.Fatal(err)
		}

		go func() {
			time.Sleep(60 * time.Millisecond)
			_ = afero.WriteFile(fs, "/dev/pts/7", nil, 0o600)
		}()

		if err := s.Probe(context.Background(), fs, 5*time.Second); err != nil {
			t.Errorf("Probe: %v", err)
		}
	})

	t.Run("never appears", func(t *testing.T) {
		s := spawnedSession(t, newFakeProcess(&eventLog{}, markerLine))
		defer func() { _ = s.Teardown() }()
		if _, err := s.Discover(context.Background(), time.Second); err != nil {
			t.Fatal(err)
		}

		err := s.Probe(context.Background(), afero.NewMemMapFs(), 100*time.Millisecond)
		if !errors.Is(err, errors.ErrTimeout) {
			t.Errorf("Probe() = %v, want timeout", err)
		}
	})

	t.Run("before discovery", func(t *testing.T) {
		s := spawnedSession(t, newFakeProcess(&eventLog{}))
		defer func() { _ = s.Teardown() }()
		if err := s.Probe(context.Background(), afero.NewMemMapFs(), time.Second); err == nil {
			t.Error("expected error")
		}
	})
}

func TestRunBenchmarks_ExitCodePropagates(t *testing.T) {
	log := &eventLog{}
	s := spawnedSession(t, newFakeProcess(log, markerLine))
	defer func() { _ = s.Teardown() }()
	if _, err := s.Discover(context.Background(), time.Second); err != nil {
		t.Fatal(err)
	}

	bench := &fakeBench{log: log, err: &command.ExitError{Code: 3}}
	err := s.RunBenchmarks(context.Background(), bench, []string{"a.bench", "b.bench"})

	var benchErr *errors.BenchmarkError
	if !errors.As(err, &benchErr) {
		t.Fatalf("error %T is not *BenchmarkError", err)
	}
	if benchErr.ExitCode != 3 || benchErr.ResourceID != "/dev/pts/7" || benchErr.Files != 2 {
		t.Errorf("BenchmarkError = %+v", benchErr)
	}
	if got := errors.ExitCode(err); got != 3 {
		t.Errorf("errors.ExitCode() = %d, want 3", got)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %s, want failed", s.State())
	}
}

func TestRunBenchmarks_RequiresReady(t *testing.T) {
	log := &eventLog{}
	s := spawnedSession(t, newFakeProcess(log))
	defer func() { _ = s.Teardown() }()

	bench := &fakeBench{log: log}
	if err := s.RunBenchmarks(context.Background(), bench, nil); err == nil {
		t.Fatal("benchmarks must not run before a resource id exists")
	}
	if bench.calls != 0 {
		t.Error("runner was invoked")
	}
}

func TestRunBenchmarks_KeepsBenchmarkError(t *testing.T) {
	log := &eventLog{}
	s := spawnedSession(t, newFakeProcess(log, markerLine))
	defer func() { _ = s.Teardown() }()
	if _, err := s.Discover(context.Background(), time.Second); err != nil {
		t.Fatal(err)
	}

	orig := errors.NewBenchmarkError("runner failed", nil).WithExitCode(9)
	err := s.RunBenchmarks(context.Background(), &fakeBench{log: log, err: orig}, nil)
	if err != error(orig) {
		t.Errorf("RunBenchmarks() = %v, want the runner's own error", err)
	}
}

func TestSession_EventOrder(t *testing.T) {
	log := &eventLog{}
	s := spawnedSession(t, newFakeProcess(log, markerLine))
	if _, err := s.Discover(context.Background(), time.Second); err != nil {
		t.Fatal(err)
	}
	_ = s.RunBenchmarks(context.Background(), &fakeBench{log: log}, []string{"x.bench"})
	_ = s.Teardown()

	if got, want := log.list(), []string{"start", "bench", "signal"}; !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

// lockedBuffer is a bytes.Buffer safe for a writer goroutine and a reader.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Clone(b.buf.String())
}
