package simulator

import (
	"context"
	"io"
	"os"
	"sync"
)

// eventLog records the order of observable actions across fakes.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fakeProcess emits scripted output lines and records signals.
type fakeProcess struct {
	log *eventLog

	mu       sync.Mutex
	lines    []string
	next     int
	reads    int
	startErr error
	started  bool
	signals  []os.Signal
	inputs   []string

	// hang makes ReadLine block once lines run out, until a signal arrives.
	hang bool
	// ignoreSignal keeps Wait blocked even after a signal.
	ignoreSignal bool

	signaled   chan struct{}
	signalOnce sync.Once
	never      chan struct{}
	closeCalls int
	pid        int
}

func newFakeProcess(log *eventLog, lines ...string) *fakeProcess {
	return &fakeProcess{
		log:      log,
		lines:    lines,
		pid:      4242,
		signaled: make(chan struct{}),
		never:    make(chan struct{}),
	}
}

func (f *fakeProcess) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if f.started {
		return ErrAlreadyStarted
	}
	f.started = true
	f.log.add("start")
	return nil
}

func (f *fakeProcess) ReadLine() (string, error) {
	f.mu.Lock()
	f.reads++
	if f.next < len(f.lines) {
		line := f.lines[f.next]
		f.next++
		f.mu.Unlock()
		return line, nil
	}
	hang := f.hang
	f.mu.Unlock()

	if hang {
		<-f.signaled
	}
	return "", io.EOF
}

func (f *fakeProcess) SendInput(input string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	return nil
}

func (f *fakeProcess) Signal(sig os.Signal) error {
	f.mu.Lock()
	f.signals = append(f.signals, sig)
	f.mu.Unlock()
	f.log.add("signal")
	f.signalOnce.Do(func() { close(f.signaled) })
	return nil
}

func (f *fakeProcess) Wait() error {
	if f.ignoreSignal {
		<-f.never
	}
	<-f.signaled
	return nil
}

func (f *fakeProcess) PID() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return 0
	}
	return f.pid
}

func (f *fakeProcess) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func (f *fakeProcess) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *fakeProcess) signalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.signals)
}

// fakeBench records invocations of the benchmark runner.
type fakeBench struct {
	log *eventLog
	err error

	mu         sync.Mutex
	calls      int
	resourceID string
	files      []string
}

func (b *fakeBench) Run(_ context.Context, resourceID string, files []string) error {
	b.mu.Lock()
	b.calls++
	b.resourceID = resourceID
	b.files = append([]string(nil), files...)
	b.mu.Unlock()
	b.log.add("bench")
	return b.err
}
