//go:build unix

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"
)

func TestInterruptContext_FirstSignalCancels(t *testing.T) {
	// Keep SIGUSR1 from reaching its default action once the handler under
	// test is released.
	guard := make(chan os.Signal, 2)
	signal.Notify(guard, syscall.SIGUSR1)
	defer signal.Stop(guard)

	ctx, stop := InterruptContext(context.Background(), syscall.SIGUSR1)
	defer stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not canceled by the signal")
	}
}

func TestReleaseOnDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	released := make(chan struct{})
	releaseOnDone(ctx, func() { close(released) })

	select {
	case <-released:
		t.Fatal("released before the context was done")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("handler not released after the context was done")
	}
}
