package cmd

import (
	"context"
	"os"
	"os/signal"
)

// InterruptContext returns a context canceled by the first of sigs. The
// handler is removed at that point, so a second signal gets the default
// behavior and ends the process while teardown is still waiting.
func InterruptContext(parent context.Context, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, sigs...)
	releaseOnDone(ctx, stop)
	return ctx, stop
}

func releaseOnDone(ctx context.Context, release func()) {
	go func() {
		<-ctx.Done()
		release()
	}()
}
