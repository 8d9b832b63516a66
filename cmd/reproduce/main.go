package main

import (
	"context"
	"os"
	"syscall"

	"github.com/benchsuite/reproduce/internal/cmd"
	"github.com/benchsuite/reproduce/internal/console"
	"github.com/benchsuite/reproduce/internal/errors"
)

func main() {
	// The simulator runs in its own session, so an interrupt only reaches
	// it through the teardown that follows ctx being canceled.
	ctx, stop := cmd.InterruptContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cmd.Execute(ctx)
	stop()
	cmd.ReportError(console.Stderr(), err)
	os.Exit(errors.ExitCode(err))
}
