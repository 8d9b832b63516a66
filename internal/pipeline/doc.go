// Package pipeline runs an ordered list of build stages whose completion is
// defined by the existence of their artifacts.
//
// # Resumability
//
// A [Stage] is satisfied iff every one of its artifact paths exists when it
// is evaluated. Satisfaction is re-checked on every run, never recorded, so
// re-running after a partial failure re-derives the remaining work from the
// filesystem alone. The filesystem is an injected [afero.Fs], which lets
// tests drive the executor against an in-memory tree.
//
// # Execution
//
// [Executor.Run] walks the stages in order. Satisfied stages are skipped with
// an informational note; the rest run their action synchronously. A non-zero
// exit aborts the whole run with an error naming the stage. Earlier stages
// are not rolled back.
//
// Once every stage has been attempted, a verification pass re-checks all
// artifacts. Actions that exit 0 without producing what they declared are
// caught here and reported per missing path.
//
// # Usage
//
//	exec, _ := pipeline.NewExecutor(command.NewExecRunner(),
//	    pipeline.WithLogger(logger),
//	    pipeline.WithConsole(console.Stderr()),
//	)
//	report, err := exec.Run(ctx, stages)
package pipeline
