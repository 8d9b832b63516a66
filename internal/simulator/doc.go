// Package simulator supervises the hardware simulator for one benchmark run.
//
// A [Session] owns a single simulator [Process] from spawn to teardown. It
// scans the process's standard output for the startup [Marker], extracts the
// resource id (the UART pseudo-terminal), hands it to a [BenchmarkRunner],
// and finally interrupts the whole process group.
//
// # Lifecycle
//
//	created → spawned → discovering → ready → running_benchmarks → done
//	                         ↘ failed (stream ended, timeout, runner error)
//	any state → torn_down
//
// Teardown runs at most once per session and is deferred by [Manager.Run]
// immediately after a successful spawn, so every later failure still stops
// the simulator. The interrupt is never escalated to a kill.
//
// # Output stream
//
// Discovery reads one line at a time and stops at the first match, so lines
// after the marker are never consumed by the matcher. Optionally the rest of
// the stream is forwarded to a log file so a chatty simulator cannot fill
// its pipe and stall.
package simulator
