// Package logging provides structured logging for reproduction runs.
//
// It wraps Go's log/slog with a JSON handler and persistent attributes so
// every record written during a run carries the phase (build, simulator,
// bench), the stage being evaluated or the simulator session it belongs to.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/repo/target/reproduce/logs", "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	stageLog := logger.WithPhase("build").WithStage("rom")
//	stageLog.Info("stage satisfied, skipping", "artifacts", 1)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"stage satisfied, skipping","phase":"build","stage":"rom","artifacts":1}
//
// # Rotation
//
// [RotatingWriter] is a size-bounded file writer. It backs the debug log and
// is reused for the simulator's console output once the startup marker has
// been consumed.
//
// All types in this package are safe for concurrent use.
package logging
