package pipeline

import (
	"github.com/spf13/afero"

	"github.com/benchsuite/reproduce/internal/console"
	"github.com/benchsuite/reproduce/internal/logging"
)

// Option configures an Executor.
type Option func(*executorConfig)

// WithFs sets the filesystem artifacts are checked against. Defaults to the
// OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(c *executorConfig) {
		c.fs = fs
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *executorConfig) {
		c.logger = logger
	}
}

// WithConsole sets where operator-facing progress lines go. Without it the
// executor is silent apart from the log.
func WithConsole(c *console.Console) Option {
	return func(cfg *executorConfig) {
		cfg.console = c
	}
}
