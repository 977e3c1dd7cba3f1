package spec

import (
	"go.uber.org/zap"

	"github.com/jacentio/lattice/model"
)

// Config holds configuration for a Controller.
type Config struct {
	// CopyStrategy governs copying of byte slices passed into and out of specs.
	// Default: model.CopyAlways
	CopyStrategy model.CopyStrategy

	// Logger receives freeze and execution diagnostics.
	// Default: a no-op logger
	Logger *zap.SugaredLogger
}

// DefaultConfig returns a Config that copies all buffers and discards logs.
func DefaultConfig() Config {
	return Config{
		CopyStrategy: model.DefaultCopyStrategy,
		Logger:       zap.NewNop().Sugar(),
	}
}

// validate fills in defaults for unset or out-of-range values.
func (c *Config) validate() {
	if c.CopyStrategy < model.CopyAlways || c.CopyStrategy > model.CopyOnSet {
		c.CopyStrategy = model.DefaultCopyStrategy
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
}
