// Package logging builds the zap loggers used across rasch.
// Each subsystem logs under its own category name so output can be filtered
// with a plain grep on the "logger" field.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"rasch/internal/config"
)

// Category represents a log category/system
type Category string

const (
	CategoryEncoding Category = "encoding" // Grid and schedule fact generation
	CategorySolver   Category = "solver"   // Rule-set evaluation, model selection
	CategoryReplay   Category = "replay"   // Action replay against the environment
	CategoryPipeline Category = "pipeline" // End-to-end runs
	CategoryBench    Category = "bench"    // Benchmark batches
	CategoryWatch    Category = "watch"    // Rule-set file watching
	CategoryStore    Category = "store"    // Run history database
)

// ParseLevel maps a configured level name onto a zap level.
// Unknown names fall back to info.
func ParseLevel(name string) zapcore.Level {
	switch strings.ToLower(name) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds the root logger. verbose forces debug level regardless of cfg.
// When cfg.File is set, output goes to that file in addition to stderr.
func New(cfg config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(ParseLevel(cfg.Level))
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		zc.OutputPaths = append(zc.OutputPaths, cfg.File)
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// For returns a child logger named after category. A nil logger yields a no-op.
func For(logger *zap.Logger, category Category) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.Named(string(category))
}
