// Package logging builds the zap loggers used across sjfmt. Every component
// logs through a named child logger for its category, and categories can be
// switched off individually in the config.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"straitjacket/internal/config"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config loading
	CategoryEngine   Category = "engine"   // Alignment engine tracing
	CategoryRunner   Category = "runner"   // File discovery and batch formatting
	CategoryServer   Category = "server"   // HTTP daemon
	CategoryWatch    Category = "watch"    // Filesystem watcher
	CategoryCache    Category = "cache"    // Formatted-file cache
	CategoryUpstream Category = "upstream" // External line formatter
)

// Categories lists every known category.
var Categories = []Category{
	CategoryBoot, CategoryEngine, CategoryRunner, CategoryServer,
	CategoryWatch, CategoryCache, CategoryUpstream,
}

// New builds the root logger from cfg. verbose forces debug level.
func New(cfg config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Sampling = nil
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch cfg.Format {
	case "", "console":
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		zc.DisableStacktrace = true
	case "json":
		zc.Encoding = "json"
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		var err error
		if level, err = zapcore.ParseLevel(cfg.Level); err != nil {
			return nil, fmt.Errorf("failed to parse log level: %w", err)
		}
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	if cfg.File != "" {
		zc.OutputPaths = []string{cfg.File}
		zc.ErrorOutputPaths = []string{cfg.File}
	}

	logger, err := zc.Build(WithCategories(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// WithCategories drops entries of categories disabled in cfg.
func WithCategories(cfg config.LoggingConfig) zap.Option {
	disabled := make(map[string]bool)
	for name := range cfg.Categories {
		if !cfg.IsCategoryEnabled(name) {
			disabled[name] = true
		}
	}
	return zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		if len(disabled) == 0 {
			return core
		}
		return &categoryCore{Core: core, disabled: disabled}
	})
}

// For returns the child logger of category c.
func For(l *zap.Logger, c Category) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.Named(string(c))
}

type categoryCore struct {
	zapcore.Core
	disabled map[string]bool
}

func (c *categoryCore) With(fields []zapcore.Field) zapcore.Core {
	return &categoryCore{Core: c.Core.With(fields), disabled: c.disabled}
}

func (c *categoryCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.disabled[rootName(ent.LoggerName)] {
		return ce
	}
	return c.Core.Check(ent, ce)
}

// rootName is the first segment of a dotted logger name.
func rootName(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}
