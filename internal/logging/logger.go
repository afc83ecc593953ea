// Package logging builds the zap loggers handed to every component.
package logging

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// VerboseEnv turns on debug logging when set to "true".
const VerboseEnv = "VERBOSE_LOGS"

// New returns a zap logger. When verbose is true, uses development config
// (human-readable, debug level); otherwise uses production config (JSON, info level).
func New(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// NewFile returns a logger like New that appends to path instead of
// stderr. The chat UI uses it so log lines do not corrupt the screen.
func NewFile(verbose bool, path string) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}

// VerboseFromEnv reports whether VERBOSE_LOGS asks for debug output.
func VerboseFromEnv() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(VerboseEnv)), "true")
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
