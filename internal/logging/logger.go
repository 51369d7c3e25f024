// Package logging provides category-scoped loggers for the script pipeline.
// Logging is off by default so the library stays silent inside host
// processes; hosts opt in with Configure and can gate individual categories
// to keep noisy subsystems quiet.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a pipeline subsystem.
type Category string

const (
	CategoryEngine    Category = "engine"    // compile, cache and invoke pipeline
	CategoryGenerator Category = "generator" // unit generation and directive extraction
	CategoryTemplates Category = "templates" // transpiler and render facade
	CategoryFiles     Category = "files"     // template file resolution and watching
)

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	enabled map[Category]bool // nil means every category is enabled
)

// Configure installs the process logger. A nil logger silences everything.
// When categories are given, only those categories emit output.
func Configure(l *zap.Logger, categories ...Category) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		root = zap.NewNop()
		enabled = nil
		return
	}
	root = l
	if len(categories) == 0 {
		enabled = nil
		return
	}
	enabled = make(map[Category]bool, len(categories))
	for _, c := range categories {
		enabled[c] = true
	}
}

// Development switches on a development-encoded logger at debug level for
// every category. Intended for tests and local debugging.
func Development() {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	l, err := cfg.Build()
	if err != nil {
		return
	}
	Configure(l)
}

// L returns the logger for a category, a nop when the category is gated off.
func L(c Category) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if enabled != nil && !enabled[c] {
		return zap.NewNop()
	}
	return root.Named(string(c))
}
