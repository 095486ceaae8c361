// Package logging provides categorized zap loggers for bayzzer. Each
// subsystem logs under its own named logger so campaign output can be
// filtered per category.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a logging subsystem.
type Category string

const (
	CategoryBoot       Category = "boot"       // startup and wiring
	CategoryDerivation Category = "derivation" // fixpoint solver
	CategoryModel      Category = "model"      // probabilistic model builder
	CategoryInference  Category = "inference"  // variable elimination queries
	CategoryCampaign   Category = "campaign"   // round loop
	CategoryFeedback   Category = "feedback"   // evidence updates
	CategoryReport     Category = "report"     // result persistence
)

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	loggers = make(map[Category]*zap.Logger)
)

// Initialize builds the process-wide base logger. Verbose enables debug
// level. Safe to call more than once; later calls replace the base.
func Initialize(verbose bool) error {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	SetBase(logger)
	return nil
}

// SetBase installs a base logger directly. Tests use this with a nop or
// observed logger.
func SetBase(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = logger
	loggers = make(map[Category]*zap.Logger)
}

// Get returns the named logger for a category.
func Get(c Category) *zap.Logger {
	mu.RLock()
	if l, ok := loggers[c]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[c]; ok {
		return l
	}
	l := base.Named(string(c))
	loggers[c] = l
	return l
}

// Sync flushes the base logger. Best effort at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}
