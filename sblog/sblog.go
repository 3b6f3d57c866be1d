// Package sblog provides the module's shared zap logger.
//
// hostimport's core.log writes through L(); by default that is a no-op
// logger so a library embedder pays nothing until they opt in via
// Configure.
package sblog

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	current  atomic.Pointer[zap.Logger]
	initOnce sync.Once
)

func ensureInit() {
	initOnce.Do(func() {
		current.Store(zap.NewNop())
	})
}

// L returns the current logger. Safe for concurrent use.
func L() *zap.Logger {
	ensureInit()
	return current.Load()
}

// Configure installs l as the module-wide logger. Typically called once by
// an embedder (cmd/sbcrun) before loading any module.
func Configure(l *zap.Logger) {
	ensureInit()
	if l == nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

// Development installs a human-readable development logger at the given
// level. Intended for cmd/sbcrun and tests.
func Development(debug bool) {
	cfg := zap.NewDevelopmentConfig()
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	Configure(l)
}
