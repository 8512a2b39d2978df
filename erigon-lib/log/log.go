// Package log provides the leveled, keyval-structured logger every stage,
// the Collector and the Sync driver log through. The teacher's own
// log/v3 package is an internal erigon-lib wrapper that isn't independently
// fetchable; this module wires the same call shape
// (logger.Info(msg, "k1", v1, "k2", v2, ...)) onto go.uber.org/zap, the
// structured logger already present in the teacher's dependency graph.
package log

import (
	"fmt"

	"go.uber.org/zap"
)

// Logger is the minimal structured-logging surface the core depends on.
// Kept as an interface so tests can substitute a no-op/buffering logger
// without pulling in zap.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// New builds a production-configured zap logger wrapped in the Logger
// interface. Errors constructing the underlying zap core are treated the
// way the teacher treats unrecoverable startup failures: panic, since there
// is no sensible degraded mode for "logging doesn't work".
func New() Logger {
	l, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("log: failed to build zap logger: %v", err))
	}
	return &zapLogger{s: l.Sugar()}
}

// NewNop returns a Logger that discards everything, for tests.
func NewNop() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}

func (l *zapLogger) Debug(msg string, keyvals ...interface{}) { l.s.Debugw(msg, keyvals...) }
func (l *zapLogger) Info(msg string, keyvals ...interface{})  { l.s.Infow(msg, keyvals...) }
func (l *zapLogger) Warn(msg string, keyvals ...interface{})  { l.s.Warnw(msg, keyvals...) }
func (l *zapLogger) Error(msg string, keyvals ...interface{}) { l.s.Errorw(msg, keyvals...) }
