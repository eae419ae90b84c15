package loggingtest

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// NewObservedLogger creates a logger for tests that outputs to t.Logf and
// also records every entry so tests can assert on log lines.
func NewObservedLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	tee := zapcore.NewTee(zaptest.NewLogger(t).Core(), core)
	return zap.New(tee), logs
}
