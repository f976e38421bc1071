// Package testutil provides helpers shared by package tests.
package testutil

import (
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
)

// RecordingLogger is a logging.Logger that keeps every entry at or above its
// level so tests can assert on what was logged.
type RecordingLogger struct {
	logging.Logger
	logs *observer.ObservedLogs
}

// LogMessage is a single captured entry.
type LogMessage struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// NewRecordingLogger records entries at debug level and above.
func NewRecordingLogger() *RecordingLogger {
	return NewRecordingLoggerAt(zapcore.DebugLevel)
}

func NewRecordingLoggerAt(level zapcore.Level) *RecordingLogger {
	core, logs := observer.New(level)
	return &RecordingLogger{Logger: logging.NewLoggerFromCore(core), logs: logs}
}

// Messages returns a copy of the captured entries in log order. Child loggers
// created with With or Named write to the same record.
func (r *RecordingLogger) Messages() []LogMessage {
	entries := r.logs.All()
	out := make([]LogMessage, len(entries))
	for i, e := range entries {
		out[i] = LogMessage{Level: e.Level.String(), Message: e.Message, Fields: e.ContextMap()}
	}
	return out
}

// HasMessage reports whether msg was logged at level.
func (r *RecordingLogger) HasMessage(level, msg string) bool {
	for _, m := range r.Messages() {
		if m.Level == level && m.Message == msg {
			return true
		}
	}
	return false
}

// Clear drops the captured entries.
func (r *RecordingLogger) Clear() {
	r.logs.TakeAll()
}

//Personal.AI order the ending
