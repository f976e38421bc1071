package logging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewLoggerFromCore(core), logs
}

func TestNewLogger_Formats(t *testing.T) {
	tests := []struct {
		name string
		cfg  LogConfig
	}{
		{"json", LogConfig{Level: LevelInfo, Format: "json", OutputPaths: []string{"stdout"}}},
		{"console", LogConfig{Level: LevelDebug, Format: "console", OutputPaths: []string{"stdout"}}},
		{"defaults", LogConfig{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLogger(tt.cfg)
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestNewLogger_EmptyOutputPathsRejected(t *testing.T) {
	l, err := NewLogger(LogConfig{OutputPaths: []string{}})
	assert.Error(t, err)
	assert.Nil(t, l)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestZapLogger_FieldsAreEncoded(t *testing.T) {
	l, logs := newObservedLogger(zapcore.DebugLevel)

	l.Info("indexed batch",
		String("index", "main"),
		Int("docs", 42),
		Int64("segment", 7),
		Uint64("hash", 99),
		Float64("tanimoto", 0.5),
		Bool("committed", true),
		Strings("terms", []string{"3", "7"}),
		Duration("took", time.Second),
		Err(errors.New("boom")),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "indexed batch", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "main", ctx["index"])
	assert.Equal(t, int64(42), ctx["docs"])
	assert.Equal(t, true, ctx["committed"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestZapLogger_WithAndNamed(t *testing.T) {
	l, logs := newObservedLogger(zapcore.DebugLevel)

	child := l.Named("index").With(String("backend", "local"))
	child.Warn("segment skipped")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "index", entry.LoggerName)
	assert.Equal(t, "local", entry.ContextMap()["backend"])
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
}

func TestZapLogger_LevelFiltering(t *testing.T) {
	l, logs := newObservedLogger(zapcore.WarnLevel)
	l.Debug("hidden")
	l.Info("hidden")
	l.Error("shown")
	assert.Equal(t, 1, logs.Len())
}

func TestSetLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := NewLogger(LogConfig{Level: LevelInfo, OutputPaths: []string{path}})
	require.NoError(t, err)
	child := l.Named("index")

	child.Debug("hidden")
	require.True(t, SetLevel(l, LevelDebug))
	child.Debug("shown")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")

	assert.False(t, SetLevel(NewNopLogger(), LevelDebug))
}

func TestErr_Nil(t *testing.T) {
	f := Err(nil)
	assert.Equal(t, "error", f.Key)
	assert.Equal(t, "<nil>", f.Value)
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.Debug("x")
		l.Info("x")
		l.Warn("x")
		l.Error("x")
		l.With(String("a", "b")).Named("n").Info("x")
	})
}

func TestDefaultAndContext(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	l, logs := newObservedLogger(zapcore.DebugLevel)
	SetDefault(nil)
	assert.Equal(t, prev, Default())

	SetDefault(l)
	FromContext(context.Background()).Info("from default")

	other, otherLogs := newObservedLogger(zapcore.DebugLevel)
	ctx := WithContext(context.Background(), other)
	FromContext(ctx).Info("from ctx")

	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, 1, otherLogs.Len())
}

//Personal.AI order the ending
