package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// newTestLogger creates a logger that writes to a buffer for verification.
func newTestLogger(t *testing.T) (Logger, *zaptest.Buffer) {
	t.Helper()
	buf := &zaptest.Buffer{}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)
	core := zapcore.NewCore(encoder, buf, zapcore.DebugLevel)
	return &zapLogger{z: zap.New(core)}, buf
}

func TestNewLogger_JSONFormat(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "info", Format: "json", OutputPaths: []string{"stdout"}})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNewLogger_ConsoleFormat(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "debug", Format: "console", OutputPaths: []string{"stdout"}})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNewLogger_DefaultsApplied(t *testing.T) {
	l, err := NewLogger(LogConfig{})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNopLogger_AllMethodsNoOp(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.Debug("msg")
		l.Info("msg")
		l.Warn("msg")
		l.Error("msg")
	})
}

func TestNopLogger_WithAndNamed_ReturnSelf(t *testing.T) {
	l := NewNopLogger()
	assert.Equal(t, l, l.With(String("k", "v")))
	assert.Equal(t, l, l.Named("child"))
}

func TestZapLogger_Levels_WriteLog(t *testing.T) {
	l, buf := newTestLogger(t)

	l.Debug("debug msg")
	l.Info("info msg")
	l.Warn("warn msg")
	l.Error("error msg")

	out := buf.String()
	assert.Contains(t, out, "debug msg")
	assert.Contains(t, out, "\"level\":\"debug\"")
	assert.Contains(t, out, "info msg")
	assert.Contains(t, out, "warn msg")
	assert.Contains(t, out, "\"level\":\"error\"")
}

func TestZapLogger_With_AddsFields(t *testing.T) {
	l, buf := newTestLogger(t)
	l.With(String("foo", "bar")).Info("msg")
	assert.Contains(t, buf.String(), "\"foo\":\"bar\"")
}

func TestZapLogger_Named_AddsLoggerName(t *testing.T) {
	l, buf := newTestLogger(t)
	l.Named("royalty").Info("msg")
	assert.Contains(t, buf.String(), "royalty")
}

func TestZapLogger_TypedFields(t *testing.T) {
	l, buf := newTestLogger(t)
	l.Info("msg",
		String("s", "v"),
		Int("i", 7),
		Int64("i64", 42),
		Float64("f", 1.5),
		Bool("b", true),
		Duration("d", 250*time.Millisecond),
		Any("a", map[string]int{"x": 1}),
	)
	out := buf.String()
	assert.Contains(t, out, "\"s\":\"v\"")
	assert.Contains(t, out, "\"i\":7")
	assert.Contains(t, out, "\"i64\":42")
	assert.Contains(t, out, "\"f\":1.5")
	assert.Contains(t, out, "\"b\":true")
}

func TestErr_FieldFormat(t *testing.T) {
	l, buf := newTestLogger(t)
	l.Error("op failed", Err(errors.New("boom")))
	assert.Contains(t, buf.String(), "\"error\":\"boom\"")
}

func TestErr_NilError(t *testing.T) {
	f := Err(nil)
	assert.Equal(t, "error", f.Key)
	assert.Equal(t, "<nil>", f.Value)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestSetDefault_UpdatesDefault(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	l := NewNopLogger()
	SetDefault(l)
	assert.Equal(t, l, Default())
}

func TestSetDefault_IgnoresNil(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	SetDefault(nil)
	assert.NotNil(t, Default())
}
