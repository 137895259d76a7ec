package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, log.InfoLevel)
	require.NotNil(t, logger)

	logger.Info("test message")
	assert.NotZero(t, buf.Len(), "logger should have written output")
}

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   log.Level
		logFunc func(*log.Logger)
		wantLog bool
	}{
		{
			name:    "info at info level",
			level:   log.InfoLevel,
			logFunc: func(l *log.Logger) { l.Info("test") },
			wantLog: true,
		},
		{
			name:    "debug at info level",
			level:   log.InfoLevel,
			logFunc: func(l *log.Logger) { l.Debug("test") },
			wantLog: false,
		},
		{
			name:    "debug at debug level",
			level:   log.DebugLevel,
			logFunc: func(l *log.Logger) { l.Debug("test") },
			wantLog: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(newLogger(&buf, tt.level))
			assert.Equal(t, tt.wantLog, buf.Len() > 0)
		})
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	prog := newProgress(newLogger(&buf, log.InfoLevel))
	require.NotNil(t, prog)

	time.Sleep(10 * time.Millisecond)
	prog.done("test completed")

	assert.Contains(t, buf.String(), "test completed")
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	h := &logHooks{logger: newLogger(&buf, log.DebugLevel)}
	ctx := context.Background()

	h.OnCompileStart(ctx, "libarduino.so", "g++")
	h.OnCompileComplete(ctx, "libarduino.so", "g++", 1500*time.Millisecond, nil)
	h.OnTestStart(ctx, "unittest_basic.bin")
	h.OnTestComplete(ctx, "unittest_basic.bin", time.Millisecond, nil)
	h.OnInstallStart(ctx, "Adafruit BusIO")
	h.OnInstallComplete(ctx, "Adafruit BusIO", time.Second, nil)
	h.OnCacheMiss(ctx, "asan")
	h.OnCacheSet(ctx, "asan", 1)
	h.OnCacheHit(ctx, "asan")

	out := buf.String()
	for _, want := range []string{"libarduino.so", "unittest_basic.bin", "Adafruit BusIO", "probe cache hit"} {
		assert.Contains(t, out, want)
	}
}

func TestLogHooksSilentAtInfo(t *testing.T) {
	var buf bytes.Buffer
	h := &logHooks{logger: newLogger(&buf, log.InfoLevel)}
	h.OnCompileStart(context.Background(), "libarduino.so", "g++")
	assert.Empty(t, buf.String(), "hooks log at debug level only")
}
