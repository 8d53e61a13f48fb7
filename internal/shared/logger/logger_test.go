package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{name: "json info", level: "info", format: "json"},
		{name: "console debug", level: "debug", format: "console"},
		{name: "unknown level falls back to info", level: "verbose", format: "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := NewLogger(tt.level, tt.format)
			require.NoError(t, err)
			require.NotNil(t, log)
			log.Debug("debug message", "key", "value")
		})
	}
}

func TestLogger_With(t *testing.T) {
	log := FromZap(zaptest.NewLogger(t))
	child := log.With("job", "reminder")

	assert.NotSame(t, log, child)
	child.Info("tick", "companies", 3)
	child.Warn("slow tick", "duration_ms", 1200)
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	log.Info("discarded")
	log.Error("discarded", "error", "boom")
}
