package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" DEBUG ": slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewFiltersByLevelWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn)

	logger.Info("Household created", "household_id", "h1")
	assert.Empty(t, buf.String())

	logger.Warn("Cache push dropped", "collection", "foodItems")
	assert.Contains(t, buf.String(), "Cache push dropped")
	assert.Contains(t, buf.String(), "collection=foodItems")
	assert.NotContains(t, buf.String(), "\x1b[")
}
