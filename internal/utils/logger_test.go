package utils

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/rongwang/library-server/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"off":     zerolog.Disabled,
		"":        zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"none":    zerolog.Disabled,
		"Trace":   zerolog.TraceLevel,
		"fatal":   zerolog.FatalLevel,
	}
	for raw, want := range cases {
		got, ok := ParseLevel(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}

	got, ok := ParseLevel("loud")
	assert.False(t, ok)
	assert.Equal(t, zerolog.InfoLevel, got)
}

func TestNewLoggerToFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LogConfig{Level: "warn"})

	logger.Info().Msg("hidden")
	logger.Warn().Str("book", "Clean Code").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"book":"Clean Code"`)
	assert.Contains(t, out, `"level":"warn"`)
}
