package utils

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rongwang/library-server/internal/config"
)

// NewLogger creates the application logger. Output is JSON unless Pretty is set.
func NewLogger(cfg config.LogConfig) zerolog.Logger {
	return NewLoggerTo(os.Stdout, cfg)
}

// NewLoggerTo is NewLogger with an explicit writer
func NewLoggerTo(w io.Writer, cfg config.LogConfig) zerolog.Logger {
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	level, _ := ParseLevel(cfg.Level)
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// ParseLevel maps a config string onto a zerolog level, accepting the
// "warning", "off" and "none" aliases. Empty and unknown values fall back to
// info; unknown ones report false.
func ParseLevel(raw string) (zerolog.Level, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "":
		return zerolog.InfoLevel, true
	case "warning":
		name = zerolog.WarnLevel.String()
	case "off", "none":
		name = "disabled"
	}

	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel, false
	}
	return level, true
}
