// Package logging builds the zerolog logger used for runtime events. The
// provisioning commands stay quiet at info level; the supervisor logs
// service lifecycle events as structured records.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel   = "PODUP_LOG_LEVEL"
	EnvLogNoColor = "PODUP_LOG_NOCOLOR"
	EnvLogJSON    = "PODUP_LOG_JSON"
)

// New builds a logger writing to w, honoring the PODUP_LOG_* environment
// overrides. The default is a human-readable console writer at info level;
// PODUP_LOG_JSON switches to raw JSON records.
func New(w io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		level = lvl
	}

	out := w
	if v, ok := parseBool(os.Getenv(EnvLogJSON)); !ok || !v {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.Kitchen,
			NoColor:    noColor(),
		}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Nop returns a disabled logger for tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

func noColor() bool {
	v, ok := parseBool(os.Getenv(EnvLogNoColor))
	return ok && v
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
