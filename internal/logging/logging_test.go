package logging

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw    string
		want   zerolog.Level
		wantOK bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, true},
		{"DEBUG", zerolog.DebugLevel, true},
		{" warn ", zerolog.WarnLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"verbose", zerolog.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parseLevel(tt.raw)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("parseLevel(%q) = %v, %v; want %v, %v", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNewHonorsLevelEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	log := New(io.Discard)
	if log.GetLevel() != zerolog.ErrorLevel {
		t.Errorf("level = %v, want error", log.GetLevel())
	}
}
