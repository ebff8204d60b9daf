package env

import (
	"log/slog"
	"testing"
	"time"
)

func TestGet(t *testing.T) {
	t.Setenv("STL_TEST_VALUE", "set")
	if got := Get("STL_TEST_VALUE", "default"); got != "set" {
		t.Errorf("got %q, want set", got)
	}
	if got := Get("STL_TEST_MISSING", "default"); got != "default" {
		t.Errorf("got %q, want default", got)
	}
}

func TestTypedGetters(t *testing.T) {
	t.Setenv("STL_TEST_DURATION", "90s")
	t.Setenv("STL_TEST_BAD_DURATION", "soon")
	t.Setenv("STL_TEST_INT", "12")
	t.Setenv("STL_TEST_BOOL", "true")

	if got := GetDuration("STL_TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("duration = %v", got)
	}
	if got := GetDuration("STL_TEST_BAD_DURATION", time.Second); got != time.Second {
		t.Errorf("malformed duration should fall back, got %v", got)
	}
	if got := GetInt("STL_TEST_INT", 3); got != 12 {
		t.Errorf("int = %d", got)
	}
	if got := GetBool("STL_TEST_BOOL", false); !got {
		t.Error("bool = false")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{" info ", slog.LevelInfo},
		{"info+2", slog.LevelInfo + 2},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Setenv("LOG_LEVEL", tt.raw)
		if got := ParseLogLevel(slog.LevelInfo); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
