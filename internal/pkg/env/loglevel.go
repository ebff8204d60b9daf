package env

import (
	"log/slog"
	"strings"
)

// ParseLogLevel reads LOG_LEVEL using slog's level names, so "debug",
// "WARN" and offsets such as "info+2" are accepted. Unset or invalid values
// yield fallback.
func ParseLogLevel(fallback slog.Level) slog.Level {
	raw := strings.TrimSpace(Get("LOG_LEVEL", ""))
	if raw == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return fallback
	}
	return level
}
