package log

import (
	"log/slog"
	"strings"
)

// LevelFromString parses a log level from its string representation. The
// match is case-insensitive. Unrecognised strings return slog.LevelInfo so a
// typo in a config file never silences logging entirely.
func LevelFromString(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
