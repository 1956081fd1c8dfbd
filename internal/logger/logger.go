package logger

import (
	"io"
	"log/slog"
	"strings"
)

const redacted = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"new_password":  {},
	"refresh_token": {},
	"access_token":  {},
	"token":         {},
	"authorization": {},
}

// New builds the process logger. format is "json" or "pretty"; level is one
// of debug, info, warn or error and defaults to info.
func New(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	if strings.EqualFold(format, "json") {
		opts.ReplaceAttr = redact
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(NewPrettyHandler(w, opts))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	return a
}
