package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger writes JSON lines to stdout. Debug records are kept only in dev.
func NewLogger(env string) *slog.Logger {
	return newLogger(os.Stdout, env)
}

func newLogger(w io.Writer, env string) *slog.Logger {
	level := slog.LevelInfo
	if strings.EqualFold(env, "dev") {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			// never let a credential reach the log sink
			switch a.Key {
			case "password", "password_hash", "token", "access_token", "refresh_token":
				return slog.String(a.Key, "[redacted]")
			}
			return a
		},
	}).WithAttrs([]slog.Attr{slog.String("service", "taskhub"), slog.String("env", env)})

	return slog.New(NewContextHandler(handler))
}
