// Package logger configures the process-wide slog logger.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey struct{}

var defaultLogger *slog.Logger

// Init installs the global logger with the given level and format
// ("json" or "text").
func Init(level, format string) *slog.Logger {
	return InitWriter(os.Stdout, level, format)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
	return defaultLogger
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the configured logger, falling back to slog's default.
func Get() *slog.Logger {
	if defaultLogger == nil {
		return slog.Default()
	}
	return defaultLogger
}

// WithUserID attaches the authenticated user to ctx for later log lines.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// WithContext returns a logger carrying the request ID and user ID found
// in ctx.
func WithContext(ctx context.Context) *slog.Logger {
	l := Get()
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		l = l.With("request_id", reqID)
	}
	if userID, ok := ctx.Value(ctxKey{}).(string); ok && userID != "" {
		l = l.With("user_id", userID)
	}
	return l
}
