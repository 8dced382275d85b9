// Package logging configures the service's structured slog output and the
// request-scoped identifiers attached to every log line.
package logging

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"coursemedia/internal/observability/metrics"
)

// Config selects the log level, output format, and destination.
type Config struct {
	Level  string
	Format string
	Writer io.Writer
}

const (
	FormatJSON = "json"
	FormatText = "text"
)

// Init creates a logger from cfg and installs it as the process default.
func Init(cfg Config) *slog.Logger {
	logger := New(cfg)
	slog.SetDefault(logger)
	return logger
}

// New creates a structured slog.Logger. An empty format selects JSON; an
// empty writer selects stdout.
func New(cfg Config) *slog.Logger {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}
	options := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.ToLower(strings.TrimSpace(cfg.Format)) == FormatText {
		return slog.New(slog.NewTextHandler(writer, options))
	}
	return slog.New(slog.NewJSONHandler(writer, options))
}

func parseLevel(level string) slog.Level {
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

// WithComponent annotates a logger with the subsystem it belongs to.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With("component", component)
}

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	uploadIDKey  contextKey = "upload_id"
)

// ContextWithRequestID stores a non-empty request ID on the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, trimmed)
}

// RequestIDFromContext extracts the request ID stored on the context.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(requestIDKey).(string)
	return value, ok && value != ""
}

// ContextWithUploadID stores a non-empty caller-supplied upload ID on the
// context.
func ContextWithUploadID(ctx context.Context, id string) context.Context {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return ctx
	}
	return context.WithValue(ctx, uploadIDKey, trimmed)
}

// UploadIDFromContext extracts the upload ID stored on the context.
func UploadIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(uploadIDKey).(string)
	return value, ok && value != ""
}

// WithContext annotates a logger with the request and upload IDs held in the
// context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return nil
	}
	if requestID, ok := RequestIDFromContext(ctx); ok {
		logger = logger.With("request_id", requestID)
	}
	if uploadID, ok := UploadIDFromContext(ctx); ok {
		logger = logger.With("upload_id", uploadID)
	}
	return logger
}

// RequestLogger returns middleware that logs each completed HTTP request with
// method, path, status, duration, and remote address, annotated with any IDs
// carried by the request context.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := metrics.NewResponseRecorder(w)
			start := time.Now()
			next.ServeHTTP(recorder, r)

			WithContext(r.Context(), logger).Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}
