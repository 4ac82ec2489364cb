// Package logger wraps log/slog with the request-scoped fields and event
// helpers used across the service.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const (
	// RequestIDKey carries the X-Request-ID of the current request.
	RequestIDKey contextKey = "request_id"
	// UserIDKey carries the authenticated user's ID.
	UserIDKey contextKey = "user_id"
)

// Logger is a slog.Logger with domain helpers.
type Logger struct {
	*slog.Logger
}

// New returns a text logger at debug level for "development" and a JSON
// logger at info level for every other environment.
func New(env string) *Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var handler slog.Handler
	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// WithContext attaches the request and user IDs found in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	out := l
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		out = out.WithRequestID(requestID)
	}
	if userID, ok := ctx.Value(UserIDKey).(string); ok && userID != "" {
		out = out.WithUserID(userID)
	}
	return out
}

func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{Logger: l.With(slog.String("request_id", requestID))}
}

func (l *Logger) WithUserID(userID string) *Logger {
	return &Logger{Logger: l.With(slog.String("user_id", userID))}
}

// HTTPRequest logs one served request.
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// Incident logs a request that failed for a reason other than bad input:
// storage, database or upload failures answered with a 5xx.
func (l *Logger) Incident(method, path, kind string, status int, err error, clientIP string) {
	l.Error("http_incident",
		slog.String("method", method),
		slog.String("path", path),
		slog.String("kind", kind),
		slog.Int("status", status),
		slog.String("error", err.Error()),
		slog.String("client_ip", clientIP),
	)
}

// Transition logs an applied workflow state change.
func (l *Logger) Transition(aggregate, id, transition, from, to, actorID string) {
	l.Info("workflow_transition",
		slog.String("aggregate", aggregate),
		slog.String("id", id),
		slog.String("transition", transition),
		slog.String("from", from),
		slog.String("to", to),
		slog.String("actor_id", actorID),
	)
}

// UploadError logs an evidence gateway failure.
func (l *Logger) UploadError(folder, fileName string, err error) {
	l.Error("upload_error",
		slog.String("folder", folder),
		slog.String("file_name", fileName),
		slog.String("error", err.Error()),
	)
}

// DatabaseError logs a failed background query.
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
