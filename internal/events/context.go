package events

import (
	"context"
	"io"
	"sync"
)

type contextKey int

const (
	loggerKey contextKey = iota
	requestIDKey
	profileKey
)

var (
	defaultMu     sync.RWMutex
	defaultLogger = NewTestLogger(InfoLevel, "text", io.Discard)
)

// FromContext extracts logger from context.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok && l != nil {
		return l
	}
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// WithLogger adds logger to context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithRequestID adds request ID to context.
func WithRequestID(ctx context.Context, id string) context.Context {
	logger := FromContext(ctx).WithField("request_id", id)
	ctx = context.WithValue(ctx, requestIDKey, id)
	return WithLogger(ctx, logger)
}

// WithProfile tags the context with the session profile in use.
func WithProfile(ctx context.Context, profile string) context.Context {
	logger := FromContext(ctx).WithField("profile", profile)
	ctx = context.WithValue(ctx, profileKey, profile)
	return WithLogger(ctx, logger)
}

// GetRequestID retrieves request ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetProfile retrieves the profile from context.
func GetProfile(ctx context.Context) string {
	if p, ok := ctx.Value(profileKey).(string); ok {
		return p
	}
	return ""
}

// SetDefault sets the logger returned when a context carries none.
func SetDefault(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}
