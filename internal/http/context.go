package http

import (
	"context"
	"log/slog"

	"github.com/example/quickmeet/internal/application"
	"github.com/example/quickmeet/internal/logging"
)

type contextKey string

const (
	callerContextKey  contextKey = "caller"
	eventIDContextKey contextKey = "event_id"
)

// ContextWithCaller returns a derived context containing the authenticated caller.
func ContextWithCaller(ctx context.Context, caller application.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// CallerFromContext extracts the authenticated caller from context if available.
func CallerFromContext(ctx context.Context) (application.Caller, bool) {
	caller, ok := ctx.Value(callerContextKey).(application.Caller)
	return caller, ok
}

// ContextWithEventID injects the event identifier resolved from the request path.
func ContextWithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, eventIDContextKey, eventID)
}

// EventIDFromContext extracts an event identifier previously associated with the context.
func EventIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(eventIDContextKey).(string)
	return id, ok
}

// ContextWithLogger returns a derived context carrying the request logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext extracts the request logger from context if available.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
