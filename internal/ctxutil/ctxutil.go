// Package ctxutil provides shared context key accessors.
//
// Whatever surface admits a request (an HTTP handler, an MCP tool, an
// embedding application) stamps correlation data here; the workflow engine
// reads it back when writing audit entries. Both sides import ctxutil
// instead of each other.
package ctxutil

import "context"

type contextKey string

const (
	keyActorID   contextKey = "actor_id"
	keyRequestID contextKey = "request_id"
)

// WithActorID returns a new context carrying the acting user or agent id.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, keyActorID, actorID)
}

// ActorIDFromContext extracts the actor id from the context.
func ActorIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyActorID).(string); ok {
		return v
	}
	return ""
}

// WithRequestID returns a new context carrying the caller's request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestIDFromContext extracts the request id from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyRequestID).(string); ok {
		return v
	}
	return ""
}
