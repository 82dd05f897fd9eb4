// Package requestcontext provides transport-independent context accessors for
// transaction-scoped values.
//
// The ledger never reads the wall clock on its own: the submitter of a
// transaction fixes "now" with WithTime and every component reads it back with
// Now, so one transaction observes a single instant.
//
//	ctx = requestcontext.WithTime(ctx, blockTime)
//	ctx = requestcontext.WithRequestID(ctx, uuid.NewString())
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the transaction time from context.
// Falls back to time.Now() if not set (workers, CLI, ad hoc tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// HasTime reports whether a transaction time was injected.
func HasTime(ctx context.Context) bool {
	_, ok := ctx.Value(ContextKeyRequestTime).(time.Time)
	return ok
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
