// Package requestcontext carries request-scoped values (caller, client,
// correlation id, clock) through a context so the registry service can read
// them without importing net/http.
//
//	caller := requestcontext.Caller(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests set them directly:
//
//	ctx = requestcontext.WithCaller(ctx, "0x5290...9EE7")
//	ctx = requestcontext.WithTime(ctx, fixed)
package requestcontext

import (
	"context"
	"time"

	"assetregistry/pkg/domain"
)

type key int

const (
	callerKey key = iota
	clientKey
	requestIDKey
	requestTimeKey
)

// Client describes the remote end of a request, for logs only. Agent is a
// short parsed form of UserAgent such as "Chrome 120.0 (Linux x86_64)".
type Client struct {
	IP        string
	UserAgent string
	Agent     string
}

func value[T any](ctx context.Context, k key) T {
	v, _ := ctx.Value(k).(T)
	return v
}

// Caller returns the authenticated identity, or "" for anonymous reads.
func Caller(ctx context.Context) domain.Identity {
	return value[domain.Identity](ctx, callerKey)
}

func WithCaller(ctx context.Context, caller domain.Identity) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

func ClientOf(ctx context.Context) Client {
	return value[Client](ctx, clientKey)
}

func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey, c)
}

func RequestID(ctx context.Context) string {
	return value[string](ctx, requestIDKey)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// Now returns the time pinned for this request. Outside a request (relay
// workers, tests without a pinned clock) it falls back to time.Now.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}
