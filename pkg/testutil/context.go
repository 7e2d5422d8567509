package testutil

import (
	"context"
	"net/http"
	"time"

	"assetregistry/pkg/domain"
	"assetregistry/pkg/requestcontext"
)

// WithCaller adds an authenticated identity to the request context.
// This simulates what the auth middleware does for a verified bearer token.
// Blank identities are not added.
func WithCaller(req *http.Request, identity string) *http.Request {
	id := domain.Identity(identity)
	if id.IsEmpty() {
		return req
	}
	return req.WithContext(requestcontext.WithCaller(req.Context(), id))
}

// CallerContext returns a background context acting as identity at a fixed time.
// Service tests use it in place of the HTTP middleware chain.
func CallerContext(identity domain.Identity, at time.Time) context.Context {
	ctx := requestcontext.WithCaller(context.Background(), identity)
	return requestcontext.WithTime(ctx, at)
}
