// Package auth authenticates mutating requests with bearer tokens.
package auth

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"assetregistry/pkg/domain"
	dErrors "assetregistry/pkg/domain-errors"
	"assetregistry/pkg/platform/httputil"
	"assetregistry/pkg/requestcontext"
)

// JWTValidator verifies a raw bearer token.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims is what the middleware needs from a verified token.
type JWTClaims struct {
	Subject   string // caller address
	JTI       string
	ExpiresAt time.Time
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireAuth resolves the caller from the bearer token and rejects the
// request with 401 when it cannot. The token subject must be an account
// address; the caller is stored in checksum form.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reject := func(reason, description string, attrs ...any) {
				attrs = append(attrs,
					"reason", reason,
					"client_ip", requestcontext.ClientOf(ctx).IP,
					"request_id", requestcontext.RequestID(ctx),
				)
				logger.WarnContext(ctx, "unauthorized request", attrs...)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, description))
			}

			token, ok := bearerToken(r)
			if !ok {
				reject("missing token", "Missing or invalid Authorization header")
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				reject("invalid token", "Invalid or expired token", "error", err)
				return
			}
			caller, err := domain.ParseAddress(claims.Subject)
			if err != nil {
				reject("subject is not an address", "Token subject is not a valid identity", "jti", claims.JTI)
				return
			}

			logger.DebugContext(ctx, "caller authenticated",
				"caller", caller.String(),
				"jti", claims.JTI,
				"expires_at", claims.ExpiresAt,
				"request_id", requestcontext.RequestID(ctx),
			)
			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, caller)))
		})
	}
}
