package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jwttoken "assetregistry/internal/jwt_token"
	"assetregistry/internal/platform/config"
	"assetregistry/internal/registry/handler"
	"assetregistry/pkg/platform/httputil"
	"assetregistry/pkg/platform/middleware/auth"
	"assetregistry/pkg/platform/middleware/metadata"
	"assetregistry/pkg/platform/middleware/request"
	"assetregistry/pkg/platform/middleware/requesttime"
)

const healthTimeout = 2 * time.Second

func newRouter(cfg *config.Config, svc handler.Service, stream handler.EventStream, checks map[string]healthCheck, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(log))
	r.Use(request.Recovery(log))

	r.Get("/health", healthHandler(checks))
	r.Handle("/metrics", promhttp.Handler())

	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer)
	requireAuth := auth.RequireAuth(jwttoken.NewValidator(tokens), log)
	handler.New(svc, stream, log).Register(r, requireAuth)
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthHandler reports 503 when any dependency check fails.
func healthHandler(checks map[string]healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
