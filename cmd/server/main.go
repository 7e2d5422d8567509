package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"assetregistry/internal/platform/config"
	"assetregistry/internal/platform/httpserver"
	"assetregistry/internal/platform/logger"
	"assetregistry/internal/platform/otel"
	"assetregistry/internal/registry/metrics"
	"assetregistry/internal/registry/publishers/bus"
	"assetregistry/internal/registry/service"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal/registry.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "assetregistry: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()

	shutdownTracing, err := otel.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	m := metrics.New(prometheus.DefaultRegisterer)

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	hub := bus.NewHub(cfg.Relay.StreamBuffer)
	defer hub.Close()

	sinks, err := openSinks(ctx, cfg, hub, log)
	if err != nil {
		return err
	}
	defer sinks.close()
	sinks.checks["store"] = st.check

	group, err := newRelayGroup(st.store, sinks.publishers, cfg.Relay, m, log)
	if err != nil {
		return err
	}

	svc, err := service.New(st.store,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithCommitNotifier(group),
	)
	if err != nil {
		return fmt.Errorf("create registry service: %w", err)
	}

	router := newRouter(cfg, svc, hub, sinks.checks, log)
	srv := httpserver.New(cfg.Addr, otelhttp.NewHandler(router, "assetregistry"))

	log.Info("starting assetregistry",
		"addr", cfg.Addr,
		"store", string(cfg.Store.Backend),
		"environment", cfg.Environment,
		"sinks", group.Len(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return group.Run(gctx) })
	g.Go(func() error { return httpserver.Run(gctx, srv, cfg.ShutdownTimeout, log) })
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("assetregistry stopped")
	return nil
}
