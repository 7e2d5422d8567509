package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"assetregistry/internal/platform/config"
	kafkaclient "assetregistry/internal/platform/kafka"
	redisclient "assetregistry/internal/platform/redis"
	"assetregistry/internal/platform/sqldb"
	"assetregistry/internal/registry/metrics"
	"assetregistry/internal/registry/publishers/bus"
	kafkapub "assetregistry/internal/registry/publishers/kafka"
	redispub "assetregistry/internal/registry/publishers/redis"
	"assetregistry/internal/registry/relay"
	"assetregistry/internal/registry/service"
	"assetregistry/internal/registry/store"
	"assetregistry/pkg/platform/circuit"
)

// registryStore is what the service and the relay need from one backend.
type registryStore interface {
	service.Store
	relay.EventSource
}

type healthCheck func(ctx context.Context) error

type openedStore struct {
	store registryStore
	db    *sqlx.DB
}

func (s *openedStore) close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *openedStore) check(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*openedStore, error) {
	switch cfg.Store.Backend {
	case config.StoreSQLite:
		db, err := sqldb.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		if _, err := sqldb.Migrate(ctx, db, sqldb.SQLite, log); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &openedStore{store: store.NewSQLite(db), db: db}, nil
	case config.StorePostgres:
		db, err := sqldb.OpenPostgres(ctx, cfg.Database.URL, sqldb.PoolConfig{
			Driver:          cfg.Database.Driver,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		if _, err := sqldb.Migrate(ctx, db, sqldb.Postgres, log); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &openedStore{store: store.NewPostgres(db), db: db}, nil
	default:
		log.Warn("using in-memory store; registry state is lost on restart")
		return &openedStore{store: store.NewInMemory()}, nil
	}
}

type openedSinks struct {
	publishers []relay.Publisher
	checks     map[string]healthCheck
	closers    []func()
}

func (s *openedSinks) close() {
	for _, c := range s.closers {
		c()
	}
}

// openSinks connects every configured event sink. The in-process bus that
// feeds the SSE stream is always present.
func openSinks(ctx context.Context, cfg *config.Config, hub *bus.Hub, log *slog.Logger) (*openedSinks, error) {
	sinks := &openedSinks{
		publishers: []relay.Publisher{hub},
		checks:     map[string]healthCheck{},
	}

	kc, err := kafkaclient.New(ctx, cfg.Kafka)
	if err != nil {
		return nil, err
	}
	if kc != nil {
		sinks.closers = append(sinks.closers, kc.Close)
		pub, err := kafkapub.New(kc, cfg.Kafka.Topic)
		if err != nil {
			sinks.close()
			return nil, err
		}
		sinks.publishers = append(sinks.publishers, pub)
		sinks.checks["kafka"] = kc.Health
		log.Info("kafka sink enabled", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		sinks.close()
		return nil, err
	}
	if rc != nil {
		sinks.closers = append(sinks.closers, func() { _ = rc.Close() })
		pub, err := redispub.New(rc, cfg.Redis.EventsChannel)
		if err != nil {
			sinks.close()
			return nil, err
		}
		sinks.publishers = append(sinks.publishers, pub)
		sinks.checks["redis"] = rc.Health
		log.Info("redis sink enabled", "channel", cfg.Redis.EventsChannel)
		if n, err := rc.Listeners(ctx); err == nil && n == 0 {
			log.Warn("no subscribers on redis events channel yet; pub/sub does not retain messages", "channel", cfg.Redis.EventsChannel)
		}
	}
	return sinks, nil
}

func newRelayGroup(source relay.EventSource, publishers []relay.Publisher, cfg config.RelayConfig, m *metrics.Metrics, log *slog.Logger) (*relay.Group, error) {
	workers := make([]*relay.Worker, 0, len(publishers))
	for _, p := range publishers {
		w, err := relay.New(source, p,
			relay.WithInterval(cfg.Interval),
			relay.WithBatchSize(cfg.BatchSize),
			relay.WithLogger(log.With("sink", p.Name())),
			relay.WithMetrics(m),
			relay.WithBreaker(circuit.New(p.Name(),
				circuit.WithFailureThreshold(cfg.FailureThreshold),
				circuit.WithCooldown(cfg.Cooldown),
			)),
		)
		if err != nil {
			return nil, fmt.Errorf("create %s relay: %w", p.Name(), err)
		}
		workers = append(workers, w)
	}
	return relay.NewGroup(workers...), nil
}
