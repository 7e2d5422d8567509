//go:build integration

// Package containers starts the backing services integration suites run
// against. Each container starts at most once per test binary and is shared
// across suites; Ryuk removes them when the process exits.
package containers

import (
	"sync"
	"testing"
)

// lazy starts a container on first use and remembers the outcome.
type lazy[T any] struct {
	once  sync.Once
	value *T
	err   error
}

func (l *lazy[T]) get(t *testing.T, name string, start func() (*T, error)) *T {
	t.Helper()
	l.once.Do(func() { l.value, l.err = start() })
	if l.err != nil {
		t.Fatalf("failed to start %s container: %v", name, l.err)
	}
	return l.value
}

type Manager struct {
	postgres lazy[PostgresContainer]
	redis    lazy[RedisContainer]
	redpanda lazy[RedpandaContainer]
}

var (
	managerOnce sync.Once
	manager     *Manager
)

// GetManager returns the process-wide container manager.
func GetManager() *Manager {
	managerOnce.Do(func() { manager = &Manager{} })
	return manager
}

func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return m.postgres.get(t, "postgres", startPostgres)
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	return m.redis.get(t, "redis", startRedis)
}

func (m *Manager) GetRedpanda(t *testing.T) *RedpandaContainer {
	t.Helper()
	return m.redpanda.get(t, "redpanda", startRedpanda)
}
