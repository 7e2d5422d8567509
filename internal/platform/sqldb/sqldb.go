// Package sqldb opens the registry's SQL databases and applies the embedded schema.
package sqldb

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver "pgx"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver "postgres"
	migrate "github.com/rubenv/sql-migrate"
	_ "modernc.org/sqlite" // sqlite driver
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Dialect selects the driver, migration set and sql-migrate dialect.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func (d Dialect) migrateDialect() string {
	if d == SQLite {
		return "sqlite3"
	}
	return "postgres"
}

// Postgres driver names accepted by OpenPostgres.
const (
	DriverPgx = "pgx"
	DriverPQ  = "postgres"
)

// PoolConfig selects the Postgres driver and bounds its connection pool.
// An empty Driver means pgx.
type PoolConfig struct {
	Driver          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenPostgres connects to Postgres and verifies the connection.
func OpenPostgres(ctx context.Context, url string, pool PoolConfig) (*sqlx.DB, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	driver := pool.Driver
	switch driver {
	case "":
		driver = DriverPgx
	case DriverPgx, DriverPQ:
	default:
		return nil, fmt.Errorf("unknown postgres driver %q (pgx|postgres)", driver)
	}
	db, err := sqlx.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres (%s): %w", driver, err)
	}
	return db, nil
}

// OpenSQLite opens (creating if needed) the database file at path.
// The pool is limited to one connection so write transactions serialize.
func OpenSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	db, err := sqlx.Open(string(SQLite), dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// Migrate applies all pending up migrations for dialect and returns how many ran.
func Migrate(ctx context.Context, db *sqlx.DB, d Dialect, logger *slog.Logger) (int, error) {
	source := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationsFS,
		Root:       "migrations/" + string(d),
	}
	n, err := migrate.ExecContext(ctx, db.DB, d.migrateDialect(), source, migrate.Up)
	if err != nil {
		return n, fmt.Errorf("apply %s migrations: %w", d, err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "schema migrations applied", "dialect", string(d), "count", n)
	}
	return n, nil
}
