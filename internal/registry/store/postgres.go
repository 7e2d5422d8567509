package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// pgUniqueViolation is the Postgres SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// NewPostgres returns a store backed by Postgres. db may use either the pgx
// or the lib/pq driver; the schema is applied by sqldb.Migrate.
func NewPostgres(db *sqlx.DB) *SQLStore {
	return &SQLStore{
		db: db,
		dialect: dialect{
			name:              "postgres",
			lockClause:        " FOR UPDATE",
			isUniqueViolation: isPGUniqueViolation,
		},
	}
}

func isPGUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}
