package store

import (
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// NewSQLite returns a store backed by an embedded SQLite database.
// SQLite has no row locks; open the database with a single connection
// (sqldb.OpenSQLite does) so write transactions are serialized.
func NewSQLite(db *sqlx.DB) *SQLStore {
	return &SQLStore{
		db: db,
		dialect: dialect{
			name:              "sqlite",
			isUniqueViolation: isSQLiteUniqueViolation,
		},
	}
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	// without extended result codes only the primary code is reported
	return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
		strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
}
