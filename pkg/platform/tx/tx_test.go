package tx

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE assets (name TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	return db
}

func count(t *testing.T, db *sqlx.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM assets`))
	return n
}

func insert(ctx context.Context, tx *sqlx.Tx, name string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO assets (name) VALUES (?)`, name)
	return err
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithTx(ctx, nil))
	_, ok := From(ctx)
	assert.False(t, ok)
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("commits when fn succeeds", func(t *testing.T) {
		db := openDB(t)
		err := Run(ctx, db, func(ctx context.Context, tx *sqlx.Tx) error {
			got, ok := From(ctx)
			require.True(t, ok)
			assert.Same(t, tx, got)
			return insert(ctx, tx, "deed-1")
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count(t, db))
	})

	t.Run("rolls back when fn fails", func(t *testing.T) {
		db := openDB(t)
		boom := errors.New("validation failed")
		err := Run(ctx, db, func(ctx context.Context, tx *sqlx.Tx) error {
			require.NoError(t, insert(ctx, tx, "deed-1"))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, count(t, db))
	})

	t.Run("nested runs join the outer transaction", func(t *testing.T) {
		db := openDB(t)
		boom := errors.New("later step failed")
		err := Run(ctx, db, func(ctx context.Context, outer *sqlx.Tx) error {
			require.NoError(t, Run(ctx, db, func(ctx context.Context, inner *sqlx.Tx) error {
				assert.Same(t, outer, inner)
				return insert(ctx, inner, "deed-1")
			}))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, count(t, db), "inner write must roll back with the outer transaction")
	})
}
