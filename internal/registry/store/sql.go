package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"assetregistry/internal/registry/models"
	"assetregistry/pkg/domain"
	"assetregistry/pkg/platform/sentinel"
	txcontext "assetregistry/pkg/platform/tx"
)

// eventSequenceName is the row in registry_sequence that numbers the event log.
const eventSequenceName = "events"

// dialect captures the few places Postgres and SQLite disagree.
type dialect struct {
	name string
	// lockClause is appended to the SELECT that loads a record for mutation.
	lockClause string
	// isUniqueViolation reports whether err is a primary key or unique
	// constraint failure.
	isUniqueViolation func(err error) bool
}

// SQLStore implements the registry store on a SQL database through sqlx.
//
// Each mutation runs in one transaction that locks the record, updates the
// assets table and the asset_owners index, bumps the event sequence and
// appends to asset_events. The sequence row is locked until commit, so
// events become visible in sequence order and a reader that has seen
// sequence n has also seen every event before it.
type SQLStore struct {
	db      *sqlx.DB
	dialect dialect
}

type assetRow struct {
	AssetID      []byte    `db:"asset_id"`
	Owner        string    `db:"owner"`
	Metadata     string    `db:"metadata"`
	RegisteredAt time.Time `db:"registered_at"`
}

func (r assetRow) toModel() (*models.AssetRecord, error) {
	id, err := domain.AssetIDFromBytes(r.AssetID)
	if err != nil {
		return nil, fmt.Errorf("decode asset id: %w", err)
	}
	return &models.AssetRecord{
		AssetID:          id,
		Owner:            domain.Identity(r.Owner),
		Metadata:         r.Metadata,
		RegistrationTime: r.RegisteredAt.UTC(),
	}, nil
}

type eventRow struct {
	Sequence      int64     `db:"sequence"`
	ID            uuid.UUID `db:"id"`
	Kind          string    `db:"kind"`
	AssetID       []byte    `db:"asset_id"`
	Owner         string    `db:"owner"`
	PreviousOwner string    `db:"previous_owner"`
	NewOwner      string    `db:"new_owner"`
	Metadata      string    `db:"metadata"`
	Actor         string    `db:"actor"`
	RequestID     string    `db:"request_id"`
	OccurredAt    time.Time `db:"occurred_at"`
}

func (r eventRow) toModel() (models.Event, error) {
	id, err := domain.AssetIDFromBytes(r.AssetID)
	if err != nil {
		return models.Event{}, fmt.Errorf("decode event asset id: %w", err)
	}
	return models.Event{
		Sequence:      r.Sequence,
		ID:            r.ID,
		Kind:          models.EventKind(r.Kind),
		AssetID:       id,
		Owner:         domain.Identity(r.Owner),
		PreviousOwner: domain.Identity(r.PreviousOwner),
		NewOwner:      domain.Identity(r.NewOwner),
		Metadata:      r.Metadata,
		Actor:         domain.Identity(r.Actor),
		RequestID:     r.RequestID,
		Timestamp:     r.OccurredAt.UTC(),
	}, nil
}

func toModels(rows []eventRow) ([]models.Event, error) {
	out := make([]models.Event, 0, len(rows))
	for _, row := range rows {
		e, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

const selectEventColumns = `
	SELECT sequence, id, kind, asset_id, owner, previous_owner, new_owner,
	       metadata, actor, request_id, occurred_at
	FROM asset_events`

func (s *SQLStore) runInTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	return txcontext.Run(ctx, s.db, fn)
}

// Create inserts a new record, its owner index entry and its registration event.
// Returns sentinel.ErrAlreadyUsed if the asset id is taken.
func (s *SQLStore) Create(ctx context.Context, record *models.AssetRecord, event *models.Event) (*models.Event, error) {
	var stored models.Event
	err := s.runInTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO assets (asset_id, owner, metadata, registered_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`),
			record.AssetID.Bytes(), record.Owner.String(), record.Metadata,
			record.RegistrationTime.UTC(), record.RegistrationTime.UTC(),
		)
		if err != nil {
			if s.dialect.isUniqueViolation(err) {
				return fmt.Errorf("asset %s: %w", record.AssetID, sentinel.ErrAlreadyUsed)
			}
			return fmt.Errorf("insert asset: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO asset_owners (owner, asset_id) VALUES (?, ?)`),
			record.Owner.String(), record.AssetID.Bytes(),
		); err != nil {
			return fmt.Errorf("insert owner index: %w", err)
		}
		stored, err = s.appendEvent(ctx, tx, *event)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// Execute loads and locks the record for assetID, runs validate and mutate on
// it and commits the new state with the returned event.
func (s *SQLStore) Execute(ctx context.Context, assetID domain.AssetID, validate ValidateFunc, mutate MutateFunc) (*models.AssetRecord, *models.Event, error) {
	var (
		next   *models.AssetRecord
		stored models.Event
	)
	err := s.runInTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		var row assetRow
		err := tx.GetContext(ctx, &row, tx.Rebind(`
			SELECT asset_id, owner, metadata, registered_at
			FROM assets WHERE asset_id = ?`+s.dialect.lockClause),
			assetID.Bytes(),
		)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("asset %s: %w", assetID, sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load asset: %w", err)
		}
		current, err := row.toModel()
		if err != nil {
			return err
		}

		next = current.Clone()
		if err := validate(next); err != nil {
			return err
		}
		event := mutate(next)
		if err := checkMutation(current, next, event); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE assets SET owner = ?, metadata = ?, updated_at = ?
			WHERE asset_id = ?`),
			next.Owner.String(), next.Metadata, event.Timestamp.UTC(), assetID.Bytes(),
		); err != nil {
			return fmt.Errorf("update asset: %w", err)
		}
		if next.Owner != current.Owner {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`
				UPDATE asset_owners SET owner = ? WHERE asset_id = ?`),
				next.Owner.String(), assetID.Bytes(),
			); err != nil {
				return fmt.Errorf("update owner index: %w", err)
			}
		}
		stored, err = s.appendEvent(ctx, tx, *event)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return next, &stored, nil
}

func (s *SQLStore) appendEvent(ctx context.Context, tx *sqlx.Tx, event models.Event) (models.Event, error) {
	var seq int64
	if err := tx.GetContext(ctx, &seq, tx.Rebind(`
		UPDATE registry_sequence SET value = value + 1
		WHERE name = ? RETURNING value`), eventSequenceName,
	); err != nil {
		return models.Event{}, fmt.Errorf("next event sequence: %w", err)
	}
	event.Sequence = seq
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO asset_events (
			sequence, id, kind, asset_id, owner, previous_owner, new_owner,
			metadata, actor, request_id, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		event.Sequence, event.ID.String(), event.Kind.String(), event.AssetID.Bytes(),
		event.Owner.String(), event.PreviousOwner.String(), event.NewOwner.String(),
		event.Metadata, event.Actor.String(), event.RequestID, event.Timestamp.UTC(),
	)
	if err != nil {
		return models.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

func (s *SQLStore) FindByID(ctx context.Context, assetID domain.AssetID) (*models.AssetRecord, error) {
	var row assetRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT asset_id, owner, metadata, registered_at
		FROM assets WHERE asset_id = ?`), assetID.Bytes())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset %s: %w", assetID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find asset: %w", err)
	}
	return row.toModel()
}

func (s *SQLStore) Exists(ctx context.Context, assetID domain.AssetID) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(`
		SELECT COUNT(*) FROM assets WHERE asset_id = ?`), assetID.Bytes()); err != nil {
		return false, fmt.Errorf("check asset: %w", err)
	}
	return n > 0, nil
}

// ListByOwner reads the asset_owners index, ordered by asset id.
func (s *SQLStore) ListByOwner(ctx context.Context, owner domain.Identity) ([]domain.AssetID, error) {
	var raw [][]byte
	if err := s.db.SelectContext(ctx, &raw, s.db.Rebind(`
		SELECT asset_id FROM asset_owners WHERE owner = ? ORDER BY asset_id`), owner.String()); err != nil {
		return nil, fmt.Errorf("list owner index: %w", err)
	}
	ids := make([]domain.AssetID, 0, len(raw))
	for _, b := range raw {
		id, err := domain.AssetIDFromBytes(b)
		if err != nil {
			return nil, fmt.Errorf("decode asset id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *SQLStore) History(ctx context.Context, assetID domain.AssetID) ([]models.Event, error) {
	exists, err := s.Exists(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("asset %s: %w", assetID, sentinel.ErrNotFound)
	}
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(selectEventColumns+`
		WHERE asset_id = ? ORDER BY sequence`), assetID.Bytes()); err != nil {
		return nil, fmt.Errorf("list asset history: %w", err)
	}
	return toModels(rows)
}

func (s *SQLStore) EventsAfter(ctx context.Context, after int64, limit int) ([]models.Event, error) {
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(selectEventColumns+`
		WHERE sequence > ? ORDER BY sequence LIMIT ?`), after, pageLimit(limit)); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return toModels(rows)
}

func (s *SQLStore) LatestSequence(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.GetContext(ctx, &seq, s.db.Rebind(`
		SELECT value FROM registry_sequence WHERE name = ?`), eventSequenceName); err != nil {
		return 0, fmt.Errorf("read event sequence: %w", err)
	}
	return seq, nil
}

// LoadCursor returns the last sequence the named relay published, or 0.
func (s *SQLStore) LoadCursor(ctx context.Context, name string) (int64, error) {
	var seq int64
	err := s.db.GetContext(ctx, &seq, s.db.Rebind(`
		SELECT sequence FROM relay_cursors WHERE name = ?`), name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load relay cursor: %w", err)
	}
	return seq, nil
}

func (s *SQLStore) SaveCursor(ctx context.Context, name string, sequence int64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO relay_cursors (name, sequence, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET sequence = excluded.sequence, updated_at = excluded.updated_at`),
		name, sequence, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save relay cursor: %w", err)
	}
	return nil
}
