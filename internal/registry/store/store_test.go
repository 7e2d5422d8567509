package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"assetregistry/internal/platform/sqldb"
	"assetregistry/internal/registry/models"
	"assetregistry/pkg/domain"
	dErrors "assetregistry/pkg/domain-errors"
	"assetregistry/pkg/platform/sentinel"
)

// registryStore is the surface shared by every implementation.
type registryStore interface {
	Create(ctx context.Context, record *models.AssetRecord, event *models.Event) (*models.Event, error)
	Execute(ctx context.Context, assetID domain.AssetID, validate ValidateFunc, mutate MutateFunc) (*models.AssetRecord, *models.Event, error)
	FindByID(ctx context.Context, assetID domain.AssetID) (*models.AssetRecord, error)
	Exists(ctx context.Context, assetID domain.AssetID) (bool, error)
	ListByOwner(ctx context.Context, owner domain.Identity) ([]domain.AssetID, error)
	History(ctx context.Context, assetID domain.AssetID) ([]models.Event, error)
	EventsAfter(ctx context.Context, after int64, limit int) ([]models.Event, error)
	LatestSequence(ctx context.Context) (int64, error)
	LoadCursor(ctx context.Context, name string) (int64, error)
	SaveCursor(ctx context.Context, name string, sequence int64) error
}

var (
	_ registryStore = (*InMemory)(nil)
	_ registryStore = (*SQLStore)(nil)
)

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

// StoreSuite runs the same behaviour checks against each implementation.
type StoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) registryStore
	store    registryStore
	ctx      context.Context
	now      time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(*testing.T) registryStore { return NewInMemory() }})
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: newSQLiteStore})
}

func newSQLiteStore(t *testing.T) registryStore {
	t.Helper()
	ctx := context.Background()
	db, err := sqldb.OpenSQLite(ctx, filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := sqldb.Migrate(ctx, db, sqldb.SQLite, nil); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return NewSQLite(db)
}

func (s *StoreSuite) SetupTest() {
	s.store = s.newStore(s.T())
	s.ctx = context.Background()
	s.now = fixedNow
}

func (s *StoreSuite) ec(actor domain.Identity) models.EventContext {
	return models.EventContext{Actor: actor, RequestID: "req-test", Now: s.now}
}

func (s *StoreSuite) register(name string, owner domain.Identity) (*models.AssetRecord, *models.Event) {
	record, err := models.NewAssetRecord(domain.HashAssetName(name), owner, "meta:"+name, s.now)
	s.Require().NoError(err)
	event, err := s.store.Create(s.ctx, record, models.NewRegisteredEvent(s.ec(owner), record))
	s.Require().NoError(err)
	return record, event
}

func (s *StoreSuite) transfer(assetID domain.AssetID, caller, newOwner domain.Identity) (*models.AssetRecord, *models.Event, error) {
	return s.store.Execute(s.ctx, assetID,
		func(r *models.AssetRecord) error { return r.CanTransfer(caller, newOwner) },
		func(r *models.AssetRecord) *models.Event {
			prev := r.Owner
			r.ApplyTransfer(newOwner)
			return models.NewTransferredEvent(s.ec(caller), r.AssetID, prev, newOwner)
		},
	)
}

// assertIndexConsistent checks every listed asset against its record.
func (s *StoreSuite) assertIndexConsistent(owners ...domain.Identity) {
	for _, owner := range owners {
		ids, err := s.store.ListByOwner(s.ctx, owner)
		s.Require().NoError(err)
		for _, id := range ids {
			rec, err := s.store.FindByID(s.ctx, id)
			s.Require().NoError(err)
			s.Equal(owner, rec.Owner, "index lists %s under %s", id, owner)
		}
	}
}

// TestCreate verifies create-only registration.
func (s *StoreSuite) TestCreate() {
	s.Run("stores record, index entry and first event", func() {
		record, event := s.register("sample", "alice")

		found, err := s.store.FindByID(s.ctx, record.AssetID)
		s.Require().NoError(err)
		s.Equal(record, found)

		ids, err := s.store.ListByOwner(s.ctx, "alice")
		s.Require().NoError(err)
		s.Equal([]domain.AssetID{record.AssetID}, ids)

		s.Equal(int64(1), event.Sequence)
		s.Equal(models.EventAssetRegistered, event.Kind)
		s.Equal(domain.Identity("alice"), event.Owner)
	})

	s.Run("rejects a duplicate id without touching state", func() {
		record, _ := s.register("dup", "alice")

		clash, err := models.NewAssetRecord(record.AssetID, "bob", "overwrite", s.now.Add(time.Hour))
		s.Require().NoError(err)
		_, err = s.store.Create(s.ctx, clash, models.NewRegisteredEvent(s.ec("bob"), clash))
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)

		found, err := s.store.FindByID(s.ctx, record.AssetID)
		s.Require().NoError(err)
		s.Equal(record, found)

		ids, err := s.store.ListByOwner(s.ctx, "bob")
		s.Require().NoError(err)
		s.Empty(ids)

		history, err := s.store.History(s.ctx, record.AssetID)
		s.Require().NoError(err)
		s.Len(history, 1)
	})
}

// TestLookups verifies reads for unknown and known assets.
func (s *StoreSuite) TestLookups() {
	unknown := domain.HashAssetName("missing")

	_, err := s.store.FindByID(s.ctx, unknown)
	s.ErrorIs(err, sentinel.ErrNotFound)

	exists, err := s.store.Exists(s.ctx, unknown)
	s.Require().NoError(err)
	s.False(exists)

	_, err = s.store.History(s.ctx, unknown)
	s.ErrorIs(err, sentinel.ErrNotFound)

	ids, err := s.store.ListByOwner(s.ctx, "nobody")
	s.Require().NoError(err)
	s.Empty(ids)

	record, _ := s.register("present", "alice")
	exists, err = s.store.Exists(s.ctx, record.AssetID)
	s.Require().NoError(err)
	s.True(exists)
}

// TestExecute verifies validate-then-mutate semantics.
func (s *StoreSuite) TestExecute() {
	s.Run("transfer moves the index entry", func() {
		record, _ := s.register("moving", "alice")

		updated, event, err := s.transfer(record.AssetID, "alice", "bob")
		s.Require().NoError(err)
		s.Equal(domain.Identity("bob"), updated.Owner)
		s.Equal(record.RegistrationTime, updated.RegistrationTime)
		s.Equal(domain.Identity("alice"), event.PreviousOwner)
		s.Equal(domain.Identity("bob"), event.NewOwner)

		aliceIDs, err := s.store.ListByOwner(s.ctx, "alice")
		s.Require().NoError(err)
		s.NotContains(aliceIDs, record.AssetID)

		bobIDs, err := s.store.ListByOwner(s.ctx, "bob")
		s.Require().NoError(err)
		s.Contains(bobIDs, record.AssetID)
		s.assertIndexConsistent("alice", "bob")
	})

	s.Run("self transfer appends an event and keeps the index", func() {
		record, _ := s.register("self", "carol")

		_, event, err := s.transfer(record.AssetID, "carol", "carol")
		s.Require().NoError(err)
		s.Equal(models.EventOwnershipTransferred, event.Kind)

		ids, err := s.store.ListByOwner(s.ctx, "carol")
		s.Require().NoError(err)
		s.Equal([]domain.AssetID{record.AssetID}, ids)
	})

	s.Run("validation failure commits nothing", func() {
		record, _ := s.register("guarded", "alice")
		before, err := s.store.LatestSequence(s.ctx)
		s.Require().NoError(err)

		_, _, err = s.transfer(record.AssetID, "mallory", "mallory")
		s.Require().ErrorIs(err, models.ErrNotAssetOwner)

		found, err := s.store.FindByID(s.ctx, record.AssetID)
		s.Require().NoError(err)
		s.Equal(domain.Identity("alice"), found.Owner)

		after, err := s.store.LatestSequence(s.ctx)
		s.Require().NoError(err)
		s.Equal(before, after)
	})

	s.Run("rejects changes to write-once fields", func() {
		record, _ := s.register("immutable", "alice")

		_, _, err := s.store.Execute(s.ctx, record.AssetID,
			func(*models.AssetRecord) error { return nil },
			func(r *models.AssetRecord) *models.Event {
				r.RegistrationTime = r.RegistrationTime.Add(time.Hour)
				return models.NewMetadataUpdatedEvent(s.ec("alice"), r.AssetID, "x")
			},
		)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

		found, err := s.store.FindByID(s.ctx, record.AssetID)
		s.Require().NoError(err)
		s.Equal(record, found)
	})

	s.Run("unknown asset", func() {
		_, _, err := s.transfer(domain.HashAssetName("nope"), "alice", "bob")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

// TestEventLog verifies ordering, paging and per-asset history.
func (s *StoreSuite) TestEventLog() {
	a, _ := s.register("a", "alice")
	b, _ := s.register("b", "alice")
	_, _, err := s.transfer(a.AssetID, "alice", "bob")
	s.Require().NoError(err)
	_, _, err = s.store.Execute(s.ctx, b.AssetID,
		func(r *models.AssetRecord) error { return r.CanUpdateMetadata("alice") },
		func(r *models.AssetRecord) *models.Event {
			r.ApplyMetadata("")
			return models.NewMetadataUpdatedEvent(s.ec("alice"), r.AssetID, "")
		},
	)
	s.Require().NoError(err)

	all, err := s.store.EventsAfter(s.ctx, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(all, 4)
	for i, e := range all {
		s.Equal(int64(i+1), e.Sequence, "sequence must be gap-free")
	}

	page, err := s.store.EventsAfter(s.ctx, 2, 1)
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal(int64(3), page[0].Sequence)
	s.Equal(models.EventOwnershipTransferred, page[0].Kind)

	history, err := s.store.History(s.ctx, b.AssetID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(models.EventAssetRegistered, history[0].Kind)
	s.Equal(models.EventAssetMetadataUpdated, history[1].Kind)

	found, err := s.store.FindByID(s.ctx, b.AssetID)
	s.Require().NoError(err)
	s.Empty(found.Metadata)

	latest, err := s.store.LatestSequence(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(4), latest)

	// replaying the log reproduces the committed record
	var replayed *models.AssetRecord
	for i := range history {
		replayed = history[i].Apply(replayed)
	}
	s.Equal(found, replayed)
}

// TestCursor verifies relay cursor persistence.
func (s *StoreSuite) TestCursor() {
	seq, err := s.store.LoadCursor(s.ctx, "kafka")
	s.Require().NoError(err)
	s.Zero(seq)

	s.Require().NoError(s.store.SaveCursor(s.ctx, "kafka", 7))
	s.Require().NoError(s.store.SaveCursor(s.ctx, "kafka", 9))

	seq, err = s.store.LoadCursor(s.ctx, "kafka")
	s.Require().NoError(err)
	s.Equal(int64(9), seq)
}

// TestConcurrentRegistration verifies first-committer-wins on the same id.
func (s *StoreSuite) TestConcurrentRegistration() {
	const goroutines = 20
	assetID := domain.HashAssetName("contended")

	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32
	for i := range goroutines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := domain.Identity(fmt.Sprintf("party-%d", i))
			record, err := models.NewAssetRecord(assetID, owner, "meta", s.now)
			if err != nil {
				return
			}
			_, err = s.store.Create(s.ctx, record, models.NewRegisteredEvent(s.ec(owner), record))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				conflictCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one create should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load())

	events, err := s.store.EventsAfter(s.ctx, 0, 0)
	s.Require().NoError(err)
	s.Len(events, 1)
}

// TestConcurrentTransfers verifies racing transfers serialize against the post-transfer owner.
func (s *StoreSuite) TestConcurrentTransfers() {
	record, _ := s.register("race", "alice")
	const goroutines = 10

	var wg sync.WaitGroup
	var successCount, forbiddenCount atomic.Int32
	for i := range goroutines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := s.transfer(record.AssetID, "alice", domain.Identity(fmt.Sprintf("buyer-%d", i)))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, models.ErrNotAssetOwner):
				forbiddenCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load())
	s.Equal(int32(goroutines-1), forbiddenCount.Load())

	found, err := s.store.FindByID(s.ctx, record.AssetID)
	s.Require().NoError(err)
	ids, err := s.store.ListByOwner(s.ctx, found.Owner)
	s.Require().NoError(err)
	s.Equal([]domain.AssetID{record.AssetID}, ids)

	aliceIDs, err := s.store.ListByOwner(s.ctx, "alice")
	s.Require().NoError(err)
	s.Empty(aliceIDs)
}

// TestSQLiteReopen verifies records, index and log survive closing the database.
func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.db")

	open := func() (*SQLStore, func()) {
		db, err := sqldb.OpenSQLite(ctx, path)
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		if _, err := sqldb.Migrate(ctx, db, sqldb.SQLite, nil); err != nil {
			t.Fatalf("migrate sqlite: %v", err)
		}
		return NewSQLite(db), func() { _ = db.Close() }
	}

	first, closeFirst := open()
	s := &StoreSuite{store: first, ctx: ctx, now: fixedNow}
	s.SetT(t)
	record, _ := s.register("durable", "alice")
	_, _, err := s.transfer(record.AssetID, "alice", "bob")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	closeFirst()

	reopened, closeSecond := open()
	defer closeSecond()

	found, err := reopened.FindByID(ctx, record.AssetID)
	if err != nil {
		t.Fatalf("find after reopen: %v", err)
	}
	if found.Owner != "bob" || !found.RegistrationTime.Equal(fixedNow) {
		t.Fatalf("unexpected record after reopen: %+v", found)
	}
	ids, err := reopened.ListByOwner(ctx, "bob")
	if err != nil || len(ids) != 1 || ids[0] != record.AssetID {
		t.Fatalf("owner index after reopen: %v %v", ids, err)
	}
	events, err := reopened.EventsAfter(ctx, 0, 0)
	if err != nil || len(events) != 2 {
		t.Fatalf("event log after reopen: %d events, err %v", len(events), err)
	}
}
