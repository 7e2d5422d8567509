package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"assetregistry/internal/registry/models"
	"assetregistry/pkg/domain"
	"assetregistry/pkg/platform/sentinel"
)

// InMemory keeps the registry in process memory. A single RWMutex guards the
// records, the owner index and the event log together, so every mutation is
// serializable and readers see a consistent snapshot.
//
// State does not survive a restart; use Postgres or SQLite for that.
type InMemory struct {
	mu      sync.RWMutex
	records map[domain.AssetID]*models.AssetRecord
	owners  map[domain.Identity]map[domain.AssetID]struct{}
	events  []models.Event
	byAsset map[domain.AssetID][]int
	cursors map[string]int64
}

func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[domain.AssetID]*models.AssetRecord),
		owners:  make(map[domain.Identity]map[domain.AssetID]struct{}),
		byAsset: make(map[domain.AssetID][]int),
		cursors: make(map[string]int64),
	}
}

// Create inserts a new record and its registration event.
// Returns sentinel.ErrAlreadyUsed if the asset id is taken.
func (s *InMemory) Create(ctx context.Context, record *models.AssetRecord, event *models.Event) (*models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.AssetID]; ok {
		return nil, fmt.Errorf("asset %s: %w", record.AssetID, sentinel.ErrAlreadyUsed)
	}
	s.records[record.AssetID] = record.Clone()
	s.indexAdd(record.Owner, record.AssetID)
	stored := s.appendEvent(*event)
	return &stored, nil
}

// Execute atomically validates and mutates the record for assetID.
// The validate and mutate callbacks run under the write lock on a copy of the
// record; nothing is committed if either fails.
func (s *InMemory) Execute(ctx context.Context, assetID domain.AssetID, validate ValidateFunc, mutate MutateFunc) (*models.AssetRecord, *models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[assetID]
	if !ok {
		return nil, nil, fmt.Errorf("asset %s: %w", assetID, sentinel.ErrNotFound)
	}
	next := current.Clone()
	if err := validate(next); err != nil {
		return nil, nil, err
	}
	event := mutate(next)
	if err := checkMutation(current, next, event); err != nil {
		return nil, nil, err
	}

	if next.Owner != current.Owner {
		s.indexRemove(current.Owner, assetID)
		s.indexAdd(next.Owner, assetID)
	}
	s.records[assetID] = next
	stored := s.appendEvent(*event)
	return next.Clone(), &stored, nil
}

func (s *InMemory) FindByID(_ context.Context, assetID domain.AssetID) (*models.AssetRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[assetID]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", assetID, sentinel.ErrNotFound)
	}
	return record.Clone(), nil
}

func (s *InMemory) Exists(_ context.Context, assetID domain.AssetID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[assetID]
	return ok, nil
}

// ListByOwner returns the owner index entry for owner, ordered by asset id.
func (s *InMemory) ListByOwner(_ context.Context, owner domain.Identity) ([]domain.AssetID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.owners[owner]
	ids := make([]domain.AssetID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sortAssetIDs(ids)
	return ids, nil
}

// History returns every event for assetID in log order.
func (s *InMemory) History(_ context.Context, assetID domain.AssetID) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.records[assetID]; !ok {
		return nil, fmt.Errorf("asset %s: %w", assetID, sentinel.ErrNotFound)
	}
	positions := s.byAsset[assetID]
	out := make([]models.Event, 0, len(positions))
	for _, pos := range positions {
		out = append(out, s.events[pos])
	}
	return out, nil
}

// EventsAfter pages the global log by sequence number.
func (s *InMemory) EventsAfter(_ context.Context, after int64, limit int) ([]models.Event, error) {
	limit = pageLimit(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := sort.Search(len(s.events), func(i int) bool { return s.events[i].Sequence > after })
	end := min(start+limit, len(s.events))
	out := make([]models.Event, end-start)
	copy(out, s.events[start:end])
	return out, nil
}

// LatestSequence returns the sequence of the last committed event, or 0.
func (s *InMemory) LatestSequence(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.events)), nil
}

func (s *InMemory) LoadCursor(_ context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[name], nil
}

func (s *InMemory) SaveCursor(_ context.Context, name string, sequence int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[name] = sequence
	return nil
}

func (s *InMemory) indexAdd(owner domain.Identity, assetID domain.AssetID) {
	set, ok := s.owners[owner]
	if !ok {
		set = make(map[domain.AssetID]struct{})
		s.owners[owner] = set
	}
	set[assetID] = struct{}{}
}

func (s *InMemory) indexRemove(owner domain.Identity, assetID domain.AssetID) {
	set := s.owners[owner]
	delete(set, assetID)
	if len(set) == 0 {
		delete(s.owners, owner)
	}
}

// appendEvent must be called with the write lock held.
func (s *InMemory) appendEvent(event models.Event) models.Event {
	event.Sequence = int64(len(s.events)) + 1
	s.events = append(s.events, event)
	s.byAsset[event.AssetID] = append(s.byAsset[event.AssetID], len(s.events)-1)
	return event
}
