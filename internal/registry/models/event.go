package models

import (
	"time"

	"github.com/google/uuid"

	"assetregistry/pkg/domain"
)

// EventKind names a state change in the registry event log.
type EventKind string

const (
	EventAssetRegistered      EventKind = "AssetRegistered"
	EventOwnershipTransferred EventKind = "OwnershipTransferred"
	EventAssetMetadataUpdated EventKind = "AssetMetadataUpdated"
)

func (k EventKind) IsValid() bool {
	switch k {
	case EventAssetRegistered, EventOwnershipTransferred, EventAssetMetadataUpdated:
		return true
	}
	return false
}

func (k EventKind) String() string { return string(k) }

// Event is one entry of the append-only registry log.
//
// Sequence is assigned by the store inside the mutating transaction; it is
// strictly increasing and gap-free. ID is stable across redelivery and is the
// key subscribers should deduplicate on.
//
// Fields by kind:
//   - AssetRegistered: Owner, Metadata
//   - OwnershipTransferred: PreviousOwner, NewOwner
//   - AssetMetadataUpdated: Metadata
type Event struct {
	Sequence      int64           `json:"sequence"`
	ID            uuid.UUID       `json:"id"`
	Kind          EventKind       `json:"kind"`
	AssetID       domain.AssetID  `json:"asset_id"`
	Owner         domain.Identity `json:"owner,omitempty"`
	PreviousOwner domain.Identity `json:"previous_owner,omitempty"`
	NewOwner      domain.Identity `json:"new_owner,omitempty"`
	Metadata      string          `json:"metadata,omitempty"`
	Actor         domain.Identity `json:"actor"`
	RequestID     string          `json:"request_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// EventContext carries request-scoped attribution copied onto each event.
type EventContext struct {
	Actor     domain.Identity
	RequestID string
	Now       time.Time
}

func (c EventContext) base(kind EventKind, assetID domain.AssetID) *Event {
	return &Event{
		ID:        uuid.New(),
		Kind:      kind,
		AssetID:   assetID,
		Actor:     c.Actor,
		RequestID: c.RequestID,
		Timestamp: c.Now,
	}
}

func NewRegisteredEvent(ec EventContext, record *AssetRecord) *Event {
	e := ec.base(EventAssetRegistered, record.AssetID)
	e.Owner = record.Owner
	e.Metadata = record.Metadata
	return e
}

func NewTransferredEvent(ec EventContext, assetID domain.AssetID, previousOwner, newOwner domain.Identity) *Event {
	e := ec.base(EventOwnershipTransferred, assetID)
	e.PreviousOwner = previousOwner
	e.NewOwner = newOwner
	return e
}

func NewMetadataUpdatedEvent(ec EventContext, assetID domain.AssetID, metadata string) *Event {
	e := ec.base(EventAssetMetadataUpdated, assetID)
	e.Metadata = metadata
	return e
}

// Apply replays the event onto record. It is used to rebuild state from the
// log and returns the resulting record; AssetRegistered ignores the input.
func (e *Event) Apply(record *AssetRecord) *AssetRecord {
	switch e.Kind {
	case EventAssetRegistered:
		return &AssetRecord{
			AssetID:          e.AssetID,
			Owner:            e.Owner,
			Metadata:         e.Metadata,
			RegistrationTime: e.Timestamp,
		}
	case EventOwnershipTransferred:
		next := record.Clone()
		next.ApplyTransfer(e.NewOwner)
		return next
	case EventAssetMetadataUpdated:
		next := record.Clone()
		next.ApplyMetadata(e.Metadata)
		return next
	}
	return record
}

// Receipt is returned by every successful mutation. It references the
// committed record state and the event appended for it.
type Receipt struct {
	Record AssetRecord `json:"record"`
	Event  Event       `json:"event"`
}

func NewReceipt(record *AssetRecord, event *Event) *Receipt {
	return &Receipt{Record: *record, Event: *event}
}
