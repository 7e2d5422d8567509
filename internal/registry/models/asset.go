package models

import (
	"time"

	"assetregistry/pkg/domain"
)

// AssetRecord is the aggregate root of the registry.
//
// Invariants:
//   - AssetID and RegistrationTime are set once at registration and never change
//   - Owner is never empty
//   - Owner and Metadata change only through ApplyTransfer and ApplyMetadata,
//     after the matching Can* check has passed for the caller
//
// Records are never deleted; there is no terminal state.
type AssetRecord struct {
	AssetID          domain.AssetID  `json:"asset_id"`
	Owner            domain.Identity `json:"owner"`
	Metadata         string          `json:"metadata"`
	RegistrationTime time.Time       `json:"registration_time"`
}

// NewAssetRecord builds a freshly registered record owned by owner.
// Metadata is stored verbatim and may be empty.
func NewAssetRecord(assetID domain.AssetID, owner domain.Identity, metadata string, now time.Time) (*AssetRecord, error) {
	if assetID.IsZero() {
		return nil, invalidAssetID()
	}
	if owner.IsEmpty() {
		return nil, InvalidIdentity("owner identity cannot be empty")
	}
	return &AssetRecord{
		AssetID:          assetID,
		Owner:            owner,
		Metadata:         metadata,
		RegistrationTime: now,
	}, nil
}

// IsOwnedBy compares identities verbatim.
func (r *AssetRecord) IsOwnedBy(identity domain.Identity) bool {
	return r.Owner == identity
}

// CanTransfer checks that caller may hand the record to newOwner.
// A transfer to the current owner is allowed.
func (r *AssetRecord) CanTransfer(caller, newOwner domain.Identity) error {
	if newOwner.IsEmpty() {
		return InvalidIdentity("new owner identity cannot be empty")
	}
	if !r.IsOwnedBy(caller) {
		return NotAssetOwner(r.AssetID)
	}
	return nil
}

// ApplyTransfer sets the new owner. Call CanTransfer first.
func (r *AssetRecord) ApplyTransfer(newOwner domain.Identity) {
	r.Owner = newOwner
}

func (r *AssetRecord) CanUpdateMetadata(caller domain.Identity) error {
	if !r.IsOwnedBy(caller) {
		return NotAssetOwner(r.AssetID)
	}
	return nil
}

// ApplyMetadata replaces the metadata in place. Call CanUpdateMetadata first.
func (r *AssetRecord) ApplyMetadata(metadata string) {
	r.Metadata = metadata
}

// Clone returns an independent copy. Stores hand out clones so callers can
// never mutate committed state.
func (r *AssetRecord) Clone() *AssetRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
