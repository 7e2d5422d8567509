// Package store persists asset records, the owner index and the event log.
//
// Every implementation applies a mutation to all three structures inside one
// atomic unit: the record, its owner index entry and the appended event are
// committed together or not at all. Readers only ever observe committed state.
//
// Stores return sentinel errors (pkg/platform/sentinel) for infrastructure
// facts. Errors returned by a validate callback are passed through unchanged.
package store

import (
	"bytes"
	"slices"

	"assetregistry/internal/registry/models"
	"assetregistry/pkg/domain"
	dErrors "assetregistry/pkg/domain-errors"
)

// ValidateFunc inspects the locked current record and aborts the mutation by
// returning an error.
type ValidateFunc func(record *models.AssetRecord) error

// MutateFunc applies a change to the locked record copy and returns the event
// describing it. The store assigns the event sequence number.
type MutateFunc func(record *models.AssetRecord) *models.Event

// DefaultEventPageSize caps EventsAfter when the caller passes a non-positive limit.
const DefaultEventPageSize = 100

// checkMutation guards the write-once fields of a record after a MutateFunc ran.
func checkMutation(before, after *models.AssetRecord, event *models.Event) error {
	if event == nil {
		return dErrors.New(dErrors.CodeInternal, "mutation produced no event")
	}
	if after.AssetID != before.AssetID || !after.RegistrationTime.Equal(before.RegistrationTime) {
		return dErrors.New(dErrors.CodeInvariantViolation, "asset id and registration time are immutable")
	}
	if after.Owner.IsEmpty() {
		return dErrors.New(dErrors.CodeInvariantViolation, "asset owner cannot be empty")
	}
	if event.AssetID != before.AssetID {
		return dErrors.New(dErrors.CodeInvariantViolation, "event refers to a different asset")
	}
	return nil
}

func sortAssetIDs(ids []domain.AssetID) {
	slices.SortFunc(ids, func(a, b domain.AssetID) int {
		return bytes.Compare(a[:], b[:])
	})
}

func pageLimit(limit int) int {
	if limit <= 0 || limit > 10*DefaultEventPageSize {
		return DefaultEventPageSize
	}
	return limit
}
