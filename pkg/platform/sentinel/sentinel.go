package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so the service can translate them into registry errors.
//
//   - ErrNotFound: no record exists for the key
//   - ErrAlreadyUsed: a create-only key is already taken
//   - ErrConflict: the write lost a race and was rolled back
//   - ErrUnavailable: the backing system cannot be reached
//
// For validation errors use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrAlreadyUsed = errors.New("already used")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
