package models

import (
	"errors"

	"assetregistry/pkg/domain"
	dErrors "assetregistry/pkg/domain-errors"
)

// Registry error kinds. Every failing operation returns one of these wrapped in
// a coded error, so callers can use either errors.Is or dErrors.HasCode.
var (
	ErrAssetAlreadyRegistered = errors.New("asset already registered")
	ErrAssetDoesNotExist      = errors.New("asset does not exist")
	ErrNotAssetOwner          = errors.New("caller is not the asset owner")
	ErrInvalidIdentity        = errors.New("invalid identity")
)

func AssetAlreadyRegistered(assetID domain.AssetID) error {
	return dErrors.Wrap(ErrAssetAlreadyRegistered, dErrors.CodeConflict,
		"asset "+assetID.String()+" is already registered")
}

func AssetDoesNotExist(assetID domain.AssetID) error {
	return dErrors.Wrap(ErrAssetDoesNotExist, dErrors.CodeNotFound,
		"asset "+assetID.String()+" does not exist")
}

func NotAssetOwner(assetID domain.AssetID) error {
	return dErrors.Wrap(ErrNotAssetOwner, dErrors.CodeForbidden,
		"caller is not the owner of asset "+assetID.String())
}

func InvalidIdentity(msg string) error {
	return dErrors.Wrap(ErrInvalidIdentity, dErrors.CodeInvalidInput, msg)
}

func invalidAssetID() error {
	return dErrors.New(dErrors.CodeInvalidInput, "asset id cannot be zero")
}
