package handler

import (
	"strings"

	"assetregistry/pkg/domain"
	dErrors "assetregistry/pkg/domain-errors"
)

// RegisterRequest is the body of POST /assets. Exactly one of AssetID and
// Name is set; Name is hashed into the asset id.
type RegisterRequest struct {
	AssetID  string `json:"asset_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Metadata string `json:"metadata"`

	parsedAssetID domain.AssetID
}

// Validate implements httputil.Validatable.
func (r *RegisterRequest) Validate() error {
	hasID := strings.TrimSpace(r.AssetID) != ""
	hasName := r.Name != ""
	switch {
	case hasID && hasName:
		return dErrors.New(dErrors.CodeValidation, "provide either asset_id or name, not both")
	case hasName:
		r.parsedAssetID = domain.HashAssetName(r.Name)
	case hasID:
		id, err := domain.ParseAssetID(r.AssetID)
		if err != nil {
			return err
		}
		r.parsedAssetID = id
	default:
		return dErrors.New(dErrors.CodeValidation, "asset_id or name is required")
	}
	return nil
}

func (r *RegisterRequest) ParsedAssetID() domain.AssetID { return r.parsedAssetID }

// TransferRequest is the body of POST /assets/{assetID}/transfer.
type TransferRequest struct {
	NewOwner string `json:"new_owner"`

	parsedNewOwner domain.Identity
}

func (r *TransferRequest) Validate() error {
	owner, err := domain.ParseAddress(r.NewOwner)
	if err != nil {
		return err
	}
	r.parsedNewOwner = owner
	return nil
}

func (r *TransferRequest) ParsedNewOwner() domain.Identity { return r.parsedNewOwner }

// UpdateMetadataRequest is the body of PUT /assets/{assetID}/metadata.
// Metadata is stored verbatim and may be empty.
type UpdateMetadataRequest struct {
	Metadata *string `json:"metadata"`
}

func (r *UpdateMetadataRequest) Validate() error {
	if r.Metadata == nil {
		return dErrors.New(dErrors.CodeValidation, "metadata is required")
	}
	return nil
}
