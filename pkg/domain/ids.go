// Package domain holds the typed identifiers shared across the registry.
//
// AssetID is the fixed-width content hash that keys an asset record. Identity
// is the caller or owner of a record. Both are constructed at trust boundaries
// via the Parse functions; the registry core compares them verbatim.
package domain

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	dErrors "assetregistry/pkg/domain-errors"
)

// AssetIDSize is the width of an asset identifier in bytes.
const AssetIDSize = 32

// AssetID is an opaque 32-byte identifier, normally the keccak-256 hash of a
// human-readable asset name.
type AssetID [AssetIDSize]byte

// HashAssetName derives the AssetID for a human-readable name using
// keccak-256 over its UTF-8 bytes.
func HashAssetName(name string) AssetID {
	var id AssetID
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(name))
	h.Sum(id[:0])
	return id
}

// ParseAssetID parses a hex encoded identifier with an optional 0x prefix.
//
// Errors: returns CodeInvalidInput when the value is empty, not hex, not
// exactly 32 bytes, or all zeroes.
func ParseAssetID(s string) (AssetID, error) {
	var id AssetID
	raw := strings.TrimSpace(s)
	if raw == "" {
		return id, dErrors.New(dErrors.CodeInvalidInput, "asset id cannot be empty")
	}
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	if len(raw) != AssetIDSize*2 {
		return id, dErrors.New(dErrors.CodeInvalidInput, "asset id must be 32 bytes of hex")
	}
	if _, err := hex.Decode(id[:], []byte(raw)); err != nil {
		return AssetID{}, dErrors.New(dErrors.CodeInvalidInput, "asset id must be hex encoded")
	}
	if id.IsZero() {
		return AssetID{}, dErrors.New(dErrors.CodeInvalidInput, "asset id cannot be zero")
	}
	return id, nil
}

// AssetIDFromBytes copies b into an AssetID. b must be exactly AssetIDSize long.
func AssetIDFromBytes(b []byte) (AssetID, error) {
	var id AssetID
	if len(b) != AssetIDSize {
		return id, dErrors.New(dErrors.CodeInvalidInput, "asset id must be 32 bytes")
	}
	copy(id[:], b)
	return id, nil
}

func (a AssetID) IsZero() bool { return a == AssetID{} }

func (a AssetID) Bytes() []byte { return a[:] }

// String returns the 0x-prefixed lowercase hex form.
func (a AssetID) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a AssetID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AssetID) UnmarshalText(text []byte) error {
	id, err := ParseAssetID(string(text))
	if err != nil {
		return err
	}
	*a = id
	return nil
}

// Identity names a party that can own assets. The caller identity is
// authenticated upstream; the registry only requires it to be non-empty.
type Identity string

// IsEmpty reports whether the identity is blank.
func (i Identity) IsEmpty() bool {
	return strings.TrimSpace(string(i)) == ""
}

func (i Identity) String() string { return string(i) }

// ParseAddress validates a hex account address and returns it in EIP-55
// checksum form, so one party always has one spelling.
//
// Errors: returns CodeInvalidInput for empty, malformed, or zero addresses.
func ParseAddress(s string) (Identity, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address cannot be empty")
	}
	if !common.IsHexAddress(raw) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid address format")
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address cannot be the zero address")
	}
	return Identity(addr.Hex()), nil
}
