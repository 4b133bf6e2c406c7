// internal/types/types.go
package types

// Address identifies an account on the platform: a donor, a signer,
// a charity intermediary or an internal vault authority.
type Address string

// ZeroAddress is the empty account identity. Operations reject it where an
// actual counterparty is required.
const ZeroAddress Address = ""

// AssetKind tags the denomination of a raw deposit before conversion into
// the stable accounting unit.
type AssetKind string

const (
	AssetNative AssetKind = "native"
	AssetStable AssetKind = "stable"
)
