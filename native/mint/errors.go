package mint

import "errors"

var (
	// ErrRoyaltyExceeded rejects mint requests asking for more than the
	// supported royalty share.
	ErrRoyaltyExceeded = errors.New("mint: royalty cannot exceed 10 points")

	// ErrAssetExists is returned when a derived asset identifier collides
	// with an already registered asset.
	ErrAssetExists = errors.New("mint: asset already exists")

	// ErrAssetNotFound is returned for lookups and transfers against an
	// unregistered asset identifier.
	ErrAssetNotFound = errors.New("mint: asset not found")

	// ErrNotOwner rejects transfers initiated by a party other than the
	// asset's current holder.
	ErrNotOwner = errors.New("mint: caller does not hold the asset")

	errNilState = errors.New("mint engine: state not configured")
)
