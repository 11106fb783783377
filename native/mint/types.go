package mint

import (
	"fmt"
	"strings"
)

// MaxRoyaltyPoints caps the per-asset royalty share a minter may claim.
const MaxRoyaltyPoints uint16 = 10

// Asset is the registry record for a single non-fungible token. Exactly one
// unit of each asset exists; Owner names its current holder, which may be a
// listing vault while the asset sits in market escrow. Minter is permanent and
// receives the royalty share on every settlement.
type Asset struct {
	ID            [32]byte
	Minter        [20]byte
	Owner         [20]byte
	Name          string
	Symbol        string
	URI           string
	RoyaltyPoints uint16
	CreatedAt     int64
}

// Clone returns a copy of the asset record.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// SanitizeAsset validates and normalises an asset record, returning a cloned
// instance with trimmed metadata. The original value is not mutated.
func SanitizeAsset(a *Asset) (*Asset, error) {
	if a == nil {
		return nil, fmt.Errorf("mint: nil asset")
	}
	clone := a.Clone()
	clone.Name = strings.TrimSpace(clone.Name)
	clone.Symbol = strings.TrimSpace(clone.Symbol)
	clone.URI = strings.TrimSpace(clone.URI)
	if clone.Name == "" {
		return nil, fmt.Errorf("mint: asset name required")
	}
	if clone.Symbol == "" {
		return nil, fmt.Errorf("mint: asset symbol required")
	}
	if clone.RoyaltyPoints > MaxRoyaltyPoints {
		return nil, ErrRoyaltyExceeded
	}
	return clone, nil
}
