package market

import "fmt"

// EscrowAccount is the custody primitive for the traded asset unit. Each
// listing owns exactly one; the balance is 1 from listing creation until the
// single terminal transition releases the unit, then 0 forever. Custody is
// represented as asset ownership by the listing's vault address, so a unit can
// never be duplicated or destroyed, only moved.
type EscrowAccount struct {
	state   State
	listing [32]byte
	asset   [32]byte
}

// NewEscrowAccount binds the custody primitive for a listing to a state view.
// All mutations apply to that view, so running against a StateTx keeps them
// part of the transition's atomic unit.
func NewEscrowAccount(state State, listingID [32]byte, assetID [32]byte) *EscrowAccount {
	return &EscrowAccount{state: state, listing: listingID, asset: assetID}
}

// Vault returns the custody address the escrowed unit is held under.
func (e *EscrowAccount) Vault() [20]byte { return VaultAddress(e.listing) }

// Balance reports the number of asset units currently in custody: 0 or 1.
func (e *EscrowAccount) Balance() (uint64, error) {
	holder, ok, err := e.state.AssetHolder(e.asset)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrAssetNotFound
	}
	if holder == e.Vault() {
		return 1, nil
	}
	return 0, nil
}

// Deposit moves one unit of the asset from the supplied holder into custody.
func (e *EscrowAccount) Deposit(from [20]byte, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if amount != 1 {
		return fmt.Errorf("market: escrow holds at most one unit, got %d", amount)
	}
	holder, ok, err := e.state.AssetHolder(e.asset)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAssetNotFound
	}
	if holder != from {
		return ErrUnauthorized
	}
	return e.state.SetAssetHolder(e.asset, e.Vault())
}

// Release moves the custodied unit to the destination. It fails with
// ErrInsufficientEscrow when the requested amount exceeds the balance, which
// also makes a second release of the same unit impossible.
func (e *EscrowAccount) Release(destination [20]byte, amount uint64) error {
	if amount == 0 {
		return nil
	}
	balance, err := e.Balance()
	if err != nil {
		return err
	}
	if amount > balance {
		return ErrInsufficientEscrow
	}
	return e.state.SetAssetHolder(e.asset, destination)
}
