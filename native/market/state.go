package market

import (
	"unicusmarket/core/types"
)

// State is the narrow view of persistence the engine requires: listing
// records, asset custody, and value accounts. core/state.Manager implements
// it; tests supply an in-memory double.
type State interface {
	OrderGet(id [32]byte) (*Order, bool, error)
	OrderPut(order *Order) error
	OrderDelete(id [32]byte) error

	AuctionGet(id [32]byte) (*Auction, bool, error)
	AuctionPut(auction *Auction) error
	AuctionDelete(id [32]byte) error

	// Asset custody. The holder of an escrowed asset is the listing's
	// vault address for the duration of the listing.
	AssetHolder(assetID [32]byte) ([20]byte, bool, error)
	SetAssetHolder(assetID [32]byte, holder [20]byte) error
	// AssetMinter resolves the royalty beneficiary recorded at mint time.
	AssetMinter(assetID [32]byte) ([20]byte, bool, error)

	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// StateTx is a state view whose writes are buffered until Commit. Discarding
// the transaction without committing leaves the backing state untouched,
// which is how a transition stays all-or-nothing.
type StateTx interface {
	State
	Commit() error
}

// EngineState is the backend contract for the engine: readable directly and
// able to open write transactions.
type EngineState interface {
	State
	Begin() StateTx
}
