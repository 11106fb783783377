package market

import (
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Listing namespaces. An asset can back at most one open listing per
// namespace at a time because the listing address is derived from them.
const (
	NamespaceOrder   = "order"
	NamespaceAuction = "auction"
)

const maxMemoLength = 256

// OrderStatus tracks the lifecycle of a fixed-price listing. Filled and
// Cancelled are terminal: the listing and its escrow are deallocated on
// reaching either, so persisted orders are always Open.
type OrderStatus uint8

const (
	OrderOpen OrderStatus = iota
	OrderFilled
	OrderCancelled
)

// AuctionStatus tracks the lifecycle of a timed auction listing.
type AuctionStatus uint8

const (
	AuctionOpen AuctionStatus = iota
	AuctionResolved
	AuctionCancelled
)

// Order is a fixed-price sale of a single asset unit held in escrow.
type Order struct {
	ID        [32]byte
	Creator   [20]byte
	AssetID   [32]byte
	Memo      string
	Price     *big.Int
	CreatedAt int64
	Status    OrderStatus
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Price != nil {
		clone.Price = new(big.Int).Set(o.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// Auction is a timed English auction over a single asset unit. Price carries
// the current high bid (initially the reserve) and RefundReceiver names the
// party owed that amount if outbid, cancelled, or unresolved. While no bid has
// been placed RefundReceiver equals Creator and no payment is in custody.
type Auction struct {
	ID             [32]byte
	Creator        [20]byte
	AssetID        [32]byte
	Memo           string
	Price          *big.Int
	RefundReceiver [20]byte
	StartTime      int64
	EndTime        int64
	CreatedAt      int64
	Status         AuctionStatus
}

// Clone returns a deep copy of the auction.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Price != nil {
		clone.Price = new(big.Int).Set(a.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// HasBid reports whether a real bid payment is currently in custody.
func (a *Auction) HasBid() bool {
	if a == nil {
		return false
	}
	return a.RefundReceiver != a.Creator
}

// Valid reports whether the status value is within the supported range.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderOpen, OrderFilled, OrderCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether the status value is within the supported range.
func (s AuctionStatus) Valid() bool {
	switch s {
	case AuctionOpen, AuctionResolved, AuctionCancelled:
		return true
	default:
		return false
	}
}

// SanitizeOrder validates an order record and returns a cloned instance with
// trimmed memo text. The original value is not mutated.
func SanitizeOrder(o *Order) (*Order, error) {
	if o == nil {
		return nil, fmt.Errorf("market: nil order")
	}
	clone := o.Clone()
	clone.Memo = strings.TrimSpace(clone.Memo)
	if len(clone.Memo) > maxMemoLength {
		return nil, fmt.Errorf("market: memo exceeds %d bytes", maxMemoLength)
	}
	if clone.Price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("market: invalid order status %d", clone.Status)
	}
	return clone, nil
}

// SanitizeAuction validates an auction record and returns a cloned instance
// with trimmed memo text. The original value is not mutated.
func SanitizeAuction(a *Auction) (*Auction, error) {
	if a == nil {
		return nil, fmt.Errorf("market: nil auction")
	}
	clone := a.Clone()
	clone.Memo = strings.TrimSpace(clone.Memo)
	if len(clone.Memo) > maxMemoLength {
		return nil, fmt.Errorf("market: memo exceeds %d bytes", maxMemoLength)
	}
	if clone.Price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if clone.StartTime >= clone.EndTime {
		return nil, ErrInvalidTimeRange
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("market: invalid auction status %d", clone.Status)
	}
	return clone, nil
}

// ListingAddress derives the deterministic address for the listing of an asset
// within a namespace. Callers recompute it without querying the engine, which
// also enforces at most one open listing per (namespace, asset) pair.
func ListingAddress(namespace string, assetID [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash([]byte(namespace), assetID[:])
}

// VaultAddress derives the account address that holds value in custody for a
// listing: the escrowed asset unit and, for auctions, the current high-bid
// payment.
func VaultAddress(listingID [32]byte) [20]byte {
	hash := ethcrypto.Keccak256(listingID[:], []byte("vault"))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}
