package market

import "errors"

// Error is a caller-visible transition failure with a stable numeric code.
// The codes are part of the external interface: RPC clients match on them,
// so they must never be renumbered.
type Error struct {
	Code    uint32
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string { return e.Message }

var (
	// ErrInvalidPrice rejects listing creation with a non-positive price.
	ErrInvalidPrice = &Error{Code: 6001, Message: "market: price must be positive"}
	// ErrListingAlreadyExists rejects creation while an open listing
	// occupies the derived address for the asset.
	ErrListingAlreadyExists = &Error{Code: 6002, Message: "market: open listing already exists for asset"}
	// ErrUnauthorized rejects a transition invoked by a party other than
	// the one the transition requires.
	ErrUnauthorized = &Error{Code: 6003, Message: "market: caller not authorized"}
	// ErrInvalidState rejects a transition against a listing that is not
	// in the required status, including listings already closed.
	ErrInvalidState = &Error{Code: 6004, Message: "market: listing not open"}
	// ErrInsufficientMoney rejects a payment the payer cannot cover. No
	// state is mutated on this failure.
	ErrInsufficientMoney = &Error{Code: 6005, Message: "market: balance insufficient"}
	// ErrAuctionNotOpen rejects bids outside the auction time window or
	// against a closed auction.
	ErrAuctionNotOpen = &Error{Code: 6006, Message: "market: auction not open for bids"}
	// ErrInvalidTimeRange rejects auction creation unless start < end.
	ErrInvalidTimeRange = &Error{Code: 6007, Message: "market: auction start must precede end"}
	// ErrAuctionNotEnded rejects resolution before the auction end time.
	ErrAuctionNotEnded = &Error{Code: 6008, Message: "market: auction still running"}
	// ErrActiveBidExists rejects cancellation while a real bid is standing.
	ErrActiveBidExists = &Error{Code: 6009, Message: "market: standing bid must settle first"}
	// ErrBidTooLow rejects bids that do not strictly exceed the current
	// price, including bids raced out by a concurrent higher bid.
	ErrBidTooLow = &Error{Code: 6010, Message: "market: bid must exceed current price"}
	// ErrInsufficientEscrow is returned by the custody primitive when a
	// release requests more units than the escrow holds.
	ErrInsufficientEscrow = &Error{Code: 6011, Message: "market: escrow balance too low"}
	// ErrAssetNotFound rejects listings over an unregistered asset.
	ErrAssetNotFound = &Error{Code: 6012, Message: "market: unknown asset"}
)

var errNilState = errors.New("market engine: state not configured")

// CodeFor extracts the stable numeric code from a transition failure,
// unwrapping as needed. It returns 0 when the error carries no market code.
func CodeFor(err error) uint32 {
	var marketErr *Error
	if errors.As(err, &marketErr) {
		return marketErr.Code
	}
	return 0
}
