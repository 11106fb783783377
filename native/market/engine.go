package market

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"unicusmarket/core/events"
	"unicusmarket/core/types"
	nativecommon "unicusmarket/native/common"
	"unicusmarket/native/fees"
)

const moduleName = "market"

var errNilTreasury = errors.New("market engine: fee treasury not configured")

const lockStripes = 64

// Engine validates and executes listing transitions: order create/cancel/fill,
// auction create/bid/cancel/resolve. Every transition runs its precondition
// checks before any value movement and applies all of its effects through a
// single state transaction, so a failure is always a pure no-op.
type Engine struct {
	state          EngineState
	emitter        events.Emitter
	nowFn          func() int64
	pauses         nativecommon.PauseView
	treasury       [20]byte
	feeDenominator uint64
	listingFeeBps  uint32

	// Transitions against the same listing serialize on a striped mutex;
	// listings on different stripes proceed concurrently.
	locks [lockStripes]sync.Mutex

	// commitMu guards the shared-state section of every transition.
	// Account balances and asset custody span listings, so the funds
	// check and the commit that spends them must be one critical section
	// or two listings could spend the same balance.
	commitMu sync.Mutex
}

// NewEngine creates a market engine with a no-op emitter and the default fee
// configuration.
func NewEngine() *Engine {
	return &Engine{
		emitter:        events.NoopEmitter{},
		nowFn:          func() int64 { return time.Now().Unix() },
		feeDenominator: fees.DefaultDenominator,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for auction gates. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetPauses wires the administrative pause switchboard.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetTreasury configures the address receiving listing fees, and the fallback
// beneficiary for settlement fees when an asset has no recorded minter.
func (e *Engine) SetTreasury(addr [20]byte) { e.treasury = addr }

// SetFeeDenominator configures the denominator of the settlement fee split.
// Zero restores the default.
func (e *Engine) SetFeeDenominator(denominator uint64) {
	if denominator == 0 {
		denominator = fees.DefaultDenominator
	}
	e.feeDenominator = denominator
}

// SetListingFeeBps configures the creation-time listing fee in basis points.
func (e *Engine) SetListingFeeBps(bps uint32) { e.listingFeeBps = bps }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) lockFor(id [32]byte) *sync.Mutex {
	return &e.locks[id[0]%lockStripes]
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

// transferValue moves spendable balance between accounts in the supplied
// state view. The balance check runs against that same view, so amounts
// already moved earlier in the transaction are accounted for.
func transferValue(st State, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("market: negative transfer amount")
	}
	if from == to {
		return nil
	}
	fromAcc, err := st.GetAccount(from)
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	if fromAcc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: need %s", ErrInsufficientMoney, amount)
	}
	toAcc, err := st.GetAccount(to)
	if err != nil {
		return err
	}
	toAcc = ensureAccount(toAcc)
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := st.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return st.PutAccount(to, toAcc)
}

// feeBeneficiary resolves who receives the settlement fee share for an asset:
// the recorded minter, falling back to the treasury.
func (e *Engine) feeBeneficiary(st State, assetID [32]byte) ([20]byte, error) {
	minter, ok, err := st.AssetMinter(assetID)
	if err != nil {
		return [20]byte{}, err
	}
	if ok && minter != ([20]byte{}) {
		return minter, nil
	}
	if e.treasury == ([20]byte{}) {
		return [20]byte{}, errNilTreasury
	}
	return e.treasury, nil
}

func (e *Engine) chargeListingFee(tx StateTx, creator [20]byte, price *big.Int) error {
	fee := fees.ListingFee(price, e.listingFeeBps)
	if fee.Sign() == 0 {
		return nil
	}
	if e.treasury == ([20]byte{}) {
		return errNilTreasury
	}
	return transferValue(tx, creator, e.treasury, fee)
}

// CreateOrder escrows one unit of the asset and opens a fixed-price listing
// at the address derived from ("order", asset).
func (e *Engine) CreateOrder(creator [20]byte, assetID [32]byte, memo string, price *big.Int) (*Order, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	id := ListingAddress(NamespaceOrder, assetID)
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if _, ok, err := e.state.OrderGet(id); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrListingAlreadyExists
	}
	holder, ok, err := e.state.AssetHolder(assetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotFound
	}
	if holder != creator {
		return nil, ErrUnauthorized
	}
	order, err := SanitizeOrder(&Order{
		ID:        id,
		Creator:   creator,
		AssetID:   assetID,
		Memo:      memo,
		Price:     price,
		CreatedAt: e.now(),
		Status:    OrderOpen,
	})
	if err != nil {
		return nil, err
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	tx := e.state.Begin()
	if err := e.chargeListingFee(tx, creator, order.Price); err != nil {
		return nil, err
	}
	escrow := NewEscrowAccount(tx, id, assetID)
	if err := escrow.Deposit(creator, 1); err != nil {
		return nil, err
	}
	if err := tx.OrderPut(order); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.emit(NewOrderCreatedEvent(order))
	return order.Clone(), nil
}

// CancelOrder returns the escrowed asset to the creator and closes the
// listing. Only the creator may cancel, and only while the order is open.
func (e *Engine) CancelOrder(id [32]byte, caller [20]byte) (*Order, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	order, ok, err := e.state.OrderGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || order.Status != OrderOpen {
		return nil, ErrInvalidState
	}
	if caller != order.Creator {
		return nil, ErrUnauthorized
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	tx := e.state.Begin()
	escrow := NewEscrowAccount(tx, id, order.AssetID)
	if err := escrow.Release(order.Creator, 1); err != nil {
		return nil, err
	}
	if err := tx.OrderDelete(id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	order.Status = OrderCancelled
	e.emit(NewOrderCancelledEvent(order))
	return order.Clone(), nil
}

// FillOrder settles an open order: the price moves from the buyer to the
// creator minus the fee share, the fee share goes to the asset's minter, and
// the escrowed asset goes to the buyer. The listing closes.
func (e *Engine) FillOrder(id [32]byte, buyer [20]byte, feePoints uint32) (*Order, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	order, ok, err := e.state.OrderGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || order.Status != OrderOpen {
		return nil, ErrInvalidState
	}
	toCreator, toFee, err := fees.Split(order.Price, feePoints, e.feeDenominator)
	if err != nil {
		return nil, err
	}
	var beneficiary [20]byte
	if toFee.Sign() > 0 {
		if beneficiary, err = e.feeBeneficiary(e.state, order.AssetID); err != nil {
			return nil, err
		}
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	buyerAcc, err := e.state.GetAccount(buyer)
	if err != nil {
		return nil, err
	}
	if ensureAccount(buyerAcc).Balance.Cmp(order.Price) < 0 {
		return nil, ErrInsufficientMoney
	}
	tx := e.state.Begin()
	if err := transferValue(tx, buyer, order.Creator, toCreator); err != nil {
		return nil, err
	}
	if toFee.Sign() > 0 {
		if err := transferValue(tx, buyer, beneficiary, toFee); err != nil {
			return nil, err
		}
	}
	escrow := NewEscrowAccount(tx, id, order.AssetID)
	if err := escrow.Release(buyer, 1); err != nil {
		return nil, err
	}
	if err := tx.OrderDelete(id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	order.Status = OrderFilled
	e.emit(NewOrderFilledEvent(order, buyer))
	return order.Clone(), nil
}

// CreateAuction escrows one unit of the asset and opens a timed auction at
// the address derived from ("auction", asset). The reserve price becomes the
// initial price and the creator is the initial refund receiver.
func (e *Engine) CreateAuction(creator [20]byte, assetID [32]byte, memo string, reserve *big.Int, startTime, endTime int64) (*Auction, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if reserve == nil || reserve.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if startTime >= endTime {
		return nil, ErrInvalidTimeRange
	}
	id := ListingAddress(NamespaceAuction, assetID)
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if _, ok, err := e.state.AuctionGet(id); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrListingAlreadyExists
	}
	holder, ok, err := e.state.AssetHolder(assetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotFound
	}
	if holder != creator {
		return nil, ErrUnauthorized
	}
	auction, err := SanitizeAuction(&Auction{
		ID:             id,
		Creator:        creator,
		AssetID:        assetID,
		Memo:           memo,
		Price:          reserve,
		RefundReceiver: creator,
		StartTime:      startTime,
		EndTime:        endTime,
		CreatedAt:      e.now(),
		Status:         AuctionOpen,
	})
	if err != nil {
		return nil, err
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	tx := e.state.Begin()
	if err := e.chargeListingFee(tx, creator, auction.Price); err != nil {
		return nil, err
	}
	escrow := NewEscrowAccount(tx, id, assetID)
	if err := escrow.Deposit(creator, 1); err != nil {
		return nil, err
	}
	if err := tx.AuctionPut(auction); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.emit(NewAuctionCreatedEvent(auction))
	return auction.Clone(), nil
}

// Bid places a bid on an open auction within its time window. The previous
// high bid is refunded to the previous refund receiver in the same atomic
// unit that takes the new payment into custody. Concurrent bids serialize on
// the listing; the later one observes the raised price and fails BidTooLow.
func (e *Engine) Bid(id [32]byte, bidder [20]byte, amount *big.Int) (*Auction, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	auction, ok, err := e.state.AuctionGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || auction.Status != AuctionOpen {
		return nil, ErrAuctionNotOpen
	}
	now := e.now()
	if now < auction.StartTime || now >= auction.EndTime {
		return nil, ErrAuctionNotOpen
	}
	if bidder == auction.Creator {
		// A creator self-bid would alias the refund receiver and strand
		// the payment in custody.
		return nil, ErrUnauthorized
	}
	if amount == nil || amount.Cmp(auction.Price) <= 0 {
		return nil, ErrBidTooLow
	}
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	bidderAcc, err := e.state.GetAccount(bidder)
	if err != nil {
		return nil, err
	}
	if ensureAccount(bidderAcc).Balance.Cmp(amount) < 0 {
		return nil, ErrInsufficientMoney
	}

	vault := VaultAddress(id)
	tx := e.state.Begin()
	if auction.HasBid() {
		if err := transferValue(tx, vault, auction.RefundReceiver, auction.Price); err != nil {
			return nil, err
		}
	}
	if err := transferValue(tx, bidder, vault, amount); err != nil {
		return nil, err
	}
	auction.Price = new(big.Int).Set(amount)
	auction.RefundReceiver = bidder
	if err := tx.AuctionPut(auction); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.emit(NewAuctionBidEvent(auction))
	return auction.Clone(), nil
}

// CancelAuction returns the escrowed asset to the creator and closes the
// listing. Cancellation requires that no real bid is standing; refunding a
// standing bid on cancellation is not supported.
func (e *Engine) CancelAuction(id [32]byte, caller [20]byte) (*Auction, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	auction, ok, err := e.state.AuctionGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || auction.Status != AuctionOpen {
		return nil, ErrInvalidState
	}
	if caller != auction.Creator {
		return nil, ErrUnauthorized
	}
	if auction.HasBid() {
		return nil, ErrActiveBidExists
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	tx := e.state.Begin()
	escrow := NewEscrowAccount(tx, id, auction.AssetID)
	if err := escrow.Release(auction.Creator, 1); err != nil {
		return nil, err
	}
	if err := tx.AuctionDelete(id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	auction.Status = AuctionCancelled
	e.emit(NewAuctionCancelledEvent(auction))
	return auction.Clone(), nil
}

// ResolveAuction settles an auction after its end time. With no bids the
// asset simply returns to the creator. With a standing bid the held payment
// is split between the creator and the fee beneficiary and the asset goes to
// the winning bidder. Anyone may invoke resolution once the gate has passed.
func (e *Engine) ResolveAuction(id [32]byte, resolver [20]byte, feePoints uint32) (*Auction, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	_ = resolver
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	auction, ok, err := e.state.AuctionGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || auction.Status != AuctionOpen {
		return nil, ErrInvalidState
	}
	if e.now() < auction.EndTime {
		return nil, ErrAuctionNotEnded
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	tx := e.state.Begin()
	escrow := NewEscrowAccount(tx, id, auction.AssetID)
	if auction.HasBid() {
		toCreator, toFee, err := fees.Split(auction.Price, feePoints, e.feeDenominator)
		if err != nil {
			return nil, err
		}
		vault := VaultAddress(id)
		if err := transferValue(tx, vault, auction.Creator, toCreator); err != nil {
			return nil, err
		}
		if toFee.Sign() > 0 {
			beneficiary, err := e.feeBeneficiary(e.state, auction.AssetID)
			if err != nil {
				return nil, err
			}
			if err := transferValue(tx, vault, beneficiary, toFee); err != nil {
				return nil, err
			}
		}
		if err := escrow.Release(auction.RefundReceiver, 1); err != nil {
			return nil, err
		}
	} else {
		if err := escrow.Release(auction.Creator, 1); err != nil {
			return nil, err
		}
	}
	if err := tx.AuctionDelete(id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	auction.Status = AuctionResolved
	e.emit(NewAuctionResolvedEvent(auction))
	return auction.Clone(), nil
}

// GetOrder returns the open order stored at the given listing address.
func (e *Engine) GetOrder(id [32]byte) (*Order, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	order, ok, err := e.state.OrderGet(id)
	if err != nil || !ok {
		return nil, false, err
	}
	return order.Clone(), true, nil
}

// GetAuction returns the open auction stored at the given listing address.
func (e *Engine) GetAuction(id [32]byte) (*Auction, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	auction, ok, err := e.state.AuctionGet(id)
	if err != nil || !ok {
		return nil, false, err
	}
	return auction.Clone(), true, nil
}
