package market

import (
	"bytes"
	"errors"
	"math/big"
	"sync"
	"testing"

	"unicusmarket/core/types"
)

type mockAsset struct {
	holder [20]byte
	minter [20]byte
}

type mockState struct {
	mu       sync.RWMutex
	orders   map[[32]byte]*Order
	auctions map[[32]byte]*Auction
	accounts map[[20]byte]*types.Account
	assets   map[[32]byte]mockAsset
}

func newMockState() *mockState {
	return &mockState{
		orders:   make(map[[32]byte]*Order),
		auctions: make(map[[32]byte]*Auction),
		accounts: make(map[[20]byte]*types.Account),
		assets:   make(map[[32]byte]mockAsset),
	}
}

func (m *mockState) clone() *mockState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := newMockState()
	for id, order := range m.orders {
		c.orders[id] = order.Clone()
	}
	for id, auction := range m.auctions {
		c.auctions[id] = auction.Clone()
	}
	for addr, acct := range m.accounts {
		c.accounts[addr] = acct.Clone()
	}
	for id, asset := range m.assets {
		c.assets[id] = asset
	}
	return c
}

func (m *mockState) OrderGet(id [32]byte) (*Order, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, false, nil
	}
	return order.Clone(), true, nil
}

func (m *mockState) OrderPut(order *Order) error {
	sanitized, err := SanitizeOrder(order)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[sanitized.ID] = sanitized
	return nil
}

func (m *mockState) OrderDelete(id [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, id)
	return nil
}

func (m *mockState) AuctionGet(id [32]byte) (*Auction, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	auction, ok := m.auctions[id]
	if !ok {
		return nil, false, nil
	}
	return auction.Clone(), true, nil
}

func (m *mockState) AuctionPut(auction *Auction) error {
	sanitized, err := SanitizeAuction(auction)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auctions[sanitized.ID] = sanitized
	return nil
}

func (m *mockState) AuctionDelete(id [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.auctions, id)
	return nil
}

func (m *mockState) AssetHolder(assetID [32]byte) ([20]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	asset, ok := m.assets[assetID]
	if !ok {
		return [20]byte{}, false, nil
	}
	return asset.holder, true, nil
}

func (m *mockState) SetAssetHolder(assetID [32]byte, holder [20]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset, ok := m.assets[assetID]
	if !ok {
		return errors.New("mock: unknown asset")
	}
	asset.holder = holder
	m.assets[assetID] = asset
	return nil
}

func (m *mockState) AssetMinter(assetID [32]byte) ([20]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	asset, ok := m.assets[assetID]
	if !ok {
		return [20]byte{}, false, nil
	}
	return asset.minter, true, nil
}

func (m *mockState) GetAccount(addr [20]byte) (*types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct, ok := m.accounts[addr]
	if !ok {
		return (&types.Account{}).Clone(), nil
	}
	return acct.Clone(), nil
}

func (m *mockState) PutAccount(addr [20]byte, account *types.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[addr] = account.Clone()
	return nil
}

type mockTx struct {
	*mockState
	parent *mockState
}

func (m *mockState) Begin() StateTx {
	return &mockTx{mockState: m.clone(), parent: m}
}

func (t *mockTx) Commit() error {
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	t.parent.orders = t.orders
	t.parent.auctions = t.auctions
	t.parent.accounts = t.accounts
	t.parent.assets = t.assets
	return nil
}

type pauseAll struct{}

func (pauseAll) IsPaused(string) bool { return true }

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestAssetID(fill byte) [32]byte {
	var id [32]byte
	copy(id[:], bytes.Repeat([]byte{fill}, 32))
	return id
}

var (
	creatorAddr  = newTestAddress(0x01)
	buyerAddr    = newTestAddress(0x02)
	bidderAddr   = newTestAddress(0x03)
	rivalAddr    = newTestAddress(0x04)
	minterAddr   = newTestAddress(0x05)
	treasuryAddr = newTestAddress(0xFE)
)

const baseTime int64 = 1_700_000_000

type testEnv struct {
	engine *Engine
	state  *mockState
	now    int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{state: newMockState(), now: baseTime}
	env.engine = NewEngine()
	env.engine.SetState(env.state)
	env.engine.SetTreasury(treasuryAddr)
	env.engine.SetNowFunc(func() int64 { return env.now })
	return env
}

func (env *testEnv) fund(addr [20]byte, amount int64) {
	env.state.accounts[addr] = &types.Account{Balance: big.NewInt(amount)}
}

func (env *testEnv) registerAsset(assetID [32]byte, holder, minter [20]byte) {
	env.state.assets[assetID] = mockAsset{holder: holder, minter: minter}
}

func (env *testEnv) balance(t *testing.T, addr [20]byte) *big.Int {
	t.Helper()
	acct, err := env.state.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return acct.Balance
}

func (env *testEnv) holder(t *testing.T, assetID [32]byte) [20]byte {
	t.Helper()
	holder, ok, err := env.state.AssetHolder(assetID)
	if err != nil || !ok {
		t.Fatalf("asset holder: ok=%v err=%v", ok, err)
	}
	return holder
}

// totalValue sums every account balance known to the state, including
// listing vaults and the treasury. Transitions must conserve it.
func (env *testEnv) totalValue() *big.Int {
	total := big.NewInt(0)
	for _, acct := range env.state.accounts {
		if acct.Balance != nil {
			total.Add(total, acct.Balance)
		}
	}
	return total
}

func mustCreateOrder(t *testing.T, env *testEnv, assetID [32]byte, price int64) *Order {
	t.Helper()
	order, err := env.engine.CreateOrder(creatorAddr, assetID, "test listing", big.NewInt(price))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func mustCreateAuction(t *testing.T, env *testEnv, assetID [32]byte, reserve int64, start, end int64) *Auction {
	t.Helper()
	auction, err := env.engine.CreateAuction(creatorAddr, assetID, "test auction", big.NewInt(reserve), start, end)
	if err != nil {
		t.Fatalf("create auction: %v", err)
	}
	return auction
}

func TestCreateOrderEscrowsAsset(t *testing.T) {
	env := newTestEnv(t)
	assetID := newTestAssetID(0xAA)
	env.registerAsset(assetID, creatorAddr, minterAddr)
	env.fund(creatorAddr, 1_000_000)

	order := mustCreateOrder(t, env, assetID, 1_000_000)

	if order.ID != ListingAddress(NamespaceOrder, assetID) {
		t.Fatal("order id must equal the derived listing address")
	}
	if order.Status != OrderOpen {
		t.Fatalf("status = %d, want open", order.Status)
	}
	if got := env.holder(t, assetID); got != VaultAddress(order.ID) {
		t.Fatal("asset must be held by the listing vault")
	}
	escrow := NewEscrowAccount(env.state, order.ID, assetID)
	balance, err := escrow.Balance()
	if err != nil {
		t.Fatalf("escrow balance: %v", err)
	}
	if balance != 1 {
		t.Fatalf("escrow balance = %d, want 1", balance)
	}
}

func TestCreateOrderChargesListingFee(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetListingFeeBps(200)
	assetID := newTestAssetID(0xAB)
	env.registerAsset(assetID, creatorAddr, minterAddr)
	env.fund(creatorAddr, 100_000)

	mustCreateOrder(t, env, assetID, 1_000_000)

	// 200 bps of 1_000_000 = 20_000 to the treasury.
	if got := env.balance(t, creatorAddr); got.Cmp(big.NewInt(80_000)) != 0 {
		t.Fatalf("creator balance = %s, want 80000", got)
	}
	if got := env.balance(t, treasuryAddr); got.Cmp(big.NewInt(20_000)) != 0 {
		t.Fatalf("treasury balance = %s, want 20000", got)
	}
}

func TestCreateOrderListingFeeInsufficient(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetListingFeeBps(200)
	assetID := newTestAssetID(0xAC)
	env.registerAsset(assetID, creatorAddr, minterAddr)
	env.fund(creatorAddr, 10_000) // fee would be 20_000

	_, err := env.engine.CreateOrder(creatorAddr, assetID, "", big.NewInt(1_000_000))
	if !errors.Is(err, ErrInsufficientMoney) {
		t.Fatalf("err = %v, want ErrInsufficientMoney", err)
	}
	// Failure must be a pure no-op.
	if got := env.holder(t, assetID); got != creatorAddr {
		t.Fatal("asset custody must be unchanged after failed creation")
	}
	if _, ok, _ := env.state.OrderGet(ListingAddress(NamespaceOrder, assetID)); ok {
		t.Fatal("no order may exist after failed creation")
	}
	if got := env.balance(t, creatorAddr); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("creator balance mutated on failure: %s", got)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	env := newTestEnv(t)
	assetID := newTestAssetID(0xAD)
	env.registerAsset(assetID, creatorAddr, minterAddr)

	if _, err := env.engine.CreateOrder(creatorAddr, assetID, "", big.NewInt(0)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("zero price err = %v, want ErrInvalidPrice", err)
	}
	if _, err := env.engine.CreateOrder(creatorAddr, assetID, "", big.NewInt(-5)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("negative price err = %v, want ErrInvalidPrice", err)
	}
	if _, err := env.engine.CreateOrder(creatorAddr, newTestAssetID(0xFF), "", big.NewInt(10)); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("unknown asset err = %v, want ErrAssetNotFound", err)
	}
	if _, err := env.engine.CreateOrder(buyerAddr, assetID, "", big.NewInt(10)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-holder err = %v, want ErrUnauthorized", err)
	}

	mustCreateOrder(t, env, assetID, 10)
	if _, err := env.engine.CreateOrder(creatorAddr, assetID, "", big.NewInt(10)); !errors.Is(err, ErrListingAlreadyExists) {
		t.Fatalf("duplicate err = %v, want ErrListingAlreadyExists", err)
	}
}

func TestFillOrderHappyPath(t *testing.T) {
	env := newTestEnv(t)
	assetID := newTestAssetID(0xB0)
	env.registerAsset(assetID, creatorAddr, minterAddr)
	env.fund(buyerAddr, 2_000_000)

	order := mustCreateOrder(t, env, assetID, 1_000_000)
	before := env.totalValue()

	filled, err := env.engine.FillOrder(order.ID, buyerAddr, 3)
	if err != nil {
		t.Fatalf("fill order: %v", err)
	}
	if filled.Status != OrderFilled {
		t.Fatalf("status = %d, want filled", filled.Status)
	}
	// Buyer holds the token, listing and escrow are gone.
	if got := env.holder(t, assetID); got != buyerAddr {
		t.Fatal("buyer must hold the asset after fill")
	}
	if _, ok, _ := env.state.OrderGet(order.ID); ok {
		t.Fatal("order must be deallocated after fill")
	}
	// Proceeds: fee(3/100) = 30_000 to the minter, remainder to creator.
	if got := env.balance(t, creatorAddr); got.Cmp(big.NewInt(970_000)) != 0 {
		t.Fatalf("creator balance = %s, want 970000", got)
	}
	if got := env.balance(t, minterAddr); got.Cmp(big.NewInt(30_000)) != 0 {
		t.Fatalf("minter balance = %s, want 30000", got)
	}
	if got := env.balance(t, buyerAddr); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("buyer balance = %s, want 1000000", got)
	}
	if env.totalValue().Cmp(before) != 0 {
		t.Fatal("settlement must conserve total value")
	}

	// A second settlement attempt must fail without touching balances.
	if _, err := env.engine.FillOrder(order.ID, buyerAddr, 3); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second fill err = %v, want ErrInvalidState", err)
	}
	if got := env.balance(t, creatorAddr); got.Cmp(big.NewInt(970_000)) != 0 {
		t.Fatal("second fill must not move value")
	}
}

func TestFillOrderInsufficientMoney(t *testing.T) {
	env := newTestEnv(t)
	assetID := newTestAssetID(0xB1)
	env.registerAsset(assetID, creatorAddr, minterAddr)
	env.fund(buyerAddr, 1_000_000)

	order := mustCreateOrder(t, env, assetID, 2_000_000)

	_, err := env.engine.FillOrder(order.ID, buyerAddr, 3)
	if !errors.Is(err, ErrInsufficientMoney) {
		t.Fatalf("err = %v, want ErrInsufficientMoney", err)
	}
	if CodeFor(err) != 6005 {
		t.Fatalf("code = %d, want 6005", CodeFor(err))
	}
	// Order remains open and nothing moved.
	stored, ok, _ := env.state.OrderGet(order.ID)
	if !ok || stored.Status != OrderOpen {
		t.Fatal("order must remain open after failed fill")
	}
	if got := env.balance(t, buyerAddr); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("buyer balance = %s, want unchanged 1000000", got)
	}
	if got := env.holder(t, assetID); got != VaultAddress(order.ID) {
		t.Fatal("asset must remain in escrow after failed fill")
	}
}

func TestCancelOrder(t *testing.T) {
	env := newTestEnv(t)
	assetID := newTestAssetID(0xB2)
	env.registerAsset(assetID, creatorAddr, minterAddr)

	order := mustCreateOrder(t, env, assetID, 500)

	if _, err := env.engine.CancelOrder(order.ID, buyerAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("foreign cancel err = %v, want ErrUnauthorized", err)
	}

	cancelled, err := env.engine.CancelOrder(order.ID, creatorAddr)
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	if cancelled.Status != OrderCancelled {
		t.Fatalf("status = %d, want cancelled", cancelled.Status)
	}
	if got := env.holder(t, assetID); got != creatorAddr {
		t.Fatal("asset must return to the creator on cancel")
	}
	if _, ok, _ := env.state.OrderGet(order.ID); ok {
		t.Fatal("order must be deallocated after cancel")
	}

	if _, err := env.engine.CancelOrder(order.ID, creatorAddr); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second cancel err = %v, want ErrInvalidState", err)
	}
}

func TestCreateAuctionValidation(t *testing.T) {
	env := newTestEnv(t)
	assetID := newTestAssetID(0xC0)
	env.registerAsset(assetID, creatorAddr, minterAddr)

	if _, err := env.engine.CreateAuction(creatorAddr, assetID, "", big.NewInt(100), baseTime+100, baseTime+100); !errors.Is(err, ErrInvalidTimeRange) {
		t.Fatalf("equal times err = %v, want ErrInvalidTimeRange", err)
	}
	if _, err := env.engine.CreateAuction(creatorAddr, assetID, "", big.NewInt(100), baseTime+200, baseTime+100); !errors.Is(err, ErrInvalidTimeRange) {
		t.Fatalf("inverted times err = %v, want ErrInvalidTimeRange", err)
	}
	if _, err := env.engine.CreateAuction(creatorAddr, assetID, "", big.NewInt(0), baseTime, baseTime+100); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("zero reserve err = %v, want ErrInvalidPrice", err)
	}

	auction := mustCreateAuction(t, env, assetID, 100, baseTime, baseTime+100)
	if auction.RefundReceiver != creatorAddr {
		t.Fatal("refund receiver must initialize to the creator")
	}
	if _, err := env.engine.CreateAuction(creatorAddr, assetID, "", big.NewInt(100), baseTime, baseTime+100); !errors.Is(err, ErrListingAlreadyExists) {
		t.Fatalf("duplicate err = %v, want ErrListingAlreadyExists", err)
	}
}

func TestBidFlow(t *testing.T) {
	env := newTestEnv(t)
	assetID := newTestAssetID(0xC1)
	env.registerAsset(assetID, creatorAddr, minterAddr)
	env.fund(bidderAddr, 2_000_000)
	env.fund(rivalAddr, 3_000_000)

	auction := mustCreateAuction(t, env, assetID, 1_000_000, baseTime, baseTime+1000)
	vault := VaultAddress(auction.ID)
	before := env.totalValue()

	first, err := env.engine.Bid(auction.ID, bidderAddr, big.NewInt(1_100_000))
	if err != nil {
		t.Fatalf("first bid: %v", err)
	}
	if first.Price.Cmp(big.NewInt(1_100_000)) != 0 || first.RefundReceiver != bidderAddr {
		t.Fatal("first bid must raise the price and set the refund receiver")
	}
	if got := env.balance(t, vault); got.Cmp(big.NewInt(1_100_000)) != 0 {
		t.Fatalf("vault balance = %s, want 1100000", got)
	}

	second, err := env.engine.Bid(auction.ID, rivalAddr, big.NewInt(1_200_000))
	if err != nil {
		t.Fatalf("second bid: %v", err)
	}
	if second.Price.Cmp(big.NewInt(1_200_000)) != 0 || second.RefundReceiver != rivalAddr {
		t.Fatal("second bid must supersede the first")
	}
	// First bidder refunded in full; vault holds only the current high bid.
	if got := env.balance(t, bidderAddr); got.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Fatalf("outbid bidder balance = %s, want full refund to 2000000", got)
	}
	if got := env.balance(t, vault); got.Cmp(big.NewInt(1_200_000)) != 0 {
		t.Fatalf("vault balance = %s, want 1200000", got)
	}
	if env.totalValue().Cmp(before) != 0 {
		t.Fatal("bidding must conserve total value")
	}

	// A bid at the current price is too low; a stale rebid of the old
	// price fails the same way.
	if _, err := env.engine.Bid(auction.ID, bidderAddr, big.NewInt(1_200_000)); !errors.Is(err, ErrBidTooLow) {
		t.Fatalf("equal bid err = %v, want ErrBidTooLow", err)
	}
	if _, err := env.engine.Bid(auction.ID, bidderAddr, big.NewInt(1_100_000)); !errors.Is(err, ErrBidTooLow) {
		t.Fatalf("stale bid err = %v, want ErrBidTooLow", err)
	}
}

func TestBidGates(t *testing.T) {
	env := newTestEnv(t)
	assetID := newTestAssetID(0xC2)
	env.registerAsset(assetID, creatorAddr, minterAddr)
	env.fund(bidderAddr, 5_000_000)

	auction := mustCreateAuction(t, env, assetID, 1_000_000, baseTime+100, baseTime+200)

	env.now = baseTime + 50 // before start
	if _, err := env.engine.Bid(auction.ID, bidderAddr, big.NewInt(2_000_000)); !errors.Is(err, ErrAuctionNotOpen) {
		t.Fatalf("early bid err = %v, want ErrAuctionNotOpen", err)
	}
	env.now = baseTime + 200 // at end
	if _, err := env.engine.Bid(auction.ID, bidderAddr, big.NewInt(2_000_000)); !errors.Is(err, ErrAuctionNotOpen) {
		t.Fatalf("late bid err = %v, want ErrAuctionNotOpen", err)
	}

	env.now = baseTime + 150
	if _, err := env.engine.Bid(auction.ID, bidderAddr, big.NewInt(6_000_000)); !errors.Is(err, ErrInsufficientMoney) {
		t.Fatalf("uncovered bid err = %v, want ErrInsufficientMoney", err)
	}
	if _, err := env.engine.Bid(auction.ID, creatorAddr, big.NewInt(2_000_000)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("creator self-bid err = %v, want ErrUnauthorized", err)
	}
	if _, err := env.engine.Bid(ListingAddress(NamespaceAuction, newTestAssetID(0xFF)), bidderAddr, big.NewInt(2_000_000)); !errors.Is(err, ErrAuctionNotOpen) {
		t.Fatalf("missing auction err = %v, want ErrAuctionNotOpen", err)
	}
}

func TestCancelAuction(t *testing.T) {
	env := newTestEnv(t)
	assetID := newTestAssetID(0xC3)
	env.registerAsset(assetID, creatorAddr, minterAddr)
	env.fund(bidderAddr, 2_000_000)

	auction := mustCreateAuction(t, env, assetID, 1_000_000, baseTime, baseTime+1000)

	if _, err := env.engine.CancelAuction(auction.ID, bidderAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("foreign cancel err = %v, want ErrUnauthorized", err)
	}

	if _, err := env.engine.Bid(auction.ID, bidderAddr, big.NewInt(1_500_000)); err != nil {
		t.Fatalf("bid: %v", err)
	}
	if _, err := env.engine.CancelAuction(auction.ID, creatorAddr); !errors.Is(err, ErrActiveBidExists) {
		t.Fatalf("cancel with bid err = %v, want ErrActiveBidExists", err)
	}
}

func TestCancelAuctionNoBids(t *testing.T) {
	env := newTestEnv(t)
	assetID := newTestAssetID(0xC4)
	env.registerAsset(assetID, creatorAddr, minterAddr)

	auction := mustCreateAuction(t, env, assetID, 1_000_000, baseTime, baseTime+1000)

	cancelled, err := env.engine.CancelAuction(auction.ID, creatorAddr)
	if err != nil {
		t.Fatalf("cancel auction: %v", err)
	}
	if cancelled.Status != AuctionCancelled {
		t.Fatalf("status = %d, want cancelled", cancelled.Status)
	}
	if got := env.holder(t, assetID); got != creatorAddr {
		t.Fatal("asset must return to the creator on cancel")
	}
	if _, ok, _ := env.state.AuctionGet(auction.ID); ok {
		t.Fatal("auction must be deallocated after cancel")
	}
}

func TestResolveAuctionNoBids(t *testing.T) {
	env := newTestEnv(t)
	assetID := newTestAssetID(0xC5)
	env.registerAsset(assetID, creatorAddr, minterAddr)

	auction := mustCreateAuction(t, env, assetID, 1_000_000, baseTime, baseTime+100)
	before := env.totalValue()

	if _, err := env.engine.ResolveAuction(auction.ID, creatorAddr, 3); !errors.Is(err, ErrAuctionNotEnded) {
		t.Fatalf("early resolve err = %v, want ErrAuctionNotEnded", err)
	}

	env.now = baseTime + 100
	resolved, err := env.engine.ResolveAuction(auction.ID, creatorAddr, 3)
	if err != nil {
		t.Fatalf("resolve auction: %v", err)
	}
	if resolved.Status != AuctionResolved {
		t.Fatalf("status = %d, want resolved", resolved.Status)
	}
	if got := env.holder(t, assetID); got != creatorAddr {
		t.Fatal("asset must return to the creator when no bids were placed")
	}
	if env.totalValue().Cmp(before) != 0 {
		t.Fatal("no payment may settle in a bidless resolution")
	}

	if _, err := env.engine.ResolveAuction(auction.ID, creatorAddr, 3); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second resolve err = %v, want ErrInvalidState", err)
	}
}

func TestResolveAuctionWithWinner(t *testing.T) {
	env := newTestEnv(t)
	assetID := newTestAssetID(0xC6)
	env.registerAsset(assetID, creatorAddr, minterAddr)
	env.fund(bidderAddr, 2_000_000)

	auction := mustCreateAuction(t, env, assetID, 1_000_000, baseTime, baseTime+100)
	if _, err := env.engine.Bid(auction.ID, bidderAddr, big.NewInt(1_500_000)); err != nil {
		t.Fatalf("bid: %v", err)
	}
	before := env.totalValue()

	env.now = baseTime + 100
	resolved, err := env.engine.ResolveAuction(auction.ID, bidderAddr, 3)
	if err != nil {
		t.Fatalf("resolve auction: %v", err)
	}
	if resolved.Status != AuctionResolved {
		t.Fatalf("status = %d, want resolved", resolved.Status)
	}
	// Winner takes the token; 1_500_000 splits 3/100 to the minter.
	if got := env.holder(t, assetID); got != bidderAddr {
		t.Fatal("winner must hold the asset after resolution")
	}
	if got := env.balance(t, creatorAddr); got.Cmp(big.NewInt(1_455_000)) != 0 {
		t.Fatalf("creator balance = %s, want 1455000", got)
	}
	if got := env.balance(t, minterAddr); got.Cmp(big.NewInt(45_000)) != 0 {
		t.Fatalf("minter balance = %s, want 45000", got)
	}
	if got := env.balance(t, VaultAddress(auction.ID)); got.Sign() != 0 {
		t.Fatalf("vault balance = %s, want drained to 0", got)
	}
	if env.totalValue().Cmp(before) != 0 {
		t.Fatal("resolution must conserve total value")
	}
	if _, ok, _ := env.state.AuctionGet(auction.ID); ok {
		t.Fatal("auction must be deallocated after resolution")
	}
}

func TestPauseGuard(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetPauses(pauseAll{})
	assetID := newTestAssetID(0xC7)
	env.registerAsset(assetID, creatorAddr, minterAddr)

	if _, err := env.engine.CreateOrder(creatorAddr, assetID, "", big.NewInt(100)); err == nil {
		t.Fatal("paused module must reject transitions")
	}
}

func TestListingAddressDeterminism(t *testing.T) {
	assetID := newTestAssetID(0xD0)
	if ListingAddress(NamespaceOrder, assetID) != ListingAddress(NamespaceOrder, assetID) {
		t.Fatal("listing address must be deterministic")
	}
	if ListingAddress(NamespaceOrder, assetID) == ListingAddress(NamespaceAuction, assetID) {
		t.Fatal("namespaces must not collide")
	}
	if ListingAddress(NamespaceOrder, assetID) == ListingAddress(NamespaceOrder, newTestAssetID(0xD1)) {
		t.Fatal("distinct assets must not collide")
	}
}

func TestAssetCannotBackTwoListings(t *testing.T) {
	env := newTestEnv(t)
	assetID := newTestAssetID(0xC8)
	env.registerAsset(assetID, creatorAddr, minterAddr)

	mustCreateOrder(t, env, assetID, 1_000_000)

	// The unit is already in the order's vault, so the creator no longer
	// holds it and cannot promise it to an auction as well.
	_, err := env.engine.CreateAuction(creatorAddr, assetID, "", big.NewInt(1_000_000), baseTime, baseTime+100)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("second listing err = %v, want ErrUnauthorized", err)
	}
}

func TestConcurrentFillsCannotOverspend(t *testing.T) {
	for iter := 0; iter < 200; iter++ {
		env := newTestEnv(t)
		assetA := newTestAssetID(0xF0)
		assetB := newTestAssetID(0xF1)
		env.registerAsset(assetA, creatorAddr, minterAddr)
		env.registerAsset(assetB, creatorAddr, minterAddr)
		orderA := mustCreateOrder(t, env, assetA, 1_000_000)
		orderB := mustCreateOrder(t, env, assetB, 1_000_000)

		// The buyer can cover exactly one of the two listings.
		env.fund(buyerAddr, 1_000_000)
		before := env.totalValue()

		start := make(chan struct{})
		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, id := range [][32]byte{orderA.ID, orderB.ID} {
			wg.Add(1)
			go func(i int, id [32]byte) {
				defer wg.Done()
				<-start
				_, errs[i] = env.engine.FillOrder(id, buyerAddr, 3)
			}(i, id)
		}
		close(start)
		wg.Wait()

		filled := 0
		for _, err := range errs {
			if err == nil {
				filled++
				continue
			}
			if !errors.Is(err, ErrInsufficientMoney) {
				t.Fatalf("unexpected fill error: %v", err)
			}
		}
		if filled != 1 {
			t.Fatalf("%d fills succeeded with funds for one", filled)
		}
		if got := env.balance(t, buyerAddr); got.Sign() != 0 {
			t.Fatalf("buyer balance = %s, want 0", got)
		}
		if env.totalValue().Cmp(before) != 0 {
			t.Fatal("concurrent fills must conserve total value")
		}
	}
}

func TestConcurrentBidsCannotOverspend(t *testing.T) {
	for iter := 0; iter < 200; iter++ {
		env := newTestEnv(t)
		assetA := newTestAssetID(0xF2)
		assetB := newTestAssetID(0xF3)
		env.registerAsset(assetA, creatorAddr, minterAddr)
		env.registerAsset(assetB, creatorAddr, minterAddr)
		auctionA := mustCreateAuction(t, env, assetA, 1_000_000, baseTime, baseTime+1000)
		auctionB := mustCreateAuction(t, env, assetB, 1_000_000, baseTime, baseTime+1000)

		env.fund(bidderAddr, 1_500_000)

		start := make(chan struct{})
		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, id := range [][32]byte{auctionA.ID, auctionB.ID} {
			wg.Add(1)
			go func(i int, id [32]byte) {
				defer wg.Done()
				<-start
				_, errs[i] = env.engine.Bid(id, bidderAddr, big.NewInt(1_500_000))
			}(i, id)
		}
		close(start)
		wg.Wait()

		accepted := 0
		for _, err := range errs {
			if err == nil {
				accepted++
				continue
			}
			if !errors.Is(err, ErrInsufficientMoney) {
				t.Fatalf("unexpected bid error: %v", err)
			}
		}
		if accepted != 1 {
			t.Fatalf("%d bids accepted with funds for one", accepted)
		}
		vaultA := env.balance(t, VaultAddress(auctionA.ID))
		vaultB := env.balance(t, VaultAddress(auctionB.ID))
		held := new(big.Int).Add(vaultA, vaultB)
		if held.Cmp(big.NewInt(1_500_000)) != 0 {
			t.Fatalf("custody holds %s, want exactly the single bid", held)
		}
	}
}

func TestErrorCodesStable(t *testing.T) {
	codes := map[*Error]uint32{
		ErrInvalidPrice:         6001,
		ErrListingAlreadyExists: 6002,
		ErrUnauthorized:         6003,
		ErrInvalidState:         6004,
		ErrInsufficientMoney:    6005,
		ErrAuctionNotOpen:       6006,
		ErrInvalidTimeRange:     6007,
		ErrAuctionNotEnded:      6008,
		ErrActiveBidExists:      6009,
		ErrBidTooLow:            6010,
		ErrInsufficientEscrow:   6011,
		ErrAssetNotFound:        6012,
	}
	for err, want := range codes {
		if err.Code != want {
			t.Fatalf("%s: code = %d, want %d", err.Message, err.Code, want)
		}
	}
}
