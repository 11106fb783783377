package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"unicusmarket/core/types"
	"unicusmarket/native/market"
	"unicusmarket/native/mint"
	"unicusmarket/storage"
)

// Key prefixes. Changing them is a breaking schema change.
var (
	accountPrefix   = []byte("acct/")
	orderPrefix     = []byte("market/order/")
	auctionPrefix   = []byte("market/auction/")
	assetPrefix     = []byte("mint/asset/")
	mintNoncePrefix = []byte("mint/nonce/")
)

// kv is the minimal raw store the typed accessors are written against. It is
// satisfied by the database directly and by a transaction overlay.
type kv interface {
	get(key []byte) ([]byte, bool, error)
	put(key, value []byte) error
	del(key []byte) error
}

type dbStore struct {
	db storage.Database
}

func (s dbStore) get(key []byte) ([]byte, bool, error) {
	value, err := s.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s dbStore) put(key, value []byte) error { return s.db.Put(key, value) }

func (s dbStore) del(key []byte) error { return s.db.Delete(key) }

// Manager persists accounts, listings, and asset records and exposes them
// through the narrow interfaces the native engines consume. Reads hit the
// database directly; engines mutate through Begin/Commit transactions.
type Manager struct {
	view
	db storage.Database
}

// NewManager wraps a key-value database in a state manager.
func NewManager(db storage.Database) *Manager {
	return &Manager{view: view{kv: dbStore{db: db}}, db: db}
}

// Begin opens a write transaction. Mutations buffer in memory and reach the
// database only on Commit; dropping the transaction discards them.
func (m *Manager) Begin() market.StateTx {
	return m.beginTx()
}

// BeginTx opens a write transaction exposed through the mint registry view.
// It shares the overlay mechanics with Begin.
func (m *Manager) BeginTx() mint.StateTx {
	return m.beginTx()
}

func (m *Manager) beginTx() *Tx {
	ov := &overlay{base: dbStore{db: m.db}, db: m.db, staged: make(map[string]stagedWrite)}
	return &Tx{view: view{kv: ov}, ov: ov}
}

type stagedWrite struct {
	value   []byte
	deleted bool
}

type overlay struct {
	base   kv
	db     storage.Database
	order  []string
	staged map[string]stagedWrite
}

func (o *overlay) get(key []byte) ([]byte, bool, error) {
	if entry, ok := o.staged[string(key)]; ok {
		if entry.deleted {
			return nil, false, nil
		}
		return entry.value, true, nil
	}
	return o.base.get(key)
}

func (o *overlay) put(key, value []byte) error {
	o.stage(string(key), stagedWrite{value: append([]byte(nil), value...)})
	return nil
}

func (o *overlay) del(key []byte) error {
	o.stage(string(key), stagedWrite{deleted: true})
	return nil
}

func (o *overlay) stage(key string, entry stagedWrite) {
	if _, seen := o.staged[key]; !seen {
		o.order = append(o.order, key)
	}
	o.staged[key] = entry
}

// flush applies the staged writes as one database batch. A transition's
// effects reach disk all together or not at all; a per-key flush could be
// interrupted with a payment applied but its listing still open.
func (o *overlay) flush() error {
	batch := &storage.Batch{}
	for _, key := range o.order {
		entry := o.staged[key]
		if entry.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), entry.value)
	}
	return o.db.Write(batch)
}

// Tx is a buffered state transaction. It satisfies the same read/write
// interfaces as the manager, layered over the pending writes.
type Tx struct {
	view
	ov *overlay
}

// Commit flushes the buffered writes to the database.
func (t *Tx) Commit() error { return t.ov.flush() }

// view carries the typed accessors shared by Manager and Tx.
type view struct {
	kv kv
}

func accountKey(addr [20]byte) []byte { return append(accountPrefix, addr[:]...) }

func orderKey(id [32]byte) []byte { return append(orderPrefix, id[:]...) }

func auctionKey(id [32]byte) []byte { return append(auctionPrefix, id[:]...) }

func assetKey(id [32]byte) []byte { return append(assetPrefix, id[:]...) }

func mintNonceKey(minter [20]byte) []byte { return append(mintNoncePrefix, minter[:]...) }

// GetAccount loads the account for an address. Unknown addresses resolve to a
// zero-balance account rather than an error.
func (v view) GetAccount(addr [20]byte) (*types.Account, error) {
	raw, ok, err := v.kv.get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return (&types.Account{}).Clone(), nil
	}
	account := &types.Account{}
	if err := json.Unmarshal(raw, account); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	return account.Clone(), nil
}

// PutAccount stores the account for an address.
func (v view) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	raw, err := json.Marshal(account.Clone())
	if err != nil {
		return err
	}
	return v.kv.put(accountKey(addr), raw)
}

// OrderGet loads the order listing stored at the derived address.
func (v view) OrderGet(id [32]byte) (*market.Order, bool, error) {
	raw, ok, err := v.kv.get(orderKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	order := &market.Order{}
	if err := json.Unmarshal(raw, order); err != nil {
		return nil, false, fmt.Errorf("state: decode order: %w", err)
	}
	return order, true, nil
}

// OrderPut validates and stores an order listing.
func (v view) OrderPut(order *market.Order) error {
	sanitized, err := market.SanitizeOrder(order)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sanitized)
	if err != nil {
		return err
	}
	return v.kv.put(orderKey(sanitized.ID), raw)
}

// OrderDelete deallocates a closed order listing.
func (v view) OrderDelete(id [32]byte) error { return v.kv.del(orderKey(id)) }

// AuctionGet loads the auction listing stored at the derived address.
func (v view) AuctionGet(id [32]byte) (*market.Auction, bool, error) {
	raw, ok, err := v.kv.get(auctionKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	auction := &market.Auction{}
	if err := json.Unmarshal(raw, auction); err != nil {
		return nil, false, fmt.Errorf("state: decode auction: %w", err)
	}
	return auction, true, nil
}

// AuctionPut validates and stores an auction listing.
func (v view) AuctionPut(auction *market.Auction) error {
	sanitized, err := market.SanitizeAuction(auction)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sanitized)
	if err != nil {
		return err
	}
	return v.kv.put(auctionKey(sanitized.ID), raw)
}

// AuctionDelete deallocates a closed auction listing.
func (v view) AuctionDelete(id [32]byte) error { return v.kv.del(auctionKey(id)) }

// AssetGet loads an asset registry record.
func (v view) AssetGet(id [32]byte) (*mint.Asset, bool, error) {
	raw, ok, err := v.kv.get(assetKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	asset := &mint.Asset{}
	if err := json.Unmarshal(raw, asset); err != nil {
		return nil, false, fmt.Errorf("state: decode asset: %w", err)
	}
	return asset, true, nil
}

// AssetPut validates and stores an asset registry record.
func (v view) AssetPut(asset *mint.Asset) error {
	sanitized, err := mint.SanitizeAsset(asset)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sanitized)
	if err != nil {
		return err
	}
	return v.kv.put(assetKey(sanitized.ID), raw)
}

// MintNonce returns the number of assets minted by the party so far.
func (v view) MintNonce(minter [20]byte) (uint64, error) {
	raw, ok, err := v.kv.get(mintNonceKey(minter))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("state: malformed mint nonce")
	}
	return binary.BigEndian.Uint64(raw), nil
}

// SetMintNonce records the mint counter for a party.
func (v view) SetMintNonce(minter [20]byte, nonce uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	return v.kv.put(mintNonceKey(minter), buf[:])
}

// AssetHolder reports the current holder of an asset unit.
func (v view) AssetHolder(assetID [32]byte) ([20]byte, bool, error) {
	asset, ok, err := v.AssetGet(assetID)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	return asset.Owner, true, nil
}

// SetAssetHolder moves custody of an asset unit to a new holder.
func (v view) SetAssetHolder(assetID [32]byte, holder [20]byte) error {
	asset, ok, err := v.AssetGet(assetID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("state: unknown asset")
	}
	asset.Owner = holder
	return v.AssetPut(asset)
}

// AssetMinter reports the royalty beneficiary recorded at mint time.
func (v view) AssetMinter(assetID [32]byte) ([20]byte, bool, error) {
	asset, ok, err := v.AssetGet(assetID)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	return asset.Minter, true, nil
}
