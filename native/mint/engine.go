package mint

import (
	"encoding/binary"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"unicusmarket/core/events"
	"unicusmarket/core/types"
	nativecommon "unicusmarket/native/common"
)

const moduleName = "mint"

// StateTx is a buffered view of the registry whose writes only reach the
// backing store on Commit. Dropping it without committing is a no-op.
type StateTx interface {
	AssetGet(id [32]byte) (*Asset, bool, error)
	AssetPut(asset *Asset) error
	MintNonce(minter [20]byte) (uint64, error)
	SetMintNonce(minter [20]byte, nonce uint64) error
	Commit() error
}

type engineState interface {
	AssetGet(id [32]byte) (*Asset, bool, error)
	AssetPut(asset *Asset) error
	MintNonce(minter [20]byte) (uint64, error)
	SetMintNonce(minter [20]byte, nonce uint64) error
	BeginTx() StateTx
}

// Engine registers new assets and tracks ownership on behalf of the market.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
	pauses  nativecommon.PauseView

	// mu serializes registry read-modify-write sections. Concurrent mints
	// by one party would otherwise read the same nonce and derive the
	// same asset identifier.
	mu sync.Mutex
}

// NewEngine creates a mint engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
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

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(mintEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// DeriveAssetID computes the deterministic identifier for the nth asset minted
// by a party with the given symbol and URI. Callers can recompute it without
// querying the engine.
func DeriveAssetID(minter [20]byte, symbol, uri string, nonce uint64) [32]byte {
	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], nonce)
	return ethcrypto.Keccak256Hash(minter[:], []byte(symbol), []byte(uri), nonceBuf[:])
}

// Mint registers a new asset owned by the minter. The royalty share is capped
// at MaxRoyaltyPoints and enforced before any state is written.
func (e *Engine) Mint(minter [20]byte, name, symbol, uri string, royaltyPoints uint16) (*Asset, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if royaltyPoints > MaxRoyaltyPoints {
		return nil, ErrRoyaltyExceeded
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	nonce, err := e.state.MintNonce(minter)
	if err != nil {
		return nil, err
	}
	nonce++
	id := DeriveAssetID(minter, symbol, uri, nonce)
	if _, ok, err := e.state.AssetGet(id); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAssetExists
	}
	asset := &Asset{
		ID:            id,
		Minter:        minter,
		Owner:         minter,
		Name:          name,
		Symbol:        symbol,
		URI:           uri,
		RoyaltyPoints: royaltyPoints,
		CreatedAt:     e.now(),
	}
	sanitized, err := SanitizeAsset(asset)
	if err != nil {
		return nil, err
	}
	// The record and the nonce that derived it land together or not at
	// all; a stale nonce would make every later mint with this metadata
	// collide permanently.
	tx := e.state.BeginTx()
	if err := tx.AssetPut(sanitized); err != nil {
		return nil, err
	}
	if err := tx.SetMintNonce(minter, nonce); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.emit(NewAssetMintedEvent(sanitized))
	return sanitized.Clone(), nil
}

// Transfer moves ownership of an asset between parties. The caller must be
// the current holder.
func (e *Engine) Transfer(assetID [32]byte, from, to [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	asset, ok, err := e.state.AssetGet(assetID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAssetNotFound
	}
	if asset.Owner != from {
		return ErrNotOwner
	}
	asset.Owner = to
	if err := e.state.AssetPut(asset); err != nil {
		return err
	}
	e.emit(NewAssetTransferredEvent(asset, from))
	return nil
}

// OwnerOf reports the current holder of the asset.
func (e *Engine) OwnerOf(assetID [32]byte) ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, errNilState
	}
	asset, ok, err := e.state.AssetGet(assetID)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, ErrAssetNotFound
	}
	return asset.Owner, nil
}

// Get returns the registry record for the asset.
func (e *Engine) Get(assetID [32]byte) (*Asset, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	asset, ok, err := e.state.AssetGet(assetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotFound
	}
	return asset.Clone(), nil
}
