package mint

import (
	"encoding/hex"
	"strconv"

	"unicusmarket/core/types"
)

const (
	EventTypeAssetMinted      = "mint.asset.minted"
	EventTypeAssetTransferred = "mint.asset.transferred"
)

type mintEvent struct {
	evt *types.Event
}

func (e mintEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e mintEvent) Attributes() map[string]string {
	if e.evt == nil {
		return nil
	}
	return e.evt.Attributes
}

// Event returns the wrapped payload.
func (e mintEvent) Event() *types.Event { return e.evt }

// NewAssetMintedEvent returns the canonical payload for a newly minted asset.
func NewAssetMintedEvent(a *Asset) *types.Event {
	return newAssetEvent(EventTypeAssetMinted, a, nil)
}

// NewAssetTransferredEvent returns the payload emitted when an asset changes
// hands.
func NewAssetTransferredEvent(a *Asset, from [20]byte) *types.Event {
	return newAssetEvent(EventTypeAssetTransferred, a, &from)
}

func newAssetEvent(eventType string, a *Asset, from *[20]byte) *types.Event {
	attrs := make(map[string]string)
	if a == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(a.ID[:])
	attrs["minter"] = hex.EncodeToString(a.Minter[:])
	attrs["owner"] = hex.EncodeToString(a.Owner[:])
	attrs["symbol"] = a.Symbol
	attrs["royaltyPoints"] = strconv.FormatUint(uint64(a.RoyaltyPoints), 10)
	if from != nil {
		attrs["from"] = hex.EncodeToString(from[:])
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
