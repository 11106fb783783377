package market

import (
	"encoding/hex"
	"strconv"

	"unicusmarket/core/types"
)

const (
	EventTypeOrderCreated     = "market.order.created"
	EventTypeOrderCancelled   = "market.order.cancelled"
	EventTypeOrderFilled      = "market.order.filled"
	EventTypeAuctionCreated   = "market.auction.created"
	EventTypeAuctionBid       = "market.auction.bid"
	EventTypeAuctionCancelled = "market.auction.cancelled"
	EventTypeAuctionResolved  = "market.auction.resolved"
)

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Attributes() map[string]string {
	if e.evt == nil {
		return nil
	}
	return e.evt.Attributes
}

// Event returns the wrapped payload.
func (e marketEvent) Event() *types.Event { return e.evt }

// NewOrderCreatedEvent returns the canonical payload for a new order listing.
func NewOrderCreatedEvent(o *Order) *types.Event { return newOrderEvent(EventTypeOrderCreated, o, nil) }

// NewOrderCancelledEvent returns the payload emitted when the creator pulls an
// open order back.
func NewOrderCancelledEvent(o *Order) *types.Event {
	return newOrderEvent(EventTypeOrderCancelled, o, nil)
}

// NewOrderFilledEvent returns the payload emitted when a buyer settles an
// order.
func NewOrderFilledEvent(o *Order, buyer [20]byte) *types.Event {
	return newOrderEvent(EventTypeOrderFilled, o, &buyer)
}

// NewAuctionCreatedEvent returns the canonical payload for a new auction.
func NewAuctionCreatedEvent(a *Auction) *types.Event {
	return newAuctionEvent(EventTypeAuctionCreated, a)
}

// NewAuctionBidEvent returns the payload emitted when a bid is accepted.
func NewAuctionBidEvent(a *Auction) *types.Event {
	return newAuctionEvent(EventTypeAuctionBid, a)
}

// NewAuctionCancelledEvent returns the payload emitted when the creator
// withdraws a bidless auction.
func NewAuctionCancelledEvent(a *Auction) *types.Event {
	return newAuctionEvent(EventTypeAuctionCancelled, a)
}

// NewAuctionResolvedEvent returns the payload emitted when an ended auction
// settles.
func NewAuctionResolvedEvent(a *Auction) *types.Event {
	return newAuctionEvent(EventTypeAuctionResolved, a)
}

func newOrderEvent(eventType string, o *Order, buyer *[20]byte) *types.Event {
	attrs := make(map[string]string)
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(o.ID[:])
	attrs["creator"] = hex.EncodeToString(o.Creator[:])
	attrs["asset"] = hex.EncodeToString(o.AssetID[:])
	if o.Price != nil {
		attrs["price"] = o.Price.String()
	}
	attrs["status"] = strconv.FormatUint(uint64(o.Status), 10)
	if buyer != nil {
		attrs["buyer"] = hex.EncodeToString(buyer[:])
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newAuctionEvent(eventType string, a *Auction) *types.Event {
	attrs := make(map[string]string)
	if a == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(a.ID[:])
	attrs["creator"] = hex.EncodeToString(a.Creator[:])
	attrs["asset"] = hex.EncodeToString(a.AssetID[:])
	if a.Price != nil {
		attrs["price"] = a.Price.String()
	}
	attrs["refundReceiver"] = hex.EncodeToString(a.RefundReceiver[:])
	attrs["startTime"] = strconv.FormatInt(a.StartTime, 10)
	attrs["endTime"] = strconv.FormatInt(a.EndTime, 10)
	attrs["status"] = strconv.FormatUint(uint64(a.Status), 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}
