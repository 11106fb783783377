package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"unicusmarket/native/market"
	"unicusmarket/native/mint"
	"unicusmarket/observability/metrics"
)

type createOrderParams struct {
	Creator string `json:"creator"`
	Asset   string `json:"asset"`
	Memo    string `json:"memo,omitempty"`
	Price   string `json:"price"`
}

type listingCallerParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
}

type fillOrderParams struct {
	ID        string `json:"id"`
	Buyer     string `json:"buyer"`
	FeePoints uint32 `json:"feePoints"`
}

type createAuctionParams struct {
	Creator   string `json:"creator"`
	Asset     string `json:"asset"`
	Memo      string `json:"memo,omitempty"`
	Reserve   string `json:"reserve"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
}

type bidParams struct {
	ID     string `json:"id"`
	Bidder string `json:"bidder"`
	Amount string `json:"amount"`
}

type resolveAuctionParams struct {
	ID        string `json:"id"`
	Resolver  string `json:"resolver"`
	FeePoints uint32 `json:"feePoints"`
}

type listingIDParams struct {
	ID string `json:"id"`
}

type mintCreateParams struct {
	Minter        string `json:"minter"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	URI           string `json:"uri"`
	RoyaltyPoints uint16 `json:"royaltyPoints"`
}

type mintTransferParams struct {
	Asset string `json:"asset"`
	From  string `json:"from"`
	To    string `json:"to"`
}

type assetIDParams struct {
	Asset string `json:"asset"`
}

type orderJSON struct {
	ID        string `json:"id"`
	Creator   string `json:"creator"`
	Asset     string `json:"asset"`
	Memo      string `json:"memo,omitempty"`
	Price     string `json:"price"`
	CreatedAt int64  `json:"createdAt"`
	Status    string `json:"status"`
}

type auctionJSON struct {
	ID             string `json:"id"`
	Creator        string `json:"creator"`
	Asset          string `json:"asset"`
	Memo           string `json:"memo,omitempty"`
	Price          string `json:"price"`
	RefundReceiver string `json:"refundReceiver"`
	StartTime      int64  `json:"startTime"`
	EndTime        int64  `json:"endTime"`
	CreatedAt      int64  `json:"createdAt"`
	Status         string `json:"status"`
}

type assetJSON struct {
	ID            string `json:"id"`
	Minter        string `json:"minter"`
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	URI           string `json:"uri"`
	RoyaltyPoints uint16 `json:"royaltyPoints"`
	CreatedAt     int64  `json:"createdAt"`
}

func parseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	if len(decoded) != 20 {
		return addr, fmt.Errorf("address must decode to 20 bytes, got %d", len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}

func parseHash(raw string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, fmt.Errorf("invalid identifier %q: %w", raw, err)
	}
	if len(decoded) != 32 {
		return id, fmt.Errorf("identifier must decode to 32 bytes, got %d", len(decoded))
	}
	copy(id[:], decoded)
	return id, nil
}

func parsePositiveBigInt(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func hexAddr(addr [20]byte) string { return "0x" + hex.EncodeToString(addr[:]) }
func hexHash(id [32]byte) string   { return "0x" + hex.EncodeToString(id[:]) }

func orderStatusString(status market.OrderStatus) string {
	switch status {
	case market.OrderOpen:
		return "open"
	case market.OrderFilled:
		return "filled"
	case market.OrderCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func auctionStatusString(status market.AuctionStatus) string {
	switch status {
	case market.AuctionOpen:
		return "open"
	case market.AuctionResolved:
		return "resolved"
	case market.AuctionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func orderToJSON(order *market.Order) orderJSON {
	return orderJSON{
		ID:        hexHash(order.ID),
		Creator:   hexAddr(order.Creator),
		Asset:     hexHash(order.AssetID),
		Memo:      order.Memo,
		Price:     order.Price.String(),
		CreatedAt: order.CreatedAt,
		Status:    orderStatusString(order.Status),
	}
}

func auctionToJSON(auction *market.Auction) auctionJSON {
	return auctionJSON{
		ID:             hexHash(auction.ID),
		Creator:        hexAddr(auction.Creator),
		Asset:          hexHash(auction.AssetID),
		Memo:           auction.Memo,
		Price:          auction.Price.String(),
		RefundReceiver: hexAddr(auction.RefundReceiver),
		StartTime:      auction.StartTime,
		EndTime:        auction.EndTime,
		CreatedAt:      auction.CreatedAt,
		Status:         auctionStatusString(auction.Status),
	}
}

func assetToJSON(asset *mint.Asset) assetJSON {
	return assetJSON{
		ID:            hexHash(asset.ID),
		Minter:        hexAddr(asset.Minter),
		Owner:         hexAddr(asset.Owner),
		Name:          asset.Name,
		Symbol:        asset.Symbol,
		URI:           asset.URI,
		RoyaltyPoints: asset.RoyaltyPoints,
		CreatedAt:     asset.CreatedAt,
	}
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, req *RPCRequest) {
	var params createOrderParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	creator, err := parseAddress(params.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	asset, err := parseHash(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	price, err := parsePositiveBigInt(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	order, err := s.market.CreateOrder(creator, asset, params.Memo, price)
	metrics.Market().ObserveTransition("market_createOrder", err)
	if err != nil {
		s.writeTransitionError(w, req.ID, err)
		return
	}
	metrics.Market().ListingOpened("order")
	writeResult(w, req.ID, orderToJSON(order))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, req *RPCRequest) {
	var params listingCallerParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	order, err := s.market.CancelOrder(id, caller)
	metrics.Market().ObserveTransition("market_cancelOrder", err)
	if err != nil {
		s.writeTransitionError(w, req.ID, err)
		return
	}
	metrics.Market().ListingClosed("order")
	writeResult(w, req.ID, orderToJSON(order))
}

func (s *Server) handleFillOrder(w http.ResponseWriter, req *RPCRequest) {
	var params fillOrderParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	order, err := s.market.FillOrder(id, buyer, params.FeePoints)
	metrics.Market().ObserveTransition("market_fillOrder", err)
	if err != nil {
		s.writeTransitionError(w, req.ID, err)
		return
	}
	metrics.Market().ListingClosed("order")
	price, _ := new(big.Float).SetInt(order.Price).Float64()
	metrics.Market().ObserveSettledValue("order", price)
	writeResult(w, req.ID, orderToJSON(order))
}

func (s *Server) handleCreateAuction(w http.ResponseWriter, req *RPCRequest) {
	var params createAuctionParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	creator, err := parseAddress(params.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	asset, err := parseHash(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	reserve, err := parsePositiveBigInt(params.Reserve)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	auction, err := s.market.CreateAuction(creator, asset, params.Memo, reserve, params.StartTime, params.EndTime)
	metrics.Market().ObserveTransition("market_createAuction", err)
	if err != nil {
		s.writeTransitionError(w, req.ID, err)
		return
	}
	metrics.Market().ListingOpened("auction")
	writeResult(w, req.ID, auctionToJSON(auction))
}

func (s *Server) handleBid(w http.ResponseWriter, req *RPCRequest) {
	var params bidParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	bidder, err := parseAddress(params.Bidder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	auction, err := s.market.Bid(id, bidder, amount)
	metrics.Market().ObserveTransition("market_bid", err)
	if err != nil {
		s.writeTransitionError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, auctionToJSON(auction))
}

func (s *Server) handleCancelAuction(w http.ResponseWriter, req *RPCRequest) {
	var params listingCallerParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	auction, err := s.market.CancelAuction(id, caller)
	metrics.Market().ObserveTransition("market_cancelAuction", err)
	if err != nil {
		s.writeTransitionError(w, req.ID, err)
		return
	}
	metrics.Market().ListingClosed("auction")
	writeResult(w, req.ID, auctionToJSON(auction))
}

func (s *Server) handleResolveAuction(w http.ResponseWriter, req *RPCRequest) {
	var params resolveAuctionParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	resolver, err := parseAddress(params.Resolver)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	auction, err := s.market.ResolveAuction(id, resolver, params.FeePoints)
	metrics.Market().ObserveTransition("market_resolveAuction", err)
	if err != nil {
		s.writeTransitionError(w, req.ID, err)
		return
	}
	metrics.Market().ListingClosed("auction")
	if auction.HasBid() {
		price, _ := new(big.Float).SetInt(auction.Price).Float64()
		metrics.Market().ObserveSettledValue("auction", price)
	}
	writeResult(w, req.ID, auctionToJSON(auction))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, req *RPCRequest) {
	var params listingIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	order, ok, err := s.market.GetOrder(id)
	if err != nil {
		s.writeTransitionError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, int(market.ErrInvalidState.Code), "order not found", nil)
		return
	}
	writeResult(w, req.ID, orderToJSON(order))
}

func (s *Server) handleGetAuction(w http.ResponseWriter, req *RPCRequest) {
	var params listingIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	auction, ok, err := s.market.GetAuction(id)
	if err != nil {
		s.writeTransitionError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, int(market.ErrInvalidState.Code), "auction not found", nil)
		return
	}
	writeResult(w, req.ID, auctionToJSON(auction))
}

func (s *Server) handleMintCreate(w http.ResponseWriter, req *RPCRequest) {
	var params mintCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	minter, err := parseAddress(params.Minter)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	asset, err := s.mint.Mint(minter, params.Name, params.Symbol, params.URI, params.RoyaltyPoints)
	if err != nil {
		s.writeTransitionError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, assetToJSON(asset))
}

func (s *Server) handleMintTransfer(w http.ResponseWriter, req *RPCRequest) {
	var params mintTransferParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	asset, err := parseHash(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.mint.Transfer(asset, from, to); err != nil {
		s.writeTransitionError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleMintGet(w http.ResponseWriter, req *RPCRequest) {
	var params assetIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	asset, err := s.mint.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "asset not found", err.Error())
		return
	}
	writeResult(w, req.ID, assetToJSON(asset))
}
