package api

import (
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/goldex/pkg/app/core"
	"github.com/uhyunpark/goldex/pkg/app/exchange"
)

// API request and response types for REST endpoints

// ==============================
// REST Request Types
// ==============================

// PlaceOrderRequest is the payload for POST /api/v1/orders.
// quantity may be sent as a JSON string or number.
type PlaceOrderRequest struct {
	UserID   uint64           `json:"user_id"`
	Type     string           `json:"type"` // "buy" or "sell"
	Side     string           `json:"side"` // alias of type
	Quantity *decimal.Decimal `json:"quantity"`
	Price    *int64           `json:"price"`
}

// DepositRequest is the payload for POST /api/v1/accounts/{id}/deposit
type DepositRequest struct {
	Quantity *decimal.Decimal `json:"quantity"`
}

// ==============================
// REST Response Types
// ==============================

// TradeInfo is one execution
type TradeInfo struct {
	ID          uint64 `json:"id"`
	BuyOrderID  uint64 `json:"buy_order_id"`
	SellOrderID uint64 `json:"sell_order_id"`
	Quantity    string `json:"quantity"` // grams, 3 decimals
	Price       int64  `json:"price"`
	Commission  int64  `json:"commission"`
	CreatedAt   int64  `json:"created_at"` // Unix milliseconds
}

// OrderInfo is an order (open or historical)
type OrderInfo struct {
	ID                uint64      `json:"id"`
	UserID            uint64      `json:"user_id"`
	Type              string      `json:"type"` // "buy" or "sell"
	Quantity          string      `json:"quantity"`
	RemainingQuantity string      `json:"remaining_quantity"`
	Price             int64       `json:"price"`
	Status            string      `json:"status"` // "open", "completed", "cancelled"
	BuyTrades         []TradeInfo `json:"buy_trades,omitempty"`
	SellTrades        []TradeInfo `json:"sell_trades,omitempty"`
	CreatedAt         int64       `json:"created_at"`
	UpdatedAt         int64       `json:"updated_at"`
}

type PlaceOrderResponse struct {
	Message string      `json:"message"`
	Order   OrderInfo   `json:"order"`
	Trades  []TradeInfo `json:"trades"`
}

type CancelOrderResponse struct {
	Message string    `json:"message"`
	Order   OrderInfo `json:"order"`
}

type OrdersMeta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	Total       int `json:"total"`
}

type ListOrdersResponse struct {
	Orders     []OrderInfo `json:"orders"`
	OrdersMeta OrdersMeta  `json:"orders_meta"`
}

// AccountInfo is an owner's gold holdings
type AccountInfo struct {
	UserID      uint64 `json:"user_id"`
	GoldBalance string `json:"gold_balance"` // grams, 3 decimals
	UpdatedAt   int64  `json:"updated_at"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// Conversions
// ==============================

func formatGrams(d decimal.Decimal) string {
	return d.StringFixed(core.QuantityPrecision)
}

func toTradeInfo(t *core.Trade) TradeInfo {
	return TradeInfo{
		ID:          t.ID,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Quantity:    formatGrams(t.Quantity),
		Price:       t.Price,
		Commission:  t.Commission,
		CreatedAt:   t.CreatedAt,
	}
}

func toTradeInfos(trades []*core.Trade) []TradeInfo {
	out := make([]TradeInfo, 0, len(trades))
	for _, t := range trades {
		out = append(out, toTradeInfo(t))
	}
	return out
}

func toOrderInfo(o *core.Order) OrderInfo {
	return OrderInfo{
		ID:                o.ID,
		UserID:            o.OwnerID,
		Type:              string(o.Side),
		Quantity:          formatGrams(o.Quantity),
		RemainingQuantity: formatGrams(o.RemainingQuantity),
		Price:             o.Price,
		Status:            string(o.Status),
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

func toOrderView(v *exchange.OrderView) OrderInfo {
	info := toOrderInfo(v.Order)
	if len(v.BuyTrades) > 0 {
		info.BuyTrades = toTradeInfos(v.BuyTrades)
	}
	if len(v.SellTrades) > 0 {
		info.SellTrades = toTradeInfos(v.SellTrades)
	}
	return info
}

func toAccountInfo(a *core.Account) AccountInfo {
	return AccountInfo{
		UserID:      a.OwnerID,
		GoldBalance: formatGrams(a.GoldBalance),
		UpdatedAt:   a.UpdatedAt,
	}
}
