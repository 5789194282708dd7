package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order ("buy" or "sell")
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the side an order of this side matches against
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// OrderStatus represents the lifecycle state of an order.
// open is the only non-terminal state.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// IsTerminal returns true once the order can no longer change
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// Order is a priced limit order for a quantity of gold
type Order struct {
	ID      uint64 `json:"id"`
	OwnerID uint64 `json:"owner_id"`
	Side    Side   `json:"side"`

	// Quantities in grams, 3 decimal places
	Quantity          decimal.Decimal `json:"quantity"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`

	// Price per gram in the smallest currency unit
	Price int64 `json:"price"`

	Status OrderStatus `json:"status"`

	// Timestamps (Unix milliseconds). CreatedAt drives FIFO matching.
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`

	// Bumped by the store on every save (optimistic concurrency)
	Version uint64 `json:"version"`
}

// NewOrder builds an open order with its full quantity remaining.
// Input is checked with ValidateOrderInput.
func NewOrder(id, owner uint64, side Side, qty decimal.Decimal, price int64, now int64) (*Order, error) {
	if err := ValidateOrderInput(owner, side, qty, price); err != nil {
		return nil, err
	}
	return &Order{
		ID:                id,
		OwnerID:           owner,
		Side:              side,
		Quantity:          qty,
		RemainingQuantity: qty,
		Price:             price,
		Status:            OrderOpen,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// IsOpen returns true if the order can still match or be cancelled
func (o *Order) IsOpen() bool {
	return o.Status == OrderOpen
}

// FilledQuantity returns quantity - remaining
func (o *Order) FilledQuantity() decimal.Decimal {
	return o.Quantity.Sub(o.RemainingQuantity)
}

// Fill consumes qty from the remaining quantity.
// The order transitions to completed when nothing remains.
func (o *Order) Fill(qty decimal.Decimal, now int64) error {
	if !o.IsOpen() {
		return fmt.Errorf("%w: order %d is %s", ErrInvalidOrderState, o.ID, o.Status)
	}
	if !qty.IsPositive() {
		return fmt.Errorf("fill quantity must be positive: %s", qty)
	}
	if qty.GreaterThan(o.RemainingQuantity) {
		return fmt.Errorf("fill %s exceeds remaining %s on order %d", qty, o.RemainingQuantity, o.ID)
	}

	o.RemainingQuantity = o.RemainingQuantity.Sub(qty)
	if o.RemainingQuantity.IsZero() {
		o.Status = OrderCompleted
	}
	o.UpdatedAt = now
	return nil
}

// Cancel moves an open order to cancelled. Any other state is rejected
// with ErrInvalidOrderState and the order is left untouched.
func (o *Order) Cancel(now int64) error {
	if !o.IsOpen() {
		return fmt.Errorf("%w: order %d is %s", ErrInvalidOrderState, o.ID, o.Status)
	}
	o.Status = OrderCancelled
	o.UpdatedAt = now
	return nil
}

// Validate checks order invariants
func (o *Order) Validate() error {
	if !o.Side.Valid() {
		return fmt.Errorf("invalid side %q", o.Side)
	}
	if !o.Quantity.IsPositive() {
		return fmt.Errorf("non-positive quantity: %s", o.Quantity)
	}
	if o.RemainingQuantity.IsNegative() {
		return fmt.Errorf("negative remaining quantity: %s", o.RemainingQuantity)
	}
	if o.RemainingQuantity.GreaterThan(o.Quantity) {
		return fmt.Errorf("remaining (%s) exceeds quantity (%s)", o.RemainingQuantity, o.Quantity)
	}
	if o.Price < 1 {
		return fmt.Errorf("non-positive price: %d", o.Price)
	}

	switch o.Status {
	case OrderOpen:
		if o.RemainingQuantity.IsZero() {
			return fmt.Errorf("open order %d has nothing remaining", o.ID)
		}
	case OrderCompleted:
		if !o.RemainingQuantity.IsZero() {
			return fmt.Errorf("completed order %d has %s remaining", o.ID, o.RemainingQuantity)
		}
	case OrderCancelled:
	default:
		return fmt.Errorf("unknown status %q", o.Status)
	}
	return nil
}

// Trade is an execution between one buy order and one sell order.
// Trades are written once and never updated.
type Trade struct {
	ID          uint64          `json:"id"`
	BuyOrderID  uint64          `json:"buy_order_id"`
	SellOrderID uint64          `json:"sell_order_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       int64           `json:"price"`
	Commission  int64           `json:"commission"`
	CreatedAt   int64           `json:"created_at"`
}

// Value returns quantity × price
func (t *Trade) Value() decimal.Decimal {
	return t.Quantity.Mul(decimal.NewFromInt(t.Price))
}
