// Package exchange runs every marketplace operation as one atomic unit over
// the store: balance reservation, order creation, matching and trade
// recording either all commit or none do.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/goldex/pkg/app/core"
	"github.com/uhyunpark/goldex/pkg/app/core/ledger"
	"github.com/uhyunpark/goldex/pkg/app/core/matching"
	"github.com/uhyunpark/goldex/pkg/events"
	"github.com/uhyunpark/goldex/pkg/metrics"
	"github.com/uhyunpark/goldex/pkg/util"
)

const (
	DefaultMaxCommitRetries = 8
	DefaultListPageSize     = 10
)

type Coordinator struct {
	store     core.Store
	engine    *matching.Engine
	ledger    *ledger.Ledger
	clock     util.Clock
	metrics   *metrics.Metrics
	publisher events.Publisher
	logger    *zap.SugaredLogger

	maxRetries   int
	listPageSize int
}

type Option func(*Coordinator)

func WithEngine(e *matching.Engine) Option { return func(c *Coordinator) { c.engine = e } }

func WithClock(clock util.Clock) Option { return func(c *Coordinator) { c.clock = clock } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Coordinator) { c.metrics = m } }

func WithPublisher(p events.Publisher) Option { return func(c *Coordinator) { c.publisher = p } }

func WithLogger(l *zap.SugaredLogger) Option { return func(c *Coordinator) { c.logger = l } }

// WithMaxCommitRetries bounds how often a conflicted unit is re-run
func WithMaxCommitRetries(n int) Option { return func(c *Coordinator) { c.maxRetries = n } }

func WithListPageSize(n int) Option { return func(c *Coordinator) { c.listPageSize = n } }

func New(store core.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:        store,
		clock:        util.RealClock{},
		metrics:      metrics.NopMetrics(),
		publisher:    events.NopPublisher{},
		logger:       zap.NewNop().Sugar(),
		maxRetries:   DefaultMaxCommitRetries,
		listPageSize: DefaultListPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.engine == nil {
		c.engine = matching.NewEngine(matching.WithClock(c.clock), matching.WithLogger(c.logger))
	}
	if c.listPageSize < 1 {
		c.listPageSize = DefaultListPageSize
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	c.ledger = ledger.New(c.clock)
	return c
}

type PlaceOrderRequest struct {
	OwnerID  uint64
	Side     core.Side
	Quantity decimal.Decimal
	Price    int64
}

// PlaceOrderResult is the order in its post-matching state and the trades
// the placement produced, in execution order
type PlaceOrderResult struct {
	Order  *core.Order
	Trades []*core.Trade
}

// PlaceOrder reserves the sell quantity, persists the order as open and
// matches it, all in one unit. Trades are published only after commit.
func (c *Coordinator) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if err := core.ValidateOrderInput(req.OwnerID, req.Side, req.Quantity, req.Price); err != nil {
		c.reject(err)
		return nil, err
	}

	var result *PlaceOrderResult
	err := c.update(ctx, "place order", func(tx core.Tx) error {
		result = nil

		if req.Side == core.Sell {
			if _, err := c.ledger.Reserve(tx, req.OwnerID, req.Quantity); err != nil {
				return err
			}
		}

		order, err := core.NewOrder(tx.Orders().NextID(), req.OwnerID, req.Side, req.Quantity, req.Price, c.clock.Now().UnixMilli())
		if err != nil {
			return err
		}
		if err := tx.Orders().Save(order); err != nil {
			return err
		}

		trades, err := c.engine.Match(tx, order)
		if err != nil {
			return err
		}
		result = &PlaceOrderResult{Order: order, Trades: trades}
		return nil
	})
	if err != nil {
		c.reject(err)
		c.logger.Warnw("order_rejected",
			"owner_id", req.OwnerID,
			"side", req.Side,
			"quantity", req.Quantity.String(),
			"price", req.Price,
			"err", err,
		)
		return nil, err
	}

	c.recordPlacement(result)
	if err := c.publisher.PublishTrades(ctx, result.Trades); err != nil {
		c.logger.Errorw("trade_publish_failed",
			"order_id", result.Order.ID,
			"trades", len(result.Trades),
			"err", err,
		)
	}

	c.logger.Infow("order_placed",
		"order_id", result.Order.ID,
		"owner_id", result.Order.OwnerID,
		"side", result.Order.Side,
		"quantity", result.Order.Quantity.String(),
		"remaining", result.Order.RemainingQuantity.String(),
		"price", result.Order.Price,
		"status", result.Order.Status,
		"trades", len(result.Trades),
	)
	return result, nil
}

// CancelOrder moves an open order to cancelled. The sell reservation is
// not returned to the owner's balance.
func (c *Coordinator) CancelOrder(ctx context.Context, id uint64) (*core.Order, error) {
	var order *core.Order
	err := c.update(ctx, "cancel order", func(tx core.Tx) error {
		o, err := tx.Orders().Get(id)
		if err != nil {
			return err
		}
		if err := o.Cancel(c.clock.Now().UnixMilli()); err != nil {
			return err
		}
		if err := tx.Orders().Save(o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.metrics.OrdersCancelled.Add(1)
	c.logger.Infow("order_cancelled", "order_id", order.ID, "remaining", order.RemainingQuantity.String())
	return order, nil
}

// OrderView is an order with the trades it took part in
type OrderView struct {
	*core.Order
	BuyTrades  []*core.Trade `json:"buy_trades,omitempty"`
	SellTrades []*core.Trade `json:"sell_trades,omitempty"`
}

// OrderPage is one page of the order listing, newest first
type OrderPage struct {
	Orders      []*OrderView
	CurrentPage int
	LastPage    int
	Total       int
}

// ListOrders returns page (1-based) of all orders, newest first.
// Pages past the end are empty; withTrades attaches each order's trades.
func (c *Coordinator) ListOrders(ctx context.Context, page int, withTrades bool) (*OrderPage, error) {
	if page < 1 {
		page = 1
	}

	out := &OrderPage{CurrentPage: page, Orders: []*OrderView{}}
	err := c.store.View(ctx, func(tx core.Tx) error {
		total, err := tx.Orders().Count()
		if err != nil {
			return err
		}
		out.Total = total
		out.LastPage = (total + c.listPageSize - 1) / c.listPageSize
		if out.LastPage < 1 {
			out.LastPage = 1
		}

		orders, err := tx.Orders().List((page-1)*c.listPageSize, c.listPageSize)
		if err != nil {
			return err
		}
		for _, o := range orders {
			view := &OrderView{Order: o}
			if withTrades {
				if err := attachTrades(tx, view); err != nil {
					return err
				}
			}
			out.Orders = append(out.Orders, view)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetOrder returns one order with its trades
func (c *Coordinator) GetOrder(ctx context.Context, id uint64) (*OrderView, error) {
	var view *OrderView
	err := c.store.View(ctx, func(tx core.Tx) error {
		o, err := tx.Orders().Get(id)
		if err != nil {
			return err
		}
		view = &OrderView{Order: o}
		return attachTrades(tx, view)
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func attachTrades(tx core.Tx, view *OrderView) error {
	trades, err := tx.Trades().ForOrder(view.ID)
	if err != nil {
		return err
	}
	for _, t := range trades {
		if t.BuyOrderID == view.ID {
			view.BuyTrades = append(view.BuyTrades, t)
		} else {
			view.SellTrades = append(view.SellTrades, t)
		}
	}
	return nil
}

// Deposit credits gold to an owner's account
func (c *Coordinator) Deposit(ctx context.Context, owner uint64, qty decimal.Decimal) (*core.Account, error) {
	if owner == 0 {
		return nil, fmt.Errorf("%w: missing owner", core.ErrInvalidOrder)
	}

	var acc *core.Account
	err := c.update(ctx, "deposit", func(tx core.Tx) error {
		var err error
		acc, err = c.ledger.Deposit(tx, owner, qty)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.logger.Infow("gold_deposited", "owner_id", owner, "quantity", qty.String(), "balance", acc.GoldBalance.String())
	return acc, nil
}

// Account returns an owner's account; unknown owners have a zero balance
func (c *Coordinator) Account(ctx context.Context, owner uint64) (*core.Account, error) {
	var acc *core.Account
	err := c.store.View(ctx, func(tx core.Tx) error {
		var err error
		acc, err = tx.Accounts().Get(owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// update runs fn as one unit, re-running it from scratch when the commit
// loses an optimistic-concurrency race
func (c *Coordinator) update(ctx context.Context, op string, fn func(core.Tx) error) error {
	start := time.Now()
	defer func() {
		c.metrics.UnitDuration.Observe(time.Since(start).Seconds())
	}()

	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		err = c.store.Update(ctx, fn)
		if !errors.Is(err, core.ErrConflict) {
			return err
		}
		c.metrics.CommitConflicts.Add(1)
		c.logger.Debugw("commit_conflict", "op", op, "attempt", attempt+1, "err", err)
	}
	return core.Persistence(op, fmt.Errorf("gave up after %d attempts: %w", c.maxRetries+1, err))
}

func (c *Coordinator) recordPlacement(r *PlaceOrderResult) {
	c.metrics.OrdersPlaced.With("side", string(r.Order.Side)).Add(1)
	c.metrics.TradesPerOrder.Observe(float64(len(r.Trades)))
	for _, t := range r.Trades {
		c.metrics.Trades.Add(1)
		c.metrics.TradedGrams.Add(t.Quantity.InexactFloat64())
		c.metrics.Commission.Add(float64(t.Commission))
	}
}

func (c *Coordinator) reject(err error) {
	reason := "error"
	switch {
	case errors.Is(err, core.ErrInvalidOrder):
		reason = "invalid"
	case errors.Is(err, core.ErrInsufficientBalance):
		reason = "insufficient_balance"
	case errors.Is(err, core.ErrConflict):
		reason = "conflict"
	case errors.Is(err, core.ErrPersistence):
		reason = "persistence"
	}
	c.metrics.OrdersRejected.With("reason", reason).Add(1)
}
