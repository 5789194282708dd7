// Package matching executes an incoming order against resting orders of
// the opposite side at exactly the same price, oldest first.
package matching

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/goldex/pkg/app/core"
	"github.com/uhyunpark/goldex/pkg/app/core/commission"
	"github.com/uhyunpark/goldex/pkg/util"
)

// DefaultPageSize is the number of candidates loaded per book page
const DefaultPageSize = 100

type Engine struct {
	clock    util.Clock
	schedule commission.Schedule
	pageSize int
	logger   *zap.SugaredLogger
}

type Option func(*Engine)

func WithClock(c util.Clock) Option { return func(e *Engine) { e.clock = c } }

func WithPageSize(n int) Option { return func(e *Engine) { e.pageSize = n } }

func WithSchedule(s commission.Schedule) Option { return func(e *Engine) { e.schedule = s } }

func WithLogger(l *zap.SugaredLogger) Option { return func(e *Engine) { e.logger = l } }

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		clock:    util.RealClock{},
		schedule: commission.DefaultSchedule,
		pageSize: DefaultPageSize,
		logger:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Match fills incoming against the book and returns the trades in execution
// order. incoming must already be persisted as open. Every trade and every
// order change is written through tx before the next candidate is taken;
// the caller's unit discards all of it if any step fails.
func (e *Engine) Match(tx core.Tx, incoming *core.Order) ([]*core.Trade, error) {
	if !incoming.IsOpen() {
		return nil, fmt.Errorf("%w: order %d is %s", core.ErrInvalidOrderState, incoming.ID, incoming.Status)
	}

	cursor := NewCursor(tx.Orders(), incoming.Side.Opposite(), incoming.Price, e.pageSize)
	var trades []*core.Trade

	for incoming.RemainingQuantity.IsPositive() {
		candidate, err := cursor.Next()
		if err != nil {
			return nil, err
		}
		if candidate == nil {
			break
		}
		// stale page entry; another step of this pass may have closed it
		if !candidate.IsOpen() {
			continue
		}

		trade, err := e.execute(tx, incoming, candidate)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}

	return trades, nil
}

func (e *Engine) execute(tx core.Tx, incoming, candidate *core.Order) (*core.Trade, error) {
	qty := decimal.Min(incoming.RemainingQuantity, candidate.RemainingQuantity)
	now := e.clock.Now().UnixMilli()

	trade := &core.Trade{
		ID:         tx.Trades().NextID(),
		Quantity:   qty,
		Price:      incoming.Price,
		Commission: e.schedule.Commission(qty, incoming.Price),
		CreatedAt:  now,
	}
	if incoming.Side == core.Buy {
		trade.BuyOrderID, trade.SellOrderID = incoming.ID, candidate.ID
	} else {
		trade.BuyOrderID, trade.SellOrderID = candidate.ID, incoming.ID
	}

	if err := candidate.Fill(qty, now); err != nil {
		return nil, core.Persistence("fill resting order", err)
	}
	if err := incoming.Fill(qty, now); err != nil {
		return nil, core.Persistence("fill incoming order", err)
	}

	if err := tx.Trades().Save(trade); err != nil {
		return nil, err
	}
	if err := tx.Orders().Save(candidate); err != nil {
		return nil, err
	}
	if err := tx.Orders().Save(incoming); err != nil {
		return nil, err
	}

	e.logger.Debugw("trade_executed",
		"trade_id", trade.ID,
		"buy_order_id", trade.BuyOrderID,
		"sell_order_id", trade.SellOrderID,
		"quantity", qty.String(),
		"price", trade.Price,
		"commission", trade.Commission,
	)
	return trade, nil
}
