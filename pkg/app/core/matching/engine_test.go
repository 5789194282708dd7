package matching

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/uhyunpark/goldex/pkg/app/core"
	"github.com/uhyunpark/goldex/pkg/storage"
	"github.com/uhyunpark/goldex/pkg/util"
)

type harness struct {
	t      testing.TB
	store  *storage.PebbleStore
	engine *Engine
	nextAt int64
}

func newHarness(t testing.TB, opts ...Option) *harness {
	s, err := storage.Open(storage.Options{Path: "matching", InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := util.NewStepClock(time.UnixMilli(1_700_000_000_000), time.Millisecond)
	opts = append([]Option{WithClock(clock)}, opts...)
	return &harness{t: t, store: s, engine: NewEngine(opts...), nextAt: 1}
}

// rest persists an open order without matching it
func (h *harness) rest(side core.Side, qty string, price int64) *core.Order {
	var o *core.Order
	err := h.store.Update(context.Background(), func(tx core.Tx) error {
		var err error
		o, err = core.NewOrder(tx.Orders().NextID(), 1, side, decimal.RequireFromString(qty), price, h.nextAt)
		if err != nil {
			return err
		}
		return tx.Orders().Save(o)
	})
	require.NoError(h.t, err)
	h.nextAt++
	return o
}

// submit persists a new order and runs a matching pass in the same unit
func (h *harness) submit(side core.Side, qty string, price int64) (*core.Order, []*core.Trade) {
	var (
		o      *core.Order
		trades []*core.Trade
	)
	err := h.store.Update(context.Background(), func(tx core.Tx) error {
		var err error
		o, err = core.NewOrder(tx.Orders().NextID(), 2, side, decimal.RequireFromString(qty), price, h.nextAt)
		if err != nil {
			return err
		}
		if err := tx.Orders().Save(o); err != nil {
			return err
		}
		trades, err = h.engine.Match(tx, o)
		return err
	})
	require.NoError(h.t, err)
	h.nextAt++
	return o, trades
}

func (h *harness) order(id uint64) *core.Order {
	var o *core.Order
	require.NoError(h.t, h.store.View(context.Background(), func(tx core.Tx) error {
		var err error
		o, err = tx.Orders().Get(id)
		return err
	}))
	return o
}

func requireQty(t testing.TB, expected string, actual decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

func TestPartialFillOfRestingSell(t *testing.T) {
	h := newHarness(t)
	sell := h.rest(core.Sell, "5", 1_000_000)

	buy, trades := h.submit(core.Buy, "3", 1_000_000)

	require.Len(t, trades, 1)
	tr := trades[0]
	requireQty(t, "3", tr.Quantity)
	require.Equal(t, int64(1_000_000), tr.Price)
	require.Equal(t, int64(500_000), tr.Commission)
	require.True(t, tr.Value().Equal(decimal.NewFromInt(3_000_000)))
	require.Equal(t, buy.ID, tr.BuyOrderID)
	require.Equal(t, sell.ID, tr.SellOrderID)

	stored := h.order(sell.ID)
	requireQty(t, "2", stored.RemainingQuantity)
	require.Equal(t, core.OrderOpen, stored.Status)

	stored = h.order(buy.ID)
	requireQty(t, "0", stored.RemainingQuantity)
	require.Equal(t, core.OrderCompleted, stored.Status)
}

func TestBuyConsumesTwoSellsInFIFOOrder(t *testing.T) {
	h := newHarness(t)
	older := h.rest(core.Sell, "6", 2_000_000)
	newer := h.rest(core.Sell, "10", 2_000_000)

	buy, trades := h.submit(core.Buy, "15", 2_000_000)

	require.Len(t, trades, 2)
	require.Equal(t, older.ID, trades[0].SellOrderID)
	requireQty(t, "6", trades[0].Quantity)
	require.Equal(t, newer.ID, trades[1].SellOrderID)
	requireQty(t, "9", trades[1].Quantity)
	for _, tr := range trades {
		require.Equal(t, int64(500_000), tr.Commission)
	}

	require.Equal(t, core.OrderCompleted, h.order(buy.ID).Status)
	require.Equal(t, core.OrderCompleted, h.order(older.ID).Status)

	stored := h.order(newer.ID)
	require.Equal(t, core.OrderOpen, stored.Status)
	requireQty(t, "1", stored.RemainingQuantity)
}

func TestSellMatchesRestingBuy(t *testing.T) {
	h := newHarness(t)
	buy := h.rest(core.Buy, "2", 40_000_000)

	sell, trades := h.submit(core.Sell, "1.001", 40_000_000)

	require.Len(t, trades, 1)
	require.Equal(t, buy.ID, trades[0].BuyOrderID)
	require.Equal(t, sell.ID, trades[0].SellOrderID)
	require.Equal(t, int64(600_600), trades[0].Commission)
	requireQty(t, "0.999", h.order(buy.ID).RemainingQuantity)
}

func TestExactPriceOnly(t *testing.T) {
	h := newHarness(t)
	h.rest(core.Sell, "1", 999)
	h.rest(core.Sell, "1", 1001)

	buy, trades := h.submit(core.Buy, "1", 1000)

	require.Empty(t, trades)
	require.Equal(t, core.OrderOpen, h.order(buy.ID).Status)
}

func TestSameSideNeverMatches(t *testing.T) {
	h := newHarness(t)
	h.rest(core.Buy, "1", 1000)

	_, trades := h.submit(core.Buy, "1", 1000)
	require.Empty(t, trades)
}

func TestTieOnCreatedAtBrokenByID(t *testing.T) {
	h := newHarness(t)
	var first, second *core.Order
	require.NoError(t, h.store.Update(context.Background(), func(tx core.Tx) error {
		// same timestamp, saved in reverse id order
		second, _ = core.NewOrder(20, 1, core.Sell, decimal.NewFromInt(1), 500, 7)
		first, _ = core.NewOrder(10, 1, core.Sell, decimal.NewFromInt(1), 500, 7)
		if err := tx.Orders().Save(second); err != nil {
			return err
		}
		return tx.Orders().Save(first)
	}))

	h.nextAt = 8
	_, trades := h.submit(core.Buy, "1", 500)
	require.Len(t, trades, 1)
	require.Equal(t, first.ID, trades[0].SellOrderID)
}

func TestCursorCrossesPages(t *testing.T) {
	h := newHarness(t, WithPageSize(2))
	var sells []*core.Order
	for i := 0; i < 5; i++ {
		sells = append(sells, h.rest(core.Sell, "1", 700))
	}

	buy, trades := h.submit(core.Buy, "4.5", 700)

	require.Len(t, trades, 5)
	for i, tr := range trades {
		require.Equal(t, sells[i].ID, tr.SellOrderID)
	}
	requireQty(t, "0.5", trades[4].Quantity)
	require.Equal(t, core.OrderCompleted, h.order(buy.ID).Status)
	requireQty(t, "0.5", h.order(sells[4].ID).RemainingQuantity)
}

func TestStopsOnceFilled(t *testing.T) {
	h := newHarness(t, WithPageSize(1))
	a := h.rest(core.Sell, "1", 10)
	b := h.rest(core.Sell, "1", 10)

	_, trades := h.submit(core.Buy, "1", 10)

	require.Len(t, trades, 1)
	require.Equal(t, a.ID, trades[0].SellOrderID)
	require.Equal(t, core.OrderOpen, h.order(b.ID).Status)
	requireQty(t, "1", h.order(b.ID).RemainingQuantity)
}

func TestMatchRejectsClosedIncoming(t *testing.T) {
	h := newHarness(t)
	err := h.store.Update(context.Background(), func(tx core.Tx) error {
		o, _ := core.NewOrder(1, 1, core.Buy, decimal.NewFromInt(1), 1, 1)
		require.NoError(t, o.Cancel(2))
		_, err := h.engine.Match(tx, o)
		return err
	})
	require.ErrorIs(t, err, core.ErrInvalidOrderState)
}

type restingOrder struct {
	milligrams int64
	side       core.Side
}

// Random books at one price: every trade takes min of the two remainders,
// candidates are consumed oldest first and quantity is conserved.
// Each run uses a fresh price level of one shared store.
func TestMatchInvariants(t *testing.T) {
	h := newHarness(t)
	var price int64
	rapid.Check(t, func(rt *rapid.T) {
		price++
		h.engine.pageSize = rapid.IntRange(1, 4).Draw(rt, "pageSize")

		incomingSide := rapid.SampledFrom([]core.Side{core.Buy, core.Sell}).Draw(rt, "side")
		n := rapid.IntRange(0, 8).Draw(rt, "resting")

		before := map[uint64]decimal.Decimal{}
		var opposite []*core.Order
		for i := 0; i < n; i++ {
			ro := restingOrder{
				milligrams: rapid.Int64Range(1, 5000).Draw(rt, fmt.Sprintf("mg%d", i)),
				side:       rapid.SampledFrom([]core.Side{core.Buy, core.Sell}).Draw(rt, fmt.Sprintf("side%d", i)),
			}
			o := h.rest(ro.side, decimal.New(ro.milligrams, -3).String(), price)
			before[o.ID] = o.RemainingQuantity
			if ro.side == incomingSide.Opposite() {
				opposite = append(opposite, o)
			}
		}
		sort.Slice(opposite, func(i, j int) bool { return opposite[i].ID < opposite[j].ID })

		qty := decimal.New(rapid.Int64Range(1, 20000).Draw(rt, "incoming"), -3)
		incoming, trades := h.submit(incomingSide, qty.String(), price)

		filled := decimal.Zero
		remaining := qty
		for i, tr := range trades {
			counter := tr.SellOrderID
			if incomingSide == core.Sell {
				counter = tr.BuyOrderID
			}
			require.Equal(rt, opposite[i].ID, counter, "FIFO order")
			require.True(rt, tr.Quantity.Equal(decimal.Min(remaining, before[counter])), "trade quantity")
			require.Equal(rt, price, tr.Price)
			remaining = remaining.Sub(tr.Quantity)
			filled = filled.Add(tr.Quantity)

			stored := h.order(counter)
			require.True(rt, stored.RemainingQuantity.Equal(before[counter].Sub(tr.Quantity)))
			require.Equal(rt, stored.RemainingQuantity.IsZero(), stored.Status == core.OrderCompleted)
		}

		stored := h.order(incoming.ID)
		require.True(rt, stored.RemainingQuantity.Equal(qty.Sub(filled)))
		require.False(rt, stored.RemainingQuantity.IsNegative())
		require.Equal(rt, stored.RemainingQuantity.IsZero(), stored.Status == core.OrderCompleted)

		// stopped early only because the book ran out
		if stored.IsOpen() {
			require.Len(rt, trades, len(opposite))
		}
	})
}
