package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/goldex/pkg/app/core"
	"github.com/uhyunpark/goldex/pkg/events"
	"github.com/uhyunpark/goldex/pkg/storage"
	"github.com/uhyunpark/goldex/pkg/util"
)

func newTestStore(t *testing.T) *storage.PebbleStore {
	t.Helper()
	s, err := storage.Open(storage.Options{Path: "exchange", InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestCoordinator(t *testing.T, store core.Store, opts ...Option) *Coordinator {
	t.Helper()
	clock := util.NewStepClock(time.UnixMilli(1_700_000_000_000), time.Millisecond)
	return New(store, append([]Option{WithClock(clock)}, opts...)...)
}

func grams(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func place(t *testing.T, c *Coordinator, owner uint64, side core.Side, qty string, price int64) *PlaceOrderResult {
	t.Helper()
	res, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{
		OwnerID:  owner,
		Side:     side,
		Quantity: grams(qty),
		Price:    price,
	})
	require.NoError(t, err)
	return res
}

func deposit(t *testing.T, c *Coordinator, owner uint64, qty string) {
	t.Helper()
	_, err := c.Deposit(context.Background(), owner, grams(qty))
	require.NoError(t, err)
}

func balance(t *testing.T, c *Coordinator, owner uint64) decimal.Decimal {
	t.Helper()
	acc, err := c.Account(context.Background(), owner)
	require.NoError(t, err)
	return acc.GoldBalance
}

func TestSellThenSmallerBuy(t *testing.T) {
	c := newTestCoordinator(t, newTestStore(t))
	deposit(t, c, 1, "5")

	sell := place(t, c, 1, core.Sell, "5", 1_000_000)
	require.Empty(t, sell.Trades)
	require.True(t, balance(t, c, 1).IsZero())

	buy := place(t, c, 2, core.Buy, "3", 1_000_000)
	require.Len(t, buy.Trades, 1)
	require.True(t, buy.Trades[0].Quantity.Equal(grams("3")))
	require.Equal(t, int64(500_000), buy.Trades[0].Commission)
	require.Equal(t, core.OrderCompleted, buy.Order.Status)
	require.True(t, buy.Order.RemainingQuantity.IsZero())

	view, err := c.GetOrder(context.Background(), sell.Order.ID)
	require.NoError(t, err)
	require.Equal(t, core.OrderOpen, view.Status)
	require.True(t, view.RemainingQuantity.Equal(grams("2")))
	require.Len(t, view.SellTrades, 1)
	require.Empty(t, view.BuyTrades)
}

func TestBuyAcrossTwoSells(t *testing.T) {
	c := newTestCoordinator(t, newTestStore(t))
	deposit(t, c, 1, "16")

	first := place(t, c, 1, core.Sell, "6", 2_000_000)
	second := place(t, c, 1, core.Sell, "10", 2_000_000)
	buy := place(t, c, 2, core.Buy, "15", 2_000_000)

	require.Len(t, buy.Trades, 2)
	require.Equal(t, first.Order.ID, buy.Trades[0].SellOrderID)
	require.True(t, buy.Trades[0].Quantity.Equal(grams("6")))
	require.Equal(t, second.Order.ID, buy.Trades[1].SellOrderID)
	require.True(t, buy.Trades[1].Quantity.Equal(grams("9")))
	require.Equal(t, core.OrderCompleted, buy.Order.Status)

	view, err := c.GetOrder(context.Background(), second.Order.ID)
	require.NoError(t, err)
	require.True(t, view.RemainingQuantity.Equal(grams("1")))

	buyView, err := c.GetOrder(context.Background(), buy.Order.ID)
	require.NoError(t, err)
	require.Len(t, buyView.BuyTrades, 2)
}

func TestOversellRejectedWithoutOrder(t *testing.T) {
	c := newTestCoordinator(t, newTestStore(t))
	deposit(t, c, 1, "2")

	_, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{OwnerID: 1, Side: core.Sell, Quantity: grams("2.001"), Price: 10})
	require.ErrorIs(t, err, core.ErrInsufficientBalance)

	page, err := c.ListOrders(context.Background(), 1, false)
	require.NoError(t, err)
	require.Zero(t, page.Total)
	require.True(t, balance(t, c, 1).Equal(grams("2")))
}

func TestBuyNeedsNoBalance(t *testing.T) {
	c := newTestCoordinator(t, newTestStore(t))
	res := place(t, c, 9, core.Buy, "100", 10)
	require.Equal(t, core.OrderOpen, res.Order.Status)
	require.True(t, balance(t, c, 9).IsZero())
}

func TestInvalidInputRejected(t *testing.T) {
	c := newTestCoordinator(t, newTestStore(t))
	for _, req := range []PlaceOrderRequest{
		{OwnerID: 1, Side: "hold", Quantity: grams("1"), Price: 1},
		{OwnerID: 1, Side: core.Buy, Quantity: grams("0.0005"), Price: 1},
		{OwnerID: 1, Side: core.Buy, Quantity: grams("1.2345"), Price: 1},
		{OwnerID: 1, Side: core.Buy, Quantity: grams("1"), Price: 0},
		{OwnerID: 0, Side: core.Buy, Quantity: grams("1"), Price: 1},
	} {
		_, err := c.PlaceOrder(context.Background(), req)
		require.ErrorIs(t, err, core.ErrInvalidOrder, "%+v", req)
	}
}

func TestCancel(t *testing.T) {
	c := newTestCoordinator(t, newTestStore(t))
	deposit(t, c, 1, "4")
	sell := place(t, c, 1, core.Sell, "4", 50)

	cancelled, err := c.CancelOrder(context.Background(), sell.Order.ID)
	require.NoError(t, err)
	require.Equal(t, core.OrderCancelled, cancelled.Status)

	// reservation stays consumed
	require.True(t, balance(t, c, 1).IsZero())

	// a cancelled order no longer matches
	buy := place(t, c, 2, core.Buy, "1", 50)
	require.Empty(t, buy.Trades)

	_, err = c.CancelOrder(context.Background(), sell.Order.ID)
	require.ErrorIs(t, err, core.ErrInvalidOrderState)
}

func TestCancelCompletedLeavesOrderUnchanged(t *testing.T) {
	c := newTestCoordinator(t, newTestStore(t))
	deposit(t, c, 1, "1")
	place(t, c, 1, core.Sell, "1", 100)
	buy := place(t, c, 2, core.Buy, "1", 100)
	require.Equal(t, core.OrderCompleted, buy.Order.Status)

	before, err := c.GetOrder(context.Background(), buy.Order.ID)
	require.NoError(t, err)

	_, err = c.CancelOrder(context.Background(), buy.Order.ID)
	require.ErrorIs(t, err, core.ErrInvalidOrderState)

	after, err := c.GetOrder(context.Background(), buy.Order.ID)
	require.NoError(t, err)
	require.Equal(t, before.Order, after.Order)
}

func TestCancelMissingOrder(t *testing.T) {
	c := newTestCoordinator(t, newTestStore(t))
	_, err := c.CancelOrder(context.Background(), 404)
	require.ErrorIs(t, err, core.ErrOrderNotFound)
}

func TestListOrdersPaginatesNewestFirst(t *testing.T) {
	c := newTestCoordinator(t, newTestStore(t))
	var ids []uint64
	for i := 0; i < 12; i++ {
		ids = append(ids, place(t, c, 1, core.Buy, "1", int64(100+i)).Order.ID)
	}

	page, err := c.ListOrders(context.Background(), 1, false)
	require.NoError(t, err)
	require.Equal(t, 12, page.Total)
	require.Equal(t, 2, page.LastPage)
	require.Equal(t, 1, page.CurrentPage)
	require.Len(t, page.Orders, 10)
	require.Equal(t, ids[11], page.Orders[0].ID)
	require.Equal(t, ids[2], page.Orders[9].ID)

	page, err = c.ListOrders(context.Background(), 2, false)
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	require.Equal(t, ids[0], page.Orders[1].ID)

	page, err = c.ListOrders(context.Background(), 3, false)
	require.NoError(t, err)
	require.Empty(t, page.Orders)
}

func TestListOrdersWithTrades(t *testing.T) {
	c := newTestCoordinator(t, newTestStore(t))
	deposit(t, c, 1, "1")
	sell := place(t, c, 1, core.Sell, "1", 7)
	buy := place(t, c, 2, core.Buy, "1", 7)

	page, err := c.ListOrders(context.Background(), 1, true)
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)

	require.Equal(t, buy.Order.ID, page.Orders[0].ID)
	require.Len(t, page.Orders[0].BuyTrades, 1)
	require.Equal(t, sell.Order.ID, page.Orders[1].ID)
	require.Len(t, page.Orders[1].SellTrades, 1)

	page, err = c.ListOrders(context.Background(), 1, false)
	require.NoError(t, err)
	require.Nil(t, page.Orders[0].BuyTrades)
}

func TestPublishesCommittedTrades(t *testing.T) {
	pub := &events.RecordingPublisher{}
	c := newTestCoordinator(t, newTestStore(t), WithPublisher(pub))
	deposit(t, c, 1, "2")
	place(t, c, 1, core.Sell, "2", 10)
	buy := place(t, c, 2, core.Buy, "2", 10)

	require.Len(t, pub.Published(), 1)
	require.Equal(t, buy.Trades[0].ID, pub.Published()[0].ID)
}

func TestPublishFailureDoesNotFailPlacement(t *testing.T) {
	pub := &events.RecordingPublisher{Err: errors.New("broker down")}
	c := newTestCoordinator(t, newTestStore(t), WithPublisher(pub))
	deposit(t, c, 1, "1")
	place(t, c, 1, core.Sell, "1", 10)

	res, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{OwnerID: 2, Side: core.Buy, Quantity: grams("1"), Price: 10})
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
}

// faultyStore injects a persistence failure into every trade write
type faultyStore struct{ core.Store }

func (f faultyStore) Update(ctx context.Context, fn func(core.Tx) error) error {
	return f.Store.Update(ctx, func(tx core.Tx) error { return fn(faultyTx{tx}) })
}

type faultyTx struct{ core.Tx }

func (f faultyTx) Trades() core.TradeStore { return failingTrades{f.Tx.Trades()} }

type failingTrades struct{ core.TradeStore }

func (failingTrades) Save(*core.Trade) error {
	return core.Persistence("save trade", errors.New("disk full"))
}

func TestPersistenceFailureRollsBackWholeUnit(t *testing.T) {
	store := newTestStore(t)
	healthy := newTestCoordinator(t, store)
	deposit(t, healthy, 1, "10")
	restingBuy := place(t, healthy, 2, core.Buy, "3", 500)

	faulty := newTestCoordinator(t, faultyStore{store})
	_, err := faulty.PlaceOrder(context.Background(), PlaceOrderRequest{OwnerID: 1, Side: core.Sell, Quantity: grams("2"), Price: 500})
	require.ErrorIs(t, err, core.ErrPersistence)

	// reservation, new order and resting-order fill are all discarded
	require.True(t, balance(t, healthy, 1).Equal(grams("10")))

	page, err := healthy.ListOrders(context.Background(), 1, true)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.Equal(t, restingBuy.Order.ID, page.Orders[0].ID)
	require.True(t, page.Orders[0].RemainingQuantity.Equal(grams("3")))
	require.Empty(t, page.Orders[0].BuyTrades)
}

// conflictStore never manages to commit
type conflictStore struct {
	core.Store
	calls int
}

func (s *conflictStore) Update(context.Context, func(core.Tx) error) error {
	s.calls++
	return core.ErrConflict
}

func TestRetriesExhausted(t *testing.T) {
	store := &conflictStore{Store: newTestStore(t)}
	c := newTestCoordinator(t, store, WithMaxCommitRetries(3))

	_, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{OwnerID: 1, Side: core.Buy, Quantity: grams("1"), Price: 1})
	require.ErrorIs(t, err, core.ErrPersistence)
	require.ErrorIs(t, err, core.ErrConflict)
	require.Equal(t, 4, store.calls)
}

func TestConcurrentBuyersNeverOverAllocate(t *testing.T) {
	c := newTestCoordinator(t, newTestStore(t), WithMaxCommitRetries(1000))
	deposit(t, c, 1, "10")
	sell := place(t, c, 1, core.Sell, "10", 100)

	const buyers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*PlaceOrderResult
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(owner uint64) {
			defer wg.Done()
			res, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{OwnerID: owner, Side: core.Buy, Quantity: grams("1"), Price: 100})
			if err != nil {
				t.Errorf("buyer %d: %v", owner, err)
				return
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(uint64(100 + i))
	}
	wg.Wait()
	require.Len(t, results, buyers)

	filled := decimal.Zero
	completed := 0
	for _, r := range results {
		for _, tr := range r.Trades {
			require.Equal(t, sell.Order.ID, tr.SellOrderID)
			filled = filled.Add(tr.Quantity)
		}
		if r.Order.Status == core.OrderCompleted {
			completed++
		}
	}
	require.True(t, filled.Equal(grams("10")), "filled %s", filled)
	require.Equal(t, 10, completed)

	view, err := c.GetOrder(context.Background(), sell.Order.ID)
	require.NoError(t, err)
	require.Equal(t, core.OrderCompleted, view.Status)
	require.True(t, view.RemainingQuantity.IsZero())
	require.Len(t, view.SellTrades, 10)
}
