package storage

import (
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/goldex/pkg/app/core"
)

// pebbleTx is the transactional context of one unit
type pebbleTx struct {
	store *PebbleStore
	batch *pebble.Batch

	// first version seen per versioned key
	observed map[string]uint64
}

func (tx *pebbleTx) Orders() core.OrderStore     { return orderStore{tx} }
func (tx *pebbleTx) Trades() core.TradeStore     { return tradeStore{tx} }
func (tx *pebbleTx) Accounts() core.AccountStore { return accountStore{tx} }

// observe records version for key unless the key was already seen
func (tx *pebbleTx) observe(key []byte, version uint64) {
	if _, ok := tx.observed[string(key)]; !ok {
		tx.observed[string(key)] = version
	}
}

// observeCurrent records the version currently visible to the unit
func (tx *pebbleTx) observeCurrent(key []byte) error {
	if _, ok := tx.observed[string(key)]; ok {
		return nil
	}
	v, err := getVersion(tx.batch, key)
	if err != nil {
		return err
	}
	tx.observed[string(key)] = v
	return nil
}

func (tx *pebbleTx) setJSON(key []byte, v any) error {
	data, err := encodeJSON(v)
	if err != nil {
		return err
	}
	return tx.batch.Set(key, data, nil)
}

// touchLevel bumps the version of a price level
func (tx *pebbleTx) touchLevel(price int64) error {
	key := levelKey(price)
	if err := tx.observeCurrent(key); err != nil {
		return err
	}
	v, err := getVersion(tx.batch, key)
	if err != nil {
		return err
	}
	return tx.setJSON(key, versioned{Version: v + 1})
}

// scanIDs returns the ids stored as values under prefix, starting at lower
func (tx *pebbleTx) scanIDs(prefix, lower []byte, limit int) ([]uint64, error) {
	iter, err := tx.batch.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var ids []uint64
	for iter.First(); iter.Valid(); iter.Next() {
		if limit > 0 && len(ids) >= limit {
			break
		}
		id, err := decodeID(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("index %q: %w", iter.Key(), err)
		}
		ids = append(ids, id)
	}
	return ids, iter.Error()
}

// ============================================================================
// Orders
// ============================================================================

type orderStore struct{ tx *pebbleTx }

func (s orderStore) NextID() uint64 { return s.tx.store.orderSeq.Next() }

func (s orderStore) Get(id uint64) (*core.Order, error) {
	var o core.Order
	found, err := getJSON(s.tx.batch, orderKey(id), &o)
	if err != nil {
		return nil, core.Persistence("get order", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %d", core.ErrOrderNotFound, id)
	}
	s.tx.observe(orderKey(id), o.Version)
	return &o, nil
}

// Save upserts the order and its indexes. The book entry exists only while
// the order is open; the version is bumped on every save.
func (s orderStore) Save(o *core.Order) error {
	if err := o.Validate(); err != nil {
		return core.Persistence("save order", err)
	}

	tx := s.tx
	key := orderKey(o.ID)
	if err := tx.observeCurrent(key); err != nil {
		return core.Persistence("save order", err)
	}
	if err := tx.touchLevel(o.Price); err != nil {
		return core.Persistence("save order", err)
	}

	o.Version++
	if err := tx.setJSON(key, o); err != nil {
		return core.Persistence("save order", err)
	}

	book := bookKey(o.Side, o.Price, o.CreatedAt, o.ID)
	var err error
	if o.IsOpen() {
		err = tx.batch.Set(book, encodeID(o.ID), nil)
	} else {
		err = tx.batch.Delete(book, nil)
	}
	if err != nil {
		return core.Persistence("save order", err)
	}

	if err := tx.batch.Set(orderTimeKey(o.CreatedAt, o.ID), encodeID(o.ID), nil); err != nil {
		return core.Persistence("save order", err)
	}
	return nil
}

// OpenOrders pages through the book at one side and price, oldest first.
// The scan observes the price level, so a concurrent unit adding or
// changing an order at that price makes this unit's commit fail.
func (s orderStore) OpenOrders(q core.BookQuery) ([]*core.Order, error) {
	tx := s.tx
	if err := tx.observeCurrent(levelKey(q.Price)); err != nil {
		return nil, core.Persistence("scan book", err)
	}

	prefix := bookPrefix(q.Side, q.Price)
	lower := prefix
	if q.After != nil {
		lower = keySuccessor(bookKey(q.Side, q.Price, q.After.CreatedAt, q.After.ID))
	}

	ids, err := tx.scanIDs(prefix, lower, q.Limit)
	if err != nil {
		return nil, core.Persistence("scan book", err)
	}

	orders := make([]*core.Order, 0, len(ids))
	for _, id := range ids {
		o, err := s.Get(id)
		if err != nil {
			return nil, core.Persistence("scan book", err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// List walks the creation-time index backwards
func (s orderStore) List(offset, limit int) ([]*core.Order, error) {
	prefix := []byte(prefixOrderTime)
	iter, err := s.tx.batch.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, core.Persistence("list orders", err)
	}
	defer iter.Close()

	var orders []*core.Order
	skipped := 0
	for iter.Last(); iter.Valid() && len(orders) < limit; iter.Prev() {
		if skipped < offset {
			skipped++
			continue
		}
		id, err := decodeID(iter.Value())
		if err != nil {
			return nil, core.Persistence("list orders", err)
		}
		o, err := s.Get(id)
		if err != nil {
			return nil, core.Persistence("list orders", err)
		}
		orders = append(orders, o)
	}
	if err := iter.Error(); err != nil {
		return nil, core.Persistence("list orders", err)
	}
	return orders, nil
}

func (s orderStore) Count() (int, error) {
	prefix := []byte(prefixOrderTime)
	iter, err := s.tx.batch.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return 0, core.Persistence("count orders", err)
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	if err := iter.Error(); err != nil {
		return 0, core.Persistence("count orders", err)
	}
	return n, nil
}

// ============================================================================
// Trades
// ============================================================================

type tradeStore struct{ tx *pebbleTx }

func (s tradeStore) NextID() uint64 { return s.tx.store.tradeSeq.Next() }

func (s tradeStore) Save(t *core.Trade) error {
	tx := s.tx
	key := tradeKey(t.ID)

	var existing core.Trade
	found, err := getJSON(tx.batch, key, &existing)
	if err != nil {
		return core.Persistence("save trade", err)
	}
	if found {
		return core.Persistence("save trade", fmt.Errorf("trade %d already exists", t.ID))
	}

	if err := tx.setJSON(key, t); err != nil {
		return core.Persistence("save trade", err)
	}
	for _, orderID := range []uint64{t.BuyOrderID, t.SellOrderID} {
		if err := tx.batch.Set(orderTradeKey(orderID, t.ID), encodeID(t.ID), nil); err != nil {
			return core.Persistence("save trade", err)
		}
	}
	return nil
}

func (s tradeStore) Get(id uint64) (*core.Trade, error) {
	var t core.Trade
	found, err := getJSON(s.tx.batch, tradeKey(id), &t)
	if err != nil {
		return nil, core.Persistence("get trade", err)
	}
	if !found {
		return nil, core.Persistence("get trade", fmt.Errorf("trade %d not found", id))
	}
	return &t, nil
}

func (s tradeStore) ForOrder(orderID uint64) ([]*core.Trade, error) {
	prefix := orderTradePrefix(orderID)
	ids, err := s.tx.scanIDs(prefix, prefix, 0)
	if err != nil {
		return nil, core.Persistence("order trades", err)
	}

	trades := make([]*core.Trade, 0, len(ids))
	for _, id := range ids {
		t, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// ============================================================================
// Accounts
// ============================================================================

type accountStore struct{ tx *pebbleTx }

func (s accountStore) Get(owner uint64) (*core.Account, error) {
	acc := core.NewAccount(owner)
	if _, err := getJSON(s.tx.batch, accountKey(owner), acc); err != nil {
		return nil, core.Persistence("get account", err)
	}
	s.tx.observe(accountKey(owner), acc.Version)
	return acc, nil
}

func (s accountStore) Save(a *core.Account) error {
	if err := a.Validate(); err != nil {
		return core.Persistence("save account", err)
	}

	key := accountKey(a.OwnerID)
	if err := s.tx.observeCurrent(key); err != nil {
		return core.Persistence("save account", err)
	}

	a.Version++
	if err := s.tx.setJSON(key, a); err != nil {
		return core.Persistence("save account", err)
	}
	return nil
}
