package matching

import "github.com/uhyunpark/goldex/pkg/app/core"

// Cursor walks the open orders on one side at one price, oldest first,
// fetching at most pageSize orders per store round-trip.
type Cursor struct {
	orders   core.OrderStore
	side     core.Side
	price    int64
	pageSize int

	page []*core.Order
	pos  int
	last *core.BookCursor
	done bool
}

func NewCursor(orders core.OrderStore, side core.Side, price int64, pageSize int) *Cursor {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return &Cursor{orders: orders, side: side, price: price, pageSize: pageSize}
}

// Next returns the next candidate, or nil once the book is exhausted.
// Resuming is keyed on (created_at, id) so candidates that leave the
// book while the cursor is open do not shift the position.
func (c *Cursor) Next() (*core.Order, error) {
	if c.pos >= len(c.page) {
		if c.done {
			return nil, nil
		}
		if err := c.fetch(); err != nil {
			return nil, err
		}
		if len(c.page) == 0 {
			return nil, nil
		}
	}

	o := c.page[c.pos]
	c.pos++
	c.last = &core.BookCursor{CreatedAt: o.CreatedAt, ID: o.ID}
	return o, nil
}

func (c *Cursor) fetch() error {
	page, err := c.orders.OpenOrders(core.BookQuery{
		Side:  c.side,
		Price: c.price,
		After: c.last,
		Limit: c.pageSize,
	})
	if err != nil {
		return err
	}
	c.page = page
	c.pos = 0
	if len(page) < c.pageSize {
		c.done = true
	}
	return nil
}
