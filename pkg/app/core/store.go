package core

import "context"

// BookCursor marks a position in the open-order book: (CreatedAt, ID).
// A query with After set resumes strictly after that position.
type BookCursor struct {
	CreatedAt int64
	ID        uint64
}

// BookQuery selects open orders on one side at one exact price,
// oldest first (CreatedAt asc, then ID asc).
type BookQuery struct {
	Side  Side
	Price int64
	After *BookCursor
	Limit int
}

// OrderStore persists orders. Save is an upsert that also maintains the
// indexes, so an order leaves the book as soon as it is saved non-open.
type OrderStore interface {
	NextID() uint64
	Get(id uint64) (*Order, error) // ErrOrderNotFound if missing
	Save(o *Order) error
	OpenOrders(q BookQuery) ([]*Order, error)

	// List returns orders newest first (CreatedAt desc, then ID desc)
	List(offset, limit int) ([]*Order, error)
	Count() (int, error)
}

// TradeStore persists trades. Save refuses to overwrite an existing trade.
type TradeStore interface {
	NextID() uint64
	Save(t *Trade) error
	Get(id uint64) (*Trade, error)

	// ForOrder returns the trades an order took part in, oldest first
	ForOrder(orderID uint64) ([]*Trade, error)
}

// AccountStore persists accounts. Get returns a zero-balance account
// for an owner that has never been saved.
type AccountStore interface {
	Get(owner uint64) (*Account, error)
	Save(a *Account) error
}

// Tx is the transactional context of one atomic unit. Every read and write
// of the unit goes through it; nothing is visible outside until commit.
type Tx interface {
	Orders() OrderStore
	Trades() TradeStore
	Accounts() AccountStore
}

// Store runs atomic units. Update commits when fn returns nil and discards
// every write otherwise. View never commits.
type Store interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
}
