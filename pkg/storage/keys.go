package storage

import (
	"fmt"
	"strconv"

	"github.com/uhyunpark/goldex/pkg/app/core"
)

// Pebble key schema
//
//   acc:{owner}                                   → Account (JSON)
//   ord:{orderID}                                 → Order (JSON)
//   book:{side}:{price}:{createdAt}:{orderID}     → orderID, open orders only
//   ordts:{createdAt}:{orderID}                   → orderID, every order
//   trade:{tradeID}                               → Trade (JSON)
//   otrade:{orderID}:{tradeID}                    → tradeID, both sides of a trade
//   lvl:{price}                                   → {"version":n}
//
// Numbers are zero-padded to 20 digits so lexicographic order is numeric order.
// Iterating a book prefix therefore yields open orders at one price, oldest
// first, ties broken by order ID.
const (
	prefixAccount    = "acc:"
	prefixOrder      = "ord:"
	prefixBook       = "book:"
	prefixOrderTime  = "ordts:"
	prefixTrade      = "trade:"
	prefixOrderTrade = "otrade:"
	prefixLevel      = "lvl:"
)

func accountKey(owner uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixAccount, owner))
}

func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

// bookPrefix returns the prefix for open orders on one side at one price
// Format: "book:{side}:{price}:"
func bookPrefix(side core.Side, price int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:", prefixBook, side, price))
}

// bookKey returns the book entry of an open order
// Format: "book:{side}:{price}:{createdAt}:{orderID}"
func bookKey(side core.Side, price, createdAt int64, id uint64) []byte {
	return append(bookPrefix(side, price), []byte(fmt.Sprintf("%020d:%020d", createdAt, id))...)
}

func orderTimeKey(createdAt int64, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d", prefixOrderTime, createdAt, id))
}

func tradeKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixTrade, id))
}

// orderTradePrefix returns the prefix for all trades of one order
// Format: "otrade:{orderID}:"
func orderTradePrefix(orderID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d:", prefixOrderTrade, orderID))
}

func orderTradeKey(orderID, tradeID uint64) []byte {
	return append(orderTradePrefix(orderID), []byte(fmt.Sprintf("%020d", tradeID))...)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
// Example: "book:sell:..:" -> "book:sell:..;" (next byte after ':')
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// keySuccessor returns the smallest key strictly greater than key
func keySuccessor(key []byte) []byte {
	next := make([]byte, len(key)+1)
	copy(next, key)
	return next
}

// idFromKey parses the trailing 20-digit id of ord:, trade: and index keys
func idFromKey(key []byte) (uint64, error) {
	if len(key) < 20 {
		return 0, fmt.Errorf("invalid key length: %q", key)
	}
	id, err := strconv.ParseUint(string(key[len(key)-20:]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id in key %q: %w", key, err)
	}
	return id, nil
}

// levelKey holds the version of one price level. Every order save at that
// price bumps it and every book scan observes it, so two units touching the
// same price cannot both commit.
func levelKey(price int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixLevel, price))
}
