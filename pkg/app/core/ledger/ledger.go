// Package ledger adjusts participants' gold balances inside an atomic unit.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/goldex/pkg/app/core"
	"github.com/uhyunpark/goldex/pkg/util"
)

// Ledger reads and writes accounts through the unit's transactional context.
// It holds no state of its own.
type Ledger struct {
	clock util.Clock
}

func New(clock util.Clock) *Ledger {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Ledger{clock: clock}
}

// Reserve takes the full sell quantity out of the owner's balance.
// Returns ErrInsufficientBalance (and writes nothing) if the balance is short.
func (l *Ledger) Reserve(tx core.Tx, owner uint64, qty decimal.Decimal) (*core.Account, error) {
	acc, err := tx.Accounts().Get(owner)
	if err != nil {
		return nil, err
	}
	if qty.GreaterThan(acc.GoldBalance) {
		return nil, fmt.Errorf("%w: owner %d has %s, needs %s", core.ErrInsufficientBalance, owner, acc.GoldBalance, qty)
	}

	acc.GoldBalance = acc.GoldBalance.Sub(qty)
	acc.UpdatedAt = l.clock.Now().UnixMilli()
	if err := tx.Accounts().Save(acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// Deposit credits grams to an account, creating it if needed
func (l *Ledger) Deposit(tx core.Tx, owner uint64, qty decimal.Decimal) (*core.Account, error) {
	if err := core.ValidateDeposit(qty); err != nil {
		return nil, err
	}
	acc, err := tx.Accounts().Get(owner)
	if err != nil {
		return nil, err
	}

	acc.GoldBalance = acc.GoldBalance.Add(qty)
	acc.UpdatedAt = l.clock.Now().UnixMilli()
	if err := tx.Accounts().Save(acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// Balance returns the owner's current gold balance
func (l *Ledger) Balance(tx core.Tx, owner uint64) (decimal.Decimal, error) {
	acc, err := tx.Accounts().Get(owner)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.GoldBalance, nil
}
