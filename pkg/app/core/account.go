package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Account tracks the gold a participant holds.
// Sell orders reserve their full quantity out of GoldBalance when placed.
type Account struct {
	OwnerID     uint64          `json:"owner_id"`
	GoldBalance decimal.Decimal `json:"gold_balance"` // grams, 3 decimal places
	UpdatedAt   int64           `json:"updated_at"`   // Unix milliseconds

	Version uint64 `json:"version"`
}

// NewAccount creates an account with zero balance
func NewAccount(owner uint64) *Account {
	return &Account{
		OwnerID:     owner,
		GoldBalance: decimal.Zero,
	}
}

// Validate checks account invariants
func (a *Account) Validate() error {
	if a.GoldBalance.IsNegative() {
		return fmt.Errorf("negative gold balance for owner %d: %s", a.OwnerID, a.GoldBalance)
	}
	return nil
}
