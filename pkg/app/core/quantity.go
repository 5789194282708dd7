package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// QuantityPrecision is the number of decimal places kept for grams
const QuantityPrecision = 3

// MinQuantity is the smallest tradable amount (1 milligram)
var MinQuantity = decimal.New(1, -QuantityPrecision)

// ParseQuantity parses a gram amount such as "2.5" or "0.125".
// More than QuantityPrecision decimal places is rejected rather than rounded.
func ParseQuantity(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: quantity %q: %v", ErrInvalidOrder, s, err)
	}
	if err := checkPrecision(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

func checkPrecision(d decimal.Decimal) error {
	if !d.Equal(d.Truncate(QuantityPrecision)) {
		return fmt.Errorf("%w: quantity %s has more than %d decimal places", ErrInvalidOrder, d, QuantityPrecision)
	}
	return nil
}

// ValidateOrderInput applies the submission rules: known side, quantity of at
// least MinQuantity with at most 3 decimals, and a price of at least 1.
func ValidateOrderInput(owner uint64, side Side, qty decimal.Decimal, price int64) error {
	if owner == 0 {
		return fmt.Errorf("%w: missing owner", ErrInvalidOrder)
	}
	if !side.Valid() {
		return fmt.Errorf("%w: side must be buy or sell, got %q", ErrInvalidOrder, side)
	}
	if qty.LessThan(MinQuantity) {
		return fmt.Errorf("%w: quantity must be at least %s, got %s", ErrInvalidOrder, MinQuantity, qty)
	}
	if err := checkPrecision(qty); err != nil {
		return err
	}
	if price < 1 {
		return fmt.Errorf("%w: price must be at least 1, got %d", ErrInvalidOrder, price)
	}
	return nil
}

// ValidateDeposit checks a gram amount credited to an account
func ValidateDeposit(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return fmt.Errorf("%w: deposit must be positive, got %s", ErrInvalidOrder, qty)
	}
	return checkPrecision(qty)
}
