// Package commission computes the fee charged on every executed trade.
package commission

import "github.com/shopspring/decimal"

// Tier applies Bps to trades whose quantity is at most UpTo grams.
// A zero UpTo means "no upper bound" and must be the last tier.
type Tier struct {
	UpTo decimal.Decimal
	Bps  int64
}

// Schedule is a tiered percentage fee clamped to [Min, Max]
type Schedule struct {
	Tiers []Tier
	Min   int64
	Max   int64
}

// DefaultSchedule:
//   - up to 1 gram: 2%
//   - above 1 up to 10 grams: 1.5%
//   - above 10 grams: 1%
//
// Minimum 500,000, maximum 50,000,000 (smallest currency unit).
var DefaultSchedule = Schedule{
	Tiers: []Tier{
		{UpTo: decimal.NewFromInt(1), Bps: 200},
		{UpTo: decimal.NewFromInt(10), Bps: 150},
		{Bps: 100},
	},
	Min: 500_000,
	Max: 50_000_000,
}

// Calculate returns the commission for quantity grams at price per gram
// under DefaultSchedule
func Calculate(quantity decimal.Decimal, price int64) int64 {
	return DefaultSchedule.Commission(quantity, price)
}

// Commission computes quantity × price × rate, clamps it to [Min, Max]
// and truncates toward zero.
func (s Schedule) Commission(quantity decimal.Decimal, price int64) int64 {
	value := quantity.Mul(decimal.NewFromInt(price))
	raw := value.Mul(decimal.NewFromInt(s.Bps(quantity))).Shift(-4)

	if raw.LessThan(decimal.NewFromInt(s.Min)) {
		raw = decimal.NewFromInt(s.Min)
	}
	if raw.GreaterThan(decimal.NewFromInt(s.Max)) {
		raw = decimal.NewFromInt(s.Max)
	}
	return raw.Truncate(0).IntPart()
}

// Bps returns the rate in basis points for a trade of quantity grams
func (s Schedule) Bps(quantity decimal.Decimal) int64 {
	for _, t := range s.Tiers {
		if t.UpTo.IsZero() || quantity.LessThanOrEqual(t.UpTo) {
			return t.Bps
		}
	}
	if len(s.Tiers) == 0 {
		return 0
	}
	return s.Tiers[len(s.Tiers)-1].Bps
}
