// Package loadgen drives the exchange with random traders for load testing.
package loadgen

import (
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/goldex/pkg/app/core"
	"github.com/uhyunpark/goldex/pkg/app/exchange"
)

// Action is one generated request: a placement or a cancel of CancelID
type Action struct {
	Place    *exchange.PlaceOrderRequest
	CancelID uint64
}

// Generator creates random placements clustered on a few price levels so
// that orders actually meet, plus occasional cancels of recent orders
type Generator struct {
	traders   int
	basePrice int64
	levels    int
	tick      int64
	rng       *rand.Rand

	// ring of recently placed order ids, cancel candidates
	recent []uint64
	next   int
}

const recentWindow = 100

func NewGenerator(cfg Config, seed int64) *Generator {
	cfg = cfg.withDefaults()
	return &Generator{
		traders:   cfg.Traders,
		basePrice: cfg.BasePrice,
		levels:    cfg.PriceLevels,
		tick:      cfg.Tick,
		rng:       rand.New(rand.NewSource(seed)),
		recent:    make([]uint64, 0, recentWindow),
	}
}

// Owner returns trader i (1-based ids)
func (g *Generator) Owner(i int) uint64 { return uint64(i + 1) }

// GenerateOrder creates a random placement
func (g *Generator) GenerateOrder() *exchange.PlaceOrderRequest {
	side := core.Buy
	if g.rng.Intn(2) == 1 {
		side = core.Sell
	}

	// levels centred on basePrice
	offset := int64(g.rng.Intn(g.levels) - g.levels/2)
	price := g.basePrice + offset*g.tick
	if price < 1 {
		price = 1
	}

	// 0.001 to 5.000 grams
	milligrams := int64(g.rng.Intn(5000) + 1)

	return &exchange.PlaceOrderRequest{
		OwnerID:  g.Owner(g.rng.Intn(g.traders)),
		Side:     side,
		Quantity: decimal.New(milligrams, -core.QuantityPrecision),
		Price:    price,
	}
}

// GenerateMix creates a random action (90% orders, 10% cancels)
func (g *Generator) GenerateMix() Action {
	if len(g.recent) > 0 && g.rng.Intn(100) < 10 {
		return Action{CancelID: g.recent[g.rng.Intn(len(g.recent))]}
	}
	return Action{Place: g.GenerateOrder()}
}

// GenerateBatch creates multiple random actions
func (g *Generator) GenerateBatch(count int) []Action {
	batch := make([]Action, count)
	for i := range batch {
		batch[i] = g.GenerateMix()
	}
	return batch
}

// Track remembers a placed order as a cancel candidate
func (g *Generator) Track(id uint64) {
	if len(g.recent) < recentWindow {
		g.recent = append(g.recent, id)
		return
	}
	g.recent[g.next] = id
	g.next = (g.next + 1) % recentWindow
}
