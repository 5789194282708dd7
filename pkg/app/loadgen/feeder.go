package loadgen

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/goldex/pkg/app/core"
	"github.com/uhyunpark/goldex/pkg/app/exchange"
)

// Config controls generation rate and the shape of the simulated market
type Config struct {
	BatchSize   int           // actions per tick
	Interval    time.Duration // tick period
	Traders     int           // simulated owners
	SeedGrams   decimal.Decimal
	BasePrice   int64
	PriceLevels int   // distinct prices around BasePrice
	Tick        int64 // distance between levels
}

// DefaultConfig returns modest load on five price levels
func DefaultConfig() Config {
	return Config{
		BatchSize:   10,
		Interval:    100 * time.Millisecond,
		Traders:     50,
		SeedGrams:   decimal.NewFromInt(1000),
		BasePrice:   40_000_000,
		PriceLevels: 5,
		Tick:        10_000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize < 1 {
		c.BatchSize = d.BatchSize
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Traders < 1 {
		c.Traders = d.Traders
	}
	if !c.SeedGrams.IsPositive() {
		c.SeedGrams = d.SeedGrams
	}
	if c.BasePrice < 1 {
		c.BasePrice = d.BasePrice
	}
	if c.PriceLevels < 1 {
		c.PriceLevels = d.PriceLevels
	}
	if c.Tick < 1 {
		c.Tick = d.Tick
	}
	return c
}

// Target is the part of the exchange the feeder drives
type Target interface {
	PlaceOrder(ctx context.Context, req exchange.PlaceOrderRequest) (*exchange.PlaceOrderResult, error)
	CancelOrder(ctx context.Context, id uint64) (*core.Order, error)
	Deposit(ctx context.Context, owner uint64, qty decimal.Decimal) (*core.Account, error)
}

// Stats counts outcomes since the feeder started
type Stats struct {
	Placed    int
	Trades    int
	Cancelled int
	Rejected  int // insufficient balance, already closed
	Failed    int // anything else
}

type Feeder struct {
	cfg    Config
	target Target
	gen    *Generator
	logger *zap.SugaredLogger
	stats  Stats
}

func NewFeeder(target Target, cfg Config, seed int64, logger *zap.SugaredLogger) *Feeder {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Feeder{
		cfg:    cfg,
		target: target,
		gen:    NewGenerator(cfg, seed),
		logger: logger,
	}
}

func (f *Feeder) Stats() Stats { return f.stats }

// Run funds every trader then feeds one batch per interval until ctx ends
func (f *Feeder) Run(ctx context.Context) error {
	for i := 0; i < f.cfg.Traders; i++ {
		if _, err := f.target.Deposit(ctx, f.gen.Owner(i), f.cfg.SeedGrams); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	startTime := time.Now()
	lastLog := startTime
	f.logger.Infow("loadgen_started",
		"traders", f.cfg.Traders,
		"batch_size", f.cfg.BatchSize,
		"interval_ms", f.cfg.Interval.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			f.logStats("loadgen_stopped", time.Since(startTime))
			return nil

		case <-ticker.C:
			for _, action := range f.gen.GenerateBatch(f.cfg.BatchSize) {
				if ctx.Err() != nil {
					break
				}
				f.apply(ctx, action)
			}

			// Log stats every 10 seconds
			if time.Since(lastLog) >= 10*time.Second {
				f.logStats("loadgen_stats", time.Since(startTime))
				lastLog = time.Now()
			}
		}
	}
}

func (f *Feeder) apply(ctx context.Context, action Action) {
	if action.Place != nil {
		res, err := f.target.PlaceOrder(ctx, *action.Place)
		if err != nil {
			f.fail(err)
			return
		}
		f.stats.Placed++
		f.stats.Trades += len(res.Trades)
		if res.Order.IsOpen() {
			f.gen.Track(res.Order.ID)
		}
		return
	}

	if _, err := f.target.CancelOrder(ctx, action.CancelID); err != nil {
		f.fail(err)
		return
	}
	f.stats.Cancelled++
}

func (f *Feeder) fail(err error) {
	if errors.Is(err, core.ErrInsufficientBalance) || errors.Is(err, core.ErrInvalidOrderState) {
		f.stats.Rejected++
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	f.stats.Failed++
	f.logger.Warnw("loadgen_action_failed", "err", err)
}

func (f *Feeder) logStats(event string, elapsed time.Duration) {
	seconds := elapsed.Seconds()
	if seconds == 0 {
		seconds = 1
	}
	f.logger.Infow(event,
		"placed", f.stats.Placed,
		"trades", f.stats.Trades,
		"cancelled", f.stats.Cancelled,
		"rejected", f.stats.Rejected,
		"failed", f.stats.Failed,
		"orders_per_sec", float64(f.stats.Placed)/seconds,
	)
}
