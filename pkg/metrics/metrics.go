// Package metrics holds the exchange's Prometheus instruments.
package metrics

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "exchange"

// Metrics contains metrics exposed by the exchange coordinator.
type Metrics struct {
	// Orders accepted, labelled by side
	OrdersPlaced metrics.Counter
	// Orders rejected, labelled by reason
	OrdersRejected metrics.Counter
	OrdersCancelled metrics.Counter

	Trades metrics.Counter
	// Grams executed
	TradedGrams metrics.Counter
	// Commission charged, smallest currency unit
	Commission metrics.Counter

	// Units retried after an optimistic-concurrency conflict
	CommitConflicts metrics.Counter
	// Trades produced by one placement
	TradesPerOrder metrics.Histogram
	// Wall time of one atomic unit, seconds
	UnitDuration metrics.Histogram
}

// PrometheusMetrics registers the instruments with the default registry.
// Call it once per process.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		OrdersPlaced: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "orders_placed_total",
			Help:      "Orders accepted.",
		}, []string{"side"}),
		OrdersRejected: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "orders_rejected_total",
			Help:      "Orders rejected before commit.",
		}, []string{"reason"}),
		OrdersCancelled: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "orders_cancelled_total",
			Help:      "Orders cancelled.",
		}, []string{}),
		Trades: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "trades_total",
			Help:      "Trades executed.",
		}, []string{}),
		TradedGrams: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "traded_grams_total",
			Help:      "Grams of gold executed.",
		}, []string{}),
		Commission: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "commission_total",
			Help:      "Commission charged in the smallest currency unit.",
		}, []string{}),
		CommitConflicts: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "commit_conflicts_total",
			Help:      "Atomic units retried after a concurrent modification.",
		}, []string{}),
		TradesPerOrder: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "trades_per_order",
			Help:      "Trades produced by one order placement.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 100},
		}, []string{}),
		UnitDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "unit_duration_seconds",
			Help:      "Duration of one atomic unit including retries.",
			Buckets:   stdprometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		OrdersPlaced:    discard.NewCounter(),
		OrdersRejected:  discard.NewCounter(),
		OrdersCancelled: discard.NewCounter(),
		Trades:          discard.NewCounter(),
		TradedGrams:     discard.NewCounter(),
		Commission:      discard.NewCounter(),
		CommitConflicts: discard.NewCounter(),
		TradesPerOrder:  discard.NewHistogram(),
		UnitDuration:    discard.NewHistogram(),
	}
}
