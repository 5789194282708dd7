package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/uhyunpark/goldex/params"
	"github.com/uhyunpark/goldex/pkg/app/core/matching"
	"github.com/uhyunpark/goldex/pkg/app/exchange"
	"github.com/uhyunpark/goldex/pkg/events"
	"github.com/uhyunpark/goldex/pkg/metrics"
	"github.com/uhyunpark/goldex/pkg/storage"
	"github.com/uhyunpark/goldex/pkg/util"
)

// node holds everything one process opens; close releases it in reverse
type node struct {
	cfg       params.Config
	logger    *zap.Logger
	store     *storage.PebbleStore
	publisher events.Publisher
	exchange  *exchange.Coordinator
}

type nodeOptions struct {
	// withMetrics registers Prometheus instruments (serve only)
	withMetrics bool
	// withPublisher connects to Kafka when brokers are configured
	withPublisher bool
}

func newLogger(cfg params.Config) (*zap.Logger, error) {
	if cfg.Log.File != "" {
		return util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	}
	return util.NewLogger(cfg.Log.Level)
}

func openNode(envPath string, opts nodeOptions) (*node, error) {
	cfg := params.LoadFromEnv(envPath)

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "level", cfg.Log.Level, "log_file", cfg.Log.File)

	store, err := storage.Open(storage.Options{
		Path:   cfg.Storage.Path,
		Sync:   cfg.Storage.Sync,
		Logger: sugar,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("open store: %w", err)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if opts.withPublisher && len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.TradesTopic)
		sugar.Infow("trade_publisher_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.TradesTopic)
	}

	m := metrics.NopMetrics()
	if opts.withMetrics {
		m = metrics.PrometheusMetrics(cfg.Metrics.Namespace)
	}

	clock := util.RealClock{}
	engine := matching.NewEngine(
		matching.WithClock(clock),
		matching.WithPageSize(cfg.Exchange.MatchPageSize),
		matching.WithLogger(sugar),
	)
	coord := exchange.New(store,
		exchange.WithEngine(engine),
		exchange.WithClock(clock),
		exchange.WithMetrics(m),
		exchange.WithPublisher(publisher),
		exchange.WithLogger(sugar),
		exchange.WithMaxCommitRetries(cfg.Exchange.MaxCommitRetries),
		exchange.WithListPageSize(cfg.Exchange.ListPageSize),
	)

	return &node{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		publisher: publisher,
		exchange:  coord,
	}, nil
}

func (n *node) close() {
	sugar := n.logger.Sugar()
	if err := n.publisher.Close(); err != nil {
		sugar.Warnw("publisher_close_failed", "err", err)
	}
	if err := n.store.Close(); err != nil {
		sugar.Warnw("store_close_failed", "err", err)
	}
	_ = n.logger.Sync()
}
