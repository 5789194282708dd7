// Package events publishes committed trades to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/uhyunpark/goldex/pkg/app/core"
)

// Publisher receives trades after their unit has committed.
// Publishing never affects the unit: a failure is logged by the caller.
type Publisher interface {
	PublishTrades(ctx context.Context, trades []*core.Trade) error
	Close() error
}

// TradeEvent is the message value written for every trade
type TradeEvent struct {
	Type  string      `json:"type"`
	Trade *core.Trade `json:"trade"`
}

const TradeExecuted = "trade_executed"

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// PublishTrades writes one message per trade keyed by sell order id, so all
// fills of a resting sell land on one partition in execution order.
func (p *KafkaPublisher) PublishTrades(ctx context.Context, trades []*core.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(trades))
	for _, t := range trades {
		value, err := json.Marshal(TradeEvent{Type: TradeExecuted, Trade: t})
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.FormatUint(t.SellOrderID, 10)),
			Value: value,
		})
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops everything. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishTrades(context.Context, []*core.Trade) error { return nil }
func (NopPublisher) Close() error                                      { return nil }

// RecordingPublisher keeps published trades in memory
type RecordingPublisher struct {
	mu     sync.Mutex
	trades []*core.Trade
	Err    error
}

func (r *RecordingPublisher) PublishTrades(_ context.Context, trades []*core.Trade) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, trades...)
	return nil
}

func (r *RecordingPublisher) Published() []*core.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*core.Trade(nil), r.trades...)
}

func (r *RecordingPublisher) Close() error { return nil }
