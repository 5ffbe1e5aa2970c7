package feed

import (
	"context"
	"errors"

	"ctfex.com/internal/engine"
	"ctfex.com/internal/matching"
	"ctfex.com/pkg/logger"
	"ctfex.com/pkg/metrics"
	"ctfex.com/pkg/ratelimit"
	"github.com/ethereum/go-ethereum/common"
	"github.com/segmentio/encoding/json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const breakerName = "feed.publish"

// EventMessage is the wire form of an engine event.
type EventMessage struct {
	Type         string `json:"type"`
	Market       string `json:"market"`
	Seq          uint64 `json:"seq"`
	Idx          uint16 `json:"idx"`
	Ts           int64  `json:"ts"`
	OrderID      uint64 `json:"order_id"`
	Trader       string `json:"trader"`
	Status       string `json:"status,omitempty"`
	Filled       uint64 `json:"filled,omitempty"`
	MakerOrderID uint64 `json:"maker_order_id,omitempty"`
	Maker        string `json:"maker,omitempty"`
	Tick         int    `json:"tick,omitempty"`
	Price        string `json:"price,omitempty"`
	Qty          uint64 `json:"qty,omitempty"`
	Outcome      string `json:"outcome,omitempty"` // YES / NO
	TakerPaid    uint64 `json:"taker_paid,omitempty"`
	MakerPaid    uint64 `json:"maker_paid,omitempty"`
}

func Topic(prefix string, market common.Hash) string { return prefix + ":" + market.Hex() }

func EncodeEvent(ev engine.Event) ([]byte, error) {
	msg := EventMessage{
		Type:         ev.Type.String(),
		Market:       ev.Market.Hex(),
		Seq:          ev.Seq,
		Idx:          ev.Idx,
		Ts:           ev.Ts,
		OrderID:      ev.OrderID,
		Trader:       ev.Trader.Hex(),
		Filled:       ev.Filled,
		MakerOrderID: ev.MakerOrderID,
		Tick:         int(ev.Tick),
		Qty:          ev.Qty,
		TakerPaid:    ev.TakerPaid,
		MakerPaid:    ev.MakerPaid,
		Outcome:      "YES",
	}
	if ev.WantsNo {
		msg.Outcome = "NO"
	}
	if ev.Status != 0 {
		msg.Status = ev.Status.String()
	}
	if ev.MakerOrderID != 0 {
		msg.Maker = ev.Maker.Hex()
	}
	if p, err := matching.TickToPrice(ev.Tick); err == nil {
		msg.Price = p.String()
	}
	return json.Marshal(msg)
}

// Relay drains the engine event stream into a broker. Publishing runs
// through a circuit breaker; while it is open events are dropped and
// counted, the engine is never back-pressured by the feed.
type Relay struct {
	broker   Broker
	breakers *ratelimit.Manager
	prefix   string
}

func NewRelay(b Broker, breakers *ratelimit.Manager, prefix string) *Relay {
	if prefix == "" {
		prefix = "ctfex"
	}
	return &Relay{broker: b, breakers: breakers, prefix: prefix}
}

func (r *Relay) Run(ctx context.Context, src <-chan engine.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-src:
			if !ok {
				return nil
			}
			r.relay(ctx, ev)
		}
	}
}

func (r *Relay) relay(ctx context.Context, ev engine.Event) {
	payload, err := EncodeEvent(ev)
	if err != nil {
		metrics.FeedPublishTotal.WithLabelValues("error").Inc()
		logger.Error(ctx, "feed encode failed", zap.Uint64("seq", ev.Seq), zap.Error(err))
		return
	}
	topic := Topic(r.prefix, ev.Market)
	err = r.breakers.Do(breakerName, func() error {
		return r.broker.Publish(ctx, topic, payload)
	})
	switch {
	case err == nil:
		metrics.FeedPublishTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.FeedPublishTotal.WithLabelValues("open").Inc()
	default:
		metrics.FeedPublishTotal.WithLabelValues("error").Inc()
		logger.Warn(ctx, "feed publish failed", zap.String("topic", topic),
			zap.Uint64("seq", ev.Seq), zap.Error(err))
	}
}
