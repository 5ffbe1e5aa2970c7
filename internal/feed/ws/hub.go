package ws

import (
	"context"
	"sync"

	"ctfex.com/internal/feed"
	"ctfex.com/pkg/logger"
	"ctfex.com/pkg/safe"
	"go.uber.org/zap"
)

// Hub fans broker messages out to websocket connections. A topic is
// subscribed on the broker while at least one connection wants it.
type Hub struct {
	ctx    context.Context
	broker feed.Broker

	mu       sync.RWMutex
	subs     map[string]map[*Conn]struct{} // topic -> set(conn)
	upstream map[string]context.CancelFunc // topic -> broker 订阅
}

func NewHub(ctx context.Context, broker feed.Broker) *Hub {
	return &Hub{
		ctx:      ctx,
		broker:   broker,
		subs:     make(map[string]map[*Conn]struct{}, 64),
		upstream: make(map[string]context.CancelFunc, 64),
	}
}

func (h *Hub) Subscribe(c *Conn, topics []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range topics {
		set := h.subs[t]
		if set == nil {
			if err := h.openLocked(t); err != nil {
				return err
			}
			set = make(map[*Conn]struct{}, 16)
			h.subs[t] = set
		}
		set[c] = struct{}{}
	}
	return nil
}

func (h *Hub) Unsubscribe(c *Conn, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range topics {
		h.removeLocked(c, t)
	}
}

func (h *Hub) RemoveConn(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for t := range h.subs {
		h.removeLocked(c, t)
	}
}

// Topics reports how many topics are currently subscribed upstream.
func (h *Hub) Topics() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.upstream)
}

// Publish 对每个连接都是非阻塞投递, 慢客户端被断开
func (h *Hub) Publish(topic string, payload []byte) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.subs[topic]))
	for c := range h.subs[topic] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Offer(payload)
	}
}

func (h *Hub) openLocked(topic string) error {
	ctx, cancel := context.WithCancel(h.ctx)
	ch, err := h.broker.Subscribe(ctx, []string{topic})
	if err != nil {
		cancel()
		return err
	}
	h.upstream[topic] = cancel
	safe.GoCtx(ctx, func(ctx context.Context) {
		for m := range ch {
			h.Publish(m.Topic, m.Payload)
		}
	})
	logger.Debug(h.ctx, "stream topic opened", zap.String("topic", topic))
	return nil
}

func (h *Hub) removeLocked(c *Conn, topic string) {
	set := h.subs[topic]
	if set == nil {
		return
	}
	delete(set, c)
	if len(set) > 0 {
		return
	}
	delete(h.subs, topic)
	if cancel := h.upstream[topic]; cancel != nil {
		cancel()
		delete(h.upstream, topic)
	}
	logger.Debug(h.ctx, "stream topic closed", zap.String("topic", topic))
}
