package feed

import (
	"context"
	"sync"
)

// MemBroker is the single-process broker: at-most-once, slow subscribers drop.
type MemBroker struct {
	mu   sync.RWMutex
	subs map[string][]chan Message
	size int
}

func NewMemBroker(size int) *MemBroker {
	if size <= 0 {
		size = 4096
	}
	return &MemBroker{subs: make(map[string][]chan Message), size: size}
}

func (b *MemBroker) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	msg := Message{Topic: topic, Payload: payload}
	for _, ch := range b.subs[topic] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (b *MemBroker) Subscribe(ctx context.Context, topics []string) (<-chan Message, error) {
	ch := make(chan Message, b.size)
	b.mu.Lock()
	for _, t := range topics {
		b.subs[t] = append(b.subs[t], ch)
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		for _, t := range topics {
			b.subs[t] = without(b.subs[t], ch)
			if len(b.subs[t]) == 0 {
				delete(b.subs, t)
			}
		}
		b.mu.Unlock()
		// 已经从订阅表摘掉, 持锁外关闭不会和 Publish 撞上
		close(ch)
	}()
	return ch, nil
}

func (b *MemBroker) Close() error { return nil }

func without(list []chan Message, ch chan Message) []chan Message {
	out := list[:0]
	for _, c := range list {
		if c != ch {
			out = append(out, c)
		}
	}
	return out
}
