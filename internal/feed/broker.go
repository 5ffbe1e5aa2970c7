package feed

import "context"

type Message struct {
	Topic   string
	Payload []byte
}

// Broker fans engine events out to other processes (indexers, UI push).
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// 订阅, ctx 结束时退订并关闭 channel
	Subscribe(ctx context.Context, topics []string) (<-chan Message, error)
	Close() error
}
