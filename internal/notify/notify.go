package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Notification kinds published by the core.
const (
	KindEvent               = "event"
	KindSubscriptionCreated = "subscription:created"
	KindSubscriptionUpdated = "subscription:updated"
	KindSubscriptionDeleted = "subscription:deleted"
)

// Notification describes one change inside the engine: a new event appended
// or a subscription created, updated, or deleted. Payload carries the
// relevant record (or its identifier, for deletions).
type Notification struct {
	Kind      string      `json:"kind"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Broker decouples the core from its observers: mutations publish, observers
// (logging, metrics, AMQP mirroring) subscribe independently.
type Broker interface {
	Publish(kind string, payload interface{})
	// Subscribe returns a channel of notifications and a cancel function
	// that releases it.
	Subscribe(buffer int) (<-chan Notification, func())
	Close()
}

// ChannelBroker is the in-process Broker. Publishing never blocks: a slow
// observer's buffer fills up and further notifications to it are dropped.
type ChannelBroker struct {
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[int]chan Notification
	nextID int
	closed bool
}

// NewChannelBroker creates an in-process broker.
func NewChannelBroker(logger *zap.Logger) *ChannelBroker {
	return &ChannelBroker{
		logger: logger,
		subs:   make(map[int]chan Notification),
	}
}

func (b *ChannelBroker) Publish(kind string, payload interface{}) {
	notification := Notification{
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- notification:
		default:
			b.logger.Warn("Dropping notification for slow observer",
				zap.Int("subscriber", id),
				zap.String("kind", kind),
			)
		}
	}
}

func (b *ChannelBroker) Subscribe(buffer int) (<-chan Notification, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Notification, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (b *ChannelBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
