package bus

import (
	"strings"
	"sync"
)

// Bus is an in-process publish/subscribe bus with namespace-prefix filtering.
// It carries every relay notification, so independent consumers (the health
// observer, the error forwarder, an embedding UI) see the same stream without
// stealing events from each other.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[int]*subscriber),
	}
}

// Publish delivers evt to every subscriber whose prefix matches evt.Kind.
// Delivery is non-blocking: a subscriber with a full buffer misses the event,
// so a slow consumer can never stall ingestion.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	matched := make([]chan Event, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if strings.HasPrefix(evt.Kind, sub.prefix) {
			matched = append(matched, sub.ch)
		}
	}
	b.mu.RUnlock()

	// Channels are never closed, so a send racing an unsubscribe is harmless.
	for _, ch := range matched {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribe registers interest in events whose Kind starts with prefix; the
// empty prefix matches everything. bufSize sets the channel buffer. The
// returned func removes the subscription; it is safe to call more than once.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = &subscriber{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}
