package scripthost

import (
	"sync"
	"time"

	"github.com/fruitsalade/studiokit/internal/metrics"
	"github.com/fruitsalade/studiokit/pkg/protocol"
)

// Broadcaster fans library events out to SSE subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan protocol.Event]struct{}
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan protocol.Event]struct{}),
	}
}

// Subscribe adds a subscriber and returns its channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan protocol.Event {
	ch := make(chan protocol.Event, 16)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(n))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan protocol.Event) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(n))
}

// Publish sends event to every subscriber without blocking; slow
// subscribers miss it.
func (b *Broadcaster) Publish(event protocol.Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	metrics.RecordSSEEvent(event.Type)
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
