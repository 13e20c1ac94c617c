// Package stream fans session events out to SSE subscribers.
package stream

import (
	"sync"
	"time"
)

// Event is one item on a session's event stream. The same envelope goes to
// SSE subscribers and to the webhook dispatcher.
type Event struct {
	SessionID string      `json:"session_id"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// subscriberBuffer is how many events a subscriber may fall behind before
// events are dropped for it. A stalled browser must not block the session.
const subscriberBuffer = 64

// Subscriber is one attached event consumer.
type Subscriber struct {
	ch      chan Event
	dropped int
}

// Events returns the subscriber's receive channel. It is closed on
// Unsubscribe and on hub Close.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Hub is a per-session broadcast registry. Publish delivers each event to
// every subscriber in emission order.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

// Subscribe attaches a new consumer. On a closed hub the returned
// subscriber's channel is already closed.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe detaches a consumer and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

// Publish delivers ev to all current subscribers. Delivery happens under the
// hub lock so every subscriber observes events in the order they were
// published. A subscriber whose buffer is full loses the event; the others
// are unaffected.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
		}
	}
}

// SubscriberCount reports attached consumers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close detaches every subscriber and marks the hub dead. Publish and
// Subscribe after Close are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}
