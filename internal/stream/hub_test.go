package stream

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func event(typ string) Event {
	return Event{SessionID: "s1", Type: typ, Timestamp: time.Now()}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := NewHub()
	defer h.Close()

	a := h.Subscribe()
	b := h.Subscribe()
	require.Equal(t, 2, h.SubscriberCount())

	h.Publish(event("message"))

	for _, sub := range []*Subscriber{a, b} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, "message", ev.Type)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestEmissionOrderPreserved(t *testing.T) {
	h := NewHub()
	defer h.Close()

	sub := h.Subscribe()
	const n = 50
	for i := 0; i < n; i++ {
		h.Publish(event(fmt.Sprintf("ev-%d", i)))
	}

	for i := 0; i < n; i++ {
		ev := <-sub.Events()
		assert.Equal(t, fmt.Sprintf("ev-%d", i), ev.Type)
	}
}

func TestSlowSubscriberDropsWithoutBlocking(t *testing.T) {
	h := NewHub()
	defer h.Close()

	slow := h.Subscribe()
	fast := h.Subscribe()

	// Overflow the slow subscriber's buffer while nobody reads it. The fast
	// subscriber is drained in lockstep and must see every event.
	total := subscriberBuffer + 10
	received := 0
	for i := 0; i < total; i++ {
		h.Publish(event(fmt.Sprintf("ev-%d", i)))
		select {
		case <-fast.Events():
			received++
		case <-time.After(time.Second):
			t.Fatal("publisher blocked or dropped for a subscriber with buffer room")
		}
	}
	assert.Equal(t, total, received, "fast subscriber should see everything")
	assert.Len(t, slow.Events(), subscriberBuffer, "slow subscriber keeps only its buffer")
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	defer h.Close()

	sub := h.Subscribe()
	h.Unsubscribe(sub)

	_, open := <-sub.Events()
	assert.False(t, open)
	assert.Equal(t, 0, h.SubscriberCount())

	// Double unsubscribe must not panic.
	h.Unsubscribe(sub)
}

func TestCloseIsTerminal(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()

	h.Close()
	h.Close()

	_, open := <-sub.Events()
	assert.False(t, open)

	h.Publish(event("late"))

	late := h.Subscribe()
	_, open = <-late.Events()
	assert.False(t, open, "subscribe after close yields a closed channel")
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	h := NewHub()
	defer h.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := h.Subscribe()
			for range sub.Events() {
			}
		}()
	}

	for i := 0; i < 100; i++ {
		h.Publish(event("message"))
	}
	h.Close()
	wg.Wait()
}
