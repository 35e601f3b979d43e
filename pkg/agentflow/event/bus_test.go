package event_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/agentflow/pkg/agentflow/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	var mu sync.Mutex
	var got []event.Event

	sub := bus.Subscribe([]event.Type{event.TypeChunk}, func(evt event.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, evt)
	})
	defer sub.Unsubscribe()

	bus.Publish(event.Event{Type: event.TypeChunk, Chunk: &event.ChunkPayload{Text: "a"}})
	bus.Publish(event.Event{Type: event.TypeDone})
	bus.Publish(event.Event{Type: event.TypeChunk, Chunk: &event.ChunkPayload{Text: "b"}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "a", got[0].Chunk.Text)
	assert.Equal(t, "b", got[1].Chunk.Text)
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	var count atomic.Int32
	sub := bus.SubscribeAll(func(evt event.Event) { count.Add(1) })
	defer sub.Unsubscribe()

	bus.Publish(event.Event{Type: event.TypeChunk})
	bus.Publish(event.Event{Type: event.TypeDone})
	bus.Publish(event.Event{Type: event.TypeNodeStart})

	require.Eventually(t, func() bool {
		return count.Load() == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	var dropped atomic.Int32
	bus := event.NewBus(event.BusConfig{
		BufferSize: 1,
		OnDrop:     func(event.Event, string) { dropped.Add(1) },
	})
	defer bus.Close()

	blocked := make(chan struct{})
	sub := bus.SubscribeAll(func(evt event.Event) { <-blocked })
	defer sub.Unsubscribe()

	// With the handler wedged and a buffer of one, the publisher must keep
	// going and the surplus must be dropped rather than queued.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			bus.Publish(event.Event{Type: event.TypeChunk})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	close(blocked)

	assert.Positive(t, dropped.Load())
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	var count atomic.Int32
	sub := bus.SubscribeAll(func(evt event.Event) { count.Add(1) })

	bus.Publish(event.Event{Type: event.TypeChunk})
	require.Eventually(t, func() bool {
		return count.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	sub.Unsubscribe()
	bus.Publish(event.Event{Type: event.TypeChunk})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	sub := bus.SubscribeAll(func(event.Event) {})
	_ = sub

	bus.Close()
	bus.Close()

	// Publishing after close must not panic.
	bus.Publish(event.Event{Type: event.TypeDone})
}
