package event

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// Handler consumes events delivered by the Bus.
type Handler func(evt Event)

// Subscription represents an active subscription on a Bus.
type Subscription interface {
	// Unsubscribe removes the subscription and stops delivery.
	Unsubscribe()
}

// BusConfig configures bus behavior.
type BusConfig struct {
	// BufferSize is the channel buffer per subscription. Default: 256.
	BufferSize int

	// OnDrop is called when a subscriber's buffer is full and an event is
	// dropped. Delivery never blocks the producer.
	OnDrop func(evt Event, subscriberID string)
}

// DefaultBusConfig provides reasonable defaults.
var DefaultBusConfig = BusConfig{BufferSize: 256}

// Bus is an in-memory fan-out distributor for execution events.
//
// Publish is fire-and-forget: each subscriber has a buffered channel drained
// by its own goroutine, and a full buffer drops the event rather than
// blocking the flow. The engine's correctness never depends on consumers.
type Bus struct {
	config BusConfig

	mu            sync.RWMutex
	subscriptions map[string]*subscription
	byType        map[Type]map[string]*subscription
	wildcards     map[string]*subscription

	nextID atomic.Int64
	closed atomic.Bool
}

// NewBus creates a new event bus.
func NewBus(config BusConfig) *Bus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBusConfig.BufferSize
	}
	return &Bus{
		config:        config,
		subscriptions: make(map[string]*subscription),
		byType:        make(map[Type]map[string]*subscription),
		wildcards:     make(map[string]*subscription),
	}
}

type subscription struct {
	id      string
	types   []Type
	handler Handler
	events  chan Event
	done    chan struct{}
	bus     *Bus
	once    sync.Once
}

// Publish delivers an event to all matching subscribers without blocking.
func (b *Bus) Publish(evt Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.wildcards)+4)
	if typed, ok := b.byType[evt.Type]; ok {
		for _, sub := range typed {
			subs = append(subs, sub)
		}
	}
	for _, sub := range b.wildcards {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.events <- evt:
		default:
			if b.config.OnDrop != nil {
				b.config.OnDrop(evt, sub.id)
			}
		}
	}
}

// Subscribe creates a subscription for specific event types.
func (b *Bus) Subscribe(types []Type, handler Handler) Subscription {
	return b.subscribe(types, handler)
}

// SubscribeAll subscribes to every event type.
func (b *Bus) SubscribeAll(handler Handler) Subscription {
	return b.subscribe(nil, handler)
}

func (b *Bus) subscribe(types []Type, handler Handler) *subscription {
	if b.closed.Load() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{
		id:      strconv.FormatInt(b.nextID.Add(1), 10),
		types:   types,
		handler: handler,
		events:  make(chan Event, b.config.BufferSize),
		done:    make(chan struct{}),
		bus:     b,
	}

	b.subscriptions[sub.id] = sub
	if len(types) == 0 {
		b.wildcards[sub.id] = sub
	} else {
		for _, t := range types {
			if b.byType[t] == nil {
				b.byType[t] = make(map[string]*subscription)
			}
			b.byType[t][sub.id] = sub
		}
	}

	go sub.process()
	return sub
}

// Close shuts down the bus and all subscriptions.
func (b *Bus) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subscriptions {
		sub.stop()
	}
	b.subscriptions = make(map[string]*subscription)
	b.byType = make(map[Type]map[string]*subscription)
	b.wildcards = make(map[string]*subscription)
}

func (s *subscription) process() {
	for {
		select {
		case evt := <-s.events:
			s.handler(evt)
		case <-s.done:
			// Drain what is already buffered before exiting.
			for {
				select {
				case evt := <-s.events:
					s.handler(evt)
				default:
					return
				}
			}
		}
	}
}

// Unsubscribe removes the subscription.
func (s *subscription) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.subscriptions, s.id)
	delete(s.bus.wildcards, s.id)
	for _, t := range s.types {
		if typed, ok := s.bus.byType[t]; ok {
			delete(typed, s.id)
		}
	}
	s.bus.mu.Unlock()

	s.stop()
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}
