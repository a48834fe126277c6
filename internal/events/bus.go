package events

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/bebewat/wrecksshop-main/internal/util"
)

// Handler processes a published event. Handlers run on their own goroutine
// and must not block indefinitely.
type Handler func(Event)

// EventBus is a simple publish/subscribe broker. Subscribers are invoked
// asynchronously; a panicking handler is recovered and logged without
// affecting other subscribers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Handler
	logger      zerolog.Logger
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Handler),
		logger:      util.ComponentLogger("events"),
	}
}

// Subscribe registers a handler for the given event type.
func (b *EventBus) Subscribe(t EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], h)
}

// Publish delivers the event to all subscribers of its type. Each handler
// runs on its own goroutine so slow consumers never stall the publisher.
func (b *EventBus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.subscribers[ev.Type]))
	copy(handlers, b.subscribers[ev.Type])
	b.mu.RUnlock()

	for _, h := range handlers {
		go b.dispatch(h, ev)
	}
}

func (b *EventBus) dispatch(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("event", string(ev.Type)).
				Interface("panic", r).
				Msg("Event handler panicked")
		}
	}()
	h(ev)
}

// SubscriberCount reports how many handlers are registered for a type.
// Used by the monitor API.
func (b *EventBus) SubscriberCount(t EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[t])
}
