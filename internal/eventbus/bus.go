package eventbus

import (
	"context"
	"errors"
	"sync"
)

// Event is anything that can be routed by name on the bus.
type Event interface {
	EventName() string
}

// Handler handles a published event.
type Handler func(ctx context.Context, event Event) error

// Bus delivers events to subscribed handlers.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}

// ErrNilEvent is returned when a nil event is published.
var ErrNilEvent = errors.New("eventbus: nil event")

// ErrUnnamedEvent is returned when an event reports an empty name.
var ErrUnnamedEvent = errors.New("eventbus: unnamed event")

// InMemoryBus is a minimal in-process event bus. Handlers run synchronously
// on the publisher's goroutine, in subscription order.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewInMemoryBus constructs a new in-memory bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{handlers: make(map[string][]Handler)}
}

// Publish dispatches an event to all handlers registered for its name.
// Every handler runs even when an earlier one fails; the first error is
// returned so the caller can decide whether delivery failures matter.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) error {
	if event == nil {
		return ErrNilEvent
	}
	name := event.EventName()
	if name == "" {
		return ErrUnnamedEvent
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[name]...)
	b.mu.RUnlock()

	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Subscribe registers a handler for an event name.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	if eventName == "" || handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
	b.mu.Unlock()
}
