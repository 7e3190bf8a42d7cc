package bus

import "sync"

// EventBus is an in-process publish/subscribe hub. Handlers run on the
// broadcaster's goroutine; subscribers that need isolation queue
// internally (the gateway client send queue does this).
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[string]EventHandler)}
}

// Subscribe registers a handler under id, replacing any previous one.
func (b *EventBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[id] = handler
}

// Unsubscribe removes the handler registered under id.
func (b *EventBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

// Broadcast delivers the event to every current subscriber.
func (b *EventBus) Broadcast(event Event) {
	b.mu.RLock()
	hs := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		hs = append(hs, h)
	}
	b.mu.RUnlock()
	for _, h := range hs {
		h(event)
	}
}
