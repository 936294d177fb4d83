package event

import (
	"sync"

	"go.uber.org/zap"
)

// EventHandler handles domain events
type EventHandler interface {
	// Handle processes the event
	Handle(event DomainEvent) error
	// HandledEvents returns the event names this handler handles
	HandledEvents() []string
}

// EventDispatcher dispatches domain events to registered handlers
type EventDispatcher interface {
	// Dispatch sends an event to all registered handlers
	Dispatch(event DomainEvent)
	// Subscribe registers a handler for events
	Subscribe(handler EventHandler)
	// Unsubscribe removes a handler
	Unsubscribe(handler EventHandler)
}

// InMemoryDispatcher is an in-memory implementation of EventDispatcher.
// Synchronous dispatch preserves the per-url ordering of progress events.
type InMemoryDispatcher struct {
	handlers map[string][]EventHandler
	mu       sync.RWMutex
	async    bool
	logger   *zap.Logger
}

// NewInMemoryDispatcher creates a new InMemoryDispatcher
func NewInMemoryDispatcher(async bool, logger *zap.Logger) *InMemoryDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryDispatcher{
		handlers: make(map[string][]EventHandler),
		async:    async,
		logger:   logger,
	}
}

// Dispatch sends an event to all registered handlers
func (d *InMemoryDispatcher) Dispatch(event DomainEvent) {
	d.mu.RLock()
	named := d.handlers[event.EventName()]
	all := d.handlers["*"]
	combined := make([]EventHandler, 0, len(named)+len(all))
	combined = append(combined, named...)
	combined = append(combined, all...)
	d.mu.RUnlock()

	for _, handler := range combined {
		if d.async {
			go d.handle(handler, event)
		} else {
			d.handle(handler, event)
		}
	}
}

func (d *InMemoryDispatcher) handle(h EventHandler, event DomainEvent) {
	if err := h.Handle(event); err != nil {
		d.logger.Warn("event handler failed",
			zap.String("event", event.EventName()),
			zap.Error(err))
	}
}

// Subscribe registers a handler for events
func (d *InMemoryDispatcher) Subscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, eventName := range handler.HandledEvents() {
		d.handlers[eventName] = append(d.handlers[eventName], handler)
	}
}

// Unsubscribe removes a handler
func (d *InMemoryDispatcher) Unsubscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, eventName := range handler.HandledEvents() {
		handlers := d.handlers[eventName]
		for i, h := range handlers {
			if h == handler {
				d.handlers[eventName] = append(handlers[:i:i], handlers[i+1:]...)
				break
			}
		}
	}
}

// NullDispatcher is a no-op dispatcher for when events are not needed
type NullDispatcher struct{}

// NewNullDispatcher creates a new NullDispatcher
func NewNullDispatcher() *NullDispatcher {
	return &NullDispatcher{}
}

// Dispatch does nothing
func (d *NullDispatcher) Dispatch(event DomainEvent) {}

// Subscribe does nothing
func (d *NullDispatcher) Subscribe(handler EventHandler) {}

// Unsubscribe does nothing
func (d *NullDispatcher) Unsubscribe(handler EventHandler) {}
