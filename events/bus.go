// Package events provides a lightweight pub/sub event bus for engine
// observability. Metrics exporters and trace listeners subscribe to it; the
// engine publishes through an Emitter.
package events

import "sync"

// Listener is a function that handles events.
type Listener func(*Event)

// Bus distributes events to listeners. Delivery is synchronous in
// subscription order by default, which keeps event ordering deterministic
// for single-session use; pass Async to decouple slow listeners.
type Bus struct {
	mu              sync.RWMutex
	async           bool
	nextID          int
	listeners       map[EventType][]subscription
	globalListeners []subscription
}

// subscription pairs a listener with a handle for removal.
type subscription struct {
	id int
	fn Listener
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// Async makes Publish dispatch on a separate goroutine per event instead of
// synchronously. Listeners must then tolerate out-of-order delivery.
func Async() BusOption {
	return func(b *Bus) { b.async = true }
}

// NewBus creates a new event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{listeners: make(map[EventType][]subscription)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a listener for a specific event type. The returned
// function removes the listener; calling it more than once is harmless.
func (b *Bus) Subscribe(eventType EventType, listener Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.listeners[eventType] = append(b.listeners[eventType], subscription{id: id, fn: listener})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.listeners[eventType] = dropSubscription(b.listeners[eventType], id)
	}
}

// SubscribeAll registers a listener for all event types. The returned
// function removes the listener.
func (b *Bus) SubscribeAll(listener Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.globalListeners = append(b.globalListeners, subscription{id: id, fn: listener})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.globalListeners = dropSubscription(b.globalListeners, id)
	}
}

// Publish sends an event to all registered listeners. A panicking listener
// never takes the session down with it.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	typeListeners := make([]subscription, len(b.listeners[event.Type]))
	copy(typeListeners, b.listeners[event.Type])

	globalListeners := make([]subscription, len(b.globalListeners))
	copy(globalListeners, b.globalListeners)
	async := b.async
	b.mu.RUnlock()

	dispatch := func() {
		for _, sub := range typeListeners {
			safeInvoke(sub.fn, event)
		}
		for _, sub := range globalListeners {
			safeInvoke(sub.fn, event)
		}
	}

	if async {
		go dispatch()
		return
	}
	dispatch()
}

// Clear removes all listeners (primarily for tests).
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = make(map[EventType][]subscription)
	b.globalListeners = nil
}

// dropSubscription removes the subscription with the given id, preserving
// registration order.
func dropSubscription(subs []subscription, id int) []subscription {
	for i, sub := range subs {
		if sub.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

func safeInvoke(listener Listener, event *Event) {
	defer func() { _ = recover() }()
	listener(event)
}
