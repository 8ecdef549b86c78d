// Package eventbus implements the per-actor event bus: synchronous
// broadcast to subscribers, insertion-ordered listeners, and a destroy that
// makes the bus permanently inert.
package eventbus

import (
	"sync"

	"go.fergus.london/actorkit/logger"
)

// Event is an emitted domain event; Type discriminates it for filtered
// subscriptions elsewhere (registry package).
type Event struct {
	Type    string
	Payload any
}

// Listener receives emitted events.
type Listener func(Event)

// Unsubscribe removes a previously registered listener. Calling it more
// than once is a no-op.
type Unsubscribe func()

type subscription struct {
	id       uint64
	listener Listener
}

// Bus is a single actor's event bus.
type Bus struct {
	mu        sync.Mutex
	subs      []subscription
	nextID    uint64
	destroyed bool
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers listener and returns a function to remove it.
// Listeners are kept in insertion order.
func (b *Bus) Subscribe(listener Listener) Unsubscribe {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, listener: listener})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Emit broadcasts event to every subscriber synchronously, in subscription
// order. A panicking listener is recovered, logged, and does not prevent
// subsequent listeners from running.
func (b *Bus) Emit(event Event) {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		logger.Current().Warn("emit on destroyed event bus", "eventType", event.Type)
		return
	}
	listeners := make([]Listener, len(b.subs))
	for i, s := range b.subs {
		listeners[i] = s.listener
	}
	b.mu.Unlock()

	for _, l := range listeners {
		invokeSafely(l, event)
	}
}

func invokeSafely(l Listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Current().Error("event bus listener panicked", "eventType", event.Type, "recover", r)
		}
	}()
	l(event)
}

// Destroy clears all subscribers; subsequent Emit calls are no-ops (logged)
// and subsequent Subscribe calls return a no-op unsubscribe.
func (b *Bus) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
	b.destroyed = true
}

// SubscriberCount returns the number of currently active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
