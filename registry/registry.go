// Package registry implements the process-wide auto-publish registry:
// which actors publish which event types, and who listens, keyed by
// logical actor id so a supervisor-driven restart never drops a
// subscription.
package registry

import (
	"sync"

	"go.fergus.london/actorkit/eventbus"
)

// Subscriber is a registered listener for a publisher's events, optionally
// filtered to a set of event types. An empty Filter matches every event.
type Subscriber struct {
	ID      string
	Filter  map[string]struct{}
	Deliver func(eventbus.Event)
}

type publisherEntry struct {
	eventTypes  map[string]struct{}
	subscribers map[string]*Subscriber
}

// Registry is the process-wide publisher/subscriber index. The zero value
// is not usable; construct with New.
type Registry struct {
	mu         sync.RWMutex
	publishers map[string]*publisherEntry
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{publishers: make(map[string]*publisherEntry)}
}

// RegisterPublisher lazily registers publisherID as a source of the given
// event types. Calling it again with a new type set merges rather than
// replaces, so existing subscriptions (and the entry itself) survive a
// restart of the same logical actor.
func (r *Registry) RegisterPublisher(publisherID string, eventTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.publishers[publisherID]
	if !ok {
		entry = &publisherEntry{
			eventTypes:  make(map[string]struct{}),
			subscribers: make(map[string]*Subscriber),
		}
		r.publishers[publisherID] = entry
	}
	for _, t := range eventTypes {
		entry.eventTypes[t] = struct{}{}
	}
}

// Subscribe registers subscriberID against publisherID's events, optionally
// filtered to specific event types (nil/empty means all). It implicitly
// registers the publisher if this is the first anyone has heard of it.
func (r *Registry) Subscribe(publisherID, subscriberID string, filter []string, deliver func(eventbus.Event)) func() {
	r.mu.Lock()
	entry, ok := r.publishers[publisherID]
	if !ok {
		entry = &publisherEntry{
			eventTypes:  make(map[string]struct{}),
			subscribers: make(map[string]*Subscriber),
		}
		r.publishers[publisherID] = entry
	}

	var filterSet map[string]struct{}
	if len(filter) > 0 {
		filterSet = make(map[string]struct{}, len(filter))
		for _, f := range filter {
			filterSet[f] = struct{}{}
		}
	}
	entry.subscribers[subscriberID] = &Subscriber{ID: subscriberID, Filter: filterSet, Deliver: deliver}
	r.mu.Unlock()

	return func() { r.Unsubscribe(publisherID, subscriberID) }
}

// Unsubscribe removes subscriberID from publisherID's subscriber set.
func (r *Registry) Unsubscribe(publisherID, subscriberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.publishers[publisherID]; ok {
		delete(entry.subscribers, subscriberID)
	}
}

// Route delivers event to every subscriber of publisherID whose filter
// matches (or has none), returning the number of deliveries attempted.
func (r *Registry) Route(publisherID string, event eventbus.Event) int {
	r.mu.RLock()
	entry, ok := r.publishers[publisherID]
	if !ok {
		r.mu.RUnlock()
		return 0
	}
	targets := make([]*Subscriber, 0, len(entry.subscribers))
	for _, s := range entry.subscribers {
		if s.Filter == nil {
			targets = append(targets, s)
			continue
		}
		if _, matches := s.Filter[event.Type]; matches {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range targets {
		s.Deliver(event)
	}
	return len(targets)
}

// SubscriberCount reports how many subscribers publisherID currently has.
func (r *Registry) SubscriberCount(publisherID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.publishers[publisherID]
	if !ok {
		return 0
	}
	return len(entry.subscribers)
}

// IsPublisher reports whether publisherID has ever been registered (either
// directly or implicitly via a subscription).
func (r *Registry) IsPublisher(publisherID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.publishers[publisherID]
	return ok
}
