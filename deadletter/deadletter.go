// Package deadletter implements the bounded ring-buffer capture of
// undeliverable messages: target stopped, mailbox rejected, or an
// unroutable reply.
package deadletter

import (
	"sync"
	"time"

	"go.fergus.london/actorkit/mailbox"
)

// Letter is one captured undeliverable message.
type Letter struct {
	Envelope mailbox.Envelope
	Reason   string
	At       time.Time
}

// Subscriber observes newly captured letters.
type Subscriber func(Letter)

// Queue is a bounded, append-only ring buffer of dead letters.
type Queue struct {
	mu       sync.Mutex
	capacity int
	items    []Letter
	start    int // index of oldest item, only meaningful once full
	full     bool
	total    uint64 // lifetime count, including overwritten entries

	subs []Subscriber
}

// New constructs a Queue with the given ring capacity. capacity <= 0
// defaults to 1000.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Queue{capacity: capacity}
}

// Capture records a letter, evicting the oldest entry if the ring is full,
// and notifies subscribers.
func (q *Queue) Capture(envelope mailbox.Envelope, reason string) {
	l := Letter{Envelope: envelope, Reason: reason, At: time.Now()}

	q.mu.Lock()
	q.total++
	if len(q.items) < q.capacity {
		q.items = append(q.items, l)
	} else {
		q.items[q.start] = l
		q.start = (q.start + 1) % q.capacity
		q.full = true
	}
	subs := make([]Subscriber, len(q.subs))
	copy(subs, q.subs)
	q.mu.Unlock()

	for _, s := range subs {
		s(l)
	}
}

// Subscribe registers a Subscriber invoked for every subsequently captured
// letter; it does not replay history.
func (q *Queue) Subscribe(s Subscriber) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subs = append(q.subs, s)
}

// Drain returns every currently buffered letter, oldest first, and empties
// the ring.
func (q *Queue) Drain() []Letter {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.orderedLocked()
	q.items = nil
	q.start = 0
	q.full = false
	return out
}

// Snapshot returns every currently buffered letter without draining.
func (q *Queue) Snapshot() []Letter {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.orderedLocked()
}

func (q *Queue) orderedLocked() []Letter {
	if !q.full {
		out := make([]Letter, len(q.items))
		copy(out, q.items)
		return out
	}
	out := make([]Letter, 0, len(q.items))
	out = append(out, q.items[q.start:]...)
	out = append(out, q.items[:q.start]...)
	return out
}

// Count returns the number of letters currently buffered.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// TotalCaptured returns the lifetime count of captured letters, including
// any evicted by ring overflow.
func (q *Queue) TotalCaptured() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.total
}
