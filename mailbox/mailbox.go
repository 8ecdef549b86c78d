// Package mailbox implements the bounded FIFO queue every actor owns: any
// number of producers, exactly one consumer, strict send-order delivery,
// and a configurable overflow policy.
//
// A plain Go channel can express the fail and dropNewest policies via a
// non-blocking select, but dropOldest requires evicting an element already
// sitting in the buffer, something a channel cannot do. So the mailbox is
// a mutex-guarded queue with a signal channel the consumer waits on.
package mailbox

import (
	"context"
	"time"

	"go.fergus.london/actorkit/address"
)

// OverflowPolicy controls what Enqueue does when the mailbox is at
// capacity.
type OverflowPolicy int

const (
	// Fail rejects the new message, leaving the mailbox unchanged.
	Fail OverflowPolicy = iota
	// DropNewest rejects the new message (alias of Fail, named for
	// symmetry with DropOldest and to make call-site intent explicit).
	DropNewest
	// DropOldest evicts the head of the queue to make room for the new
	// message.
	DropOldest
)

func (p OverflowPolicy) String() string {
	switch p {
	case Fail:
		return "fail"
	case DropNewest:
		return "dropNewest"
	case DropOldest:
		return "dropOldest"
	default:
		return "unknown"
	}
}

// Envelope wraps a message with its delivery metadata.
type Envelope struct {
	Message       any
	SenderAddress *address.Address
	CorrelationID string
	ReplyTo       *address.Address
	Timestamp     time.Time
}

// EnqueueResult reports the outcome of Enqueue.
type EnqueueResult int

const (
	Accepted EnqueueResult = iota
	Rejected
)

func (r EnqueueResult) String() string {
	if r == Accepted {
		return "accepted"
	}
	return "rejected"
}

// Mailbox is a bounded, single-consumer FIFO of envelopes. Capacity 0 means
// unbounded, the single-node default.
type Mailbox struct {
	capacity int
	policy   OverflowPolicy

	mu     chan struct{} // binary semaphore; buffered channel used as a mutex
	queue  []Envelope
	signal chan struct{} // non-empty notification, best-effort (len 1)
	closed bool

	// inFlight marks an envelope handed to the consumer by Dequeue and not
	// yet acknowledged via Done. Size counts it, so flush logic can't
	// mistake "being handled" for "empty".
	inFlight bool

	dropped int
}

// New constructs a Mailbox. capacity <= 0 means unbounded.
func New(capacity int, policy OverflowPolicy) *Mailbox {
	m := &Mailbox{
		capacity: capacity,
		policy:   policy,
		mu:       make(chan struct{}, 1),
		signal:   make(chan struct{}, 1),
	}
	m.mu <- struct{}{}
	return m
}

func (m *Mailbox) lock()   { <-m.mu }
func (m *Mailbox) unlock() { m.mu <- struct{}{} }

func (m *Mailbox) notify() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// Enqueue adds an envelope per the mailbox's overflow policy.
func (m *Mailbox) Enqueue(e Envelope) EnqueueResult {
	m.lock()
	defer m.unlock()

	if m.closed {
		return Rejected
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	if m.capacity > 0 && len(m.queue) >= m.capacity {
		switch m.policy {
		case DropOldest:
			m.queue = append(m.queue[1:], e)
			m.dropped++
			m.notify()
			return Accepted
		default: // Fail, DropNewest
			m.dropped++
			return Rejected
		}
	}

	m.queue = append(m.queue, e)
	m.notify()
	return Accepted
}

// Dequeue blocks until an envelope is available, the mailbox closes, or ctx
// is cancelled.
func (m *Mailbox) Dequeue(ctx context.Context) (Envelope, bool) {
	for {
		m.lock()
		if len(m.queue) > 0 {
			e := m.queue[0]
			m.queue = m.queue[1:]
			m.inFlight = true
			m.unlock()
			return e, true
		}
		closed := m.closed
		m.unlock()
		if closed {
			return Envelope{}, false
		}

		select {
		case <-m.signal:
		case <-ctx.Done():
			return Envelope{}, false
		}
	}
}

// TryDequeue is a non-blocking Dequeue, used by flush/drain logic.
func (m *Mailbox) TryDequeue() (Envelope, bool) {
	m.lock()
	defer m.unlock()
	if len(m.queue) == 0 {
		return Envelope{}, false
	}
	e := m.queue[0]
	m.queue = m.queue[1:]
	return e, true
}

// Done acknowledges the envelope most recently returned by Dequeue as
// fully processed. The single-consumer invariant means at most one
// envelope is ever in flight.
func (m *Mailbox) Done() {
	m.lock()
	defer m.unlock()
	m.inFlight = false
}

// Size returns the number of envelopes currently queued, counting one
// dequeued-but-not-yet-Done envelope.
func (m *Mailbox) Size() int {
	m.lock()
	defer m.unlock()
	n := len(m.queue)
	if m.inFlight {
		n++
	}
	return n
}

// Clear discards all queued envelopes.
func (m *Mailbox) Clear() {
	m.lock()
	defer m.unlock()
	m.queue = nil
}

// Dropped returns the number of envelopes dropped by the overflow policy
// since construction.
func (m *Mailbox) Dropped() int {
	m.lock()
	defer m.unlock()
	return m.dropped
}

// Close marks the mailbox closed; subsequent Enqueue calls are rejected.
// Already-queued envelopes remain available to Dequeue/TryDequeue until
// drained, letting the caller choose between draining and discarding per
// its stop policy.
func (m *Mailbox) Close() {
	m.lock()
	defer m.unlock()
	m.closed = true
	m.notify()
}

// Closed reports whether the mailbox has been closed.
func (m *Mailbox) Closed() bool {
	m.lock()
	defer m.unlock()
	return m.closed
}
