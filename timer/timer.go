// Package timer implements the pure scheduling state behind the timer
// actor: insertion, cancellation, and time-advance of scheduled messages,
// decoupled from how it is hosted (real-time ticker or a test-mode
// advance message) so it can be driven deterministically in tests.
package timer

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"go.fergus.london/actorkit/address"
)

// ScheduledItem is one pending scheduled delivery.
type ScheduledItem struct {
	ID            string
	Target        address.Address
	Message       any
	ScheduledTime time.Time

	insertionSeq uint64
}

// State is the timer actor's internal state: {currentTime,
// scheduledMessages, nextId, testMode}. It is not safe for concurrent use
// without external synchronization by design; the owning actor's
// single-consumer dispatcher already serializes access, mirroring every
// other actor's state.
type State struct {
	CurrentTime time.Time
	TestMode    bool

	items map[string]*ScheduledItem
	seq   uint64
}

// New constructs a State. If testMode is false, CurrentTime is seeded from
// the host clock; in test mode it starts at the zero time and only moves on
// Advance.
func New(testMode bool) *State {
	s := &State{TestMode: testMode, items: make(map[string]*ScheduledItem)}
	if !testMode {
		s.CurrentTime = time.Now()
	}
	return s
}

// Schedule inserts an item at CurrentTime+delay. In real-time mode,
// CurrentTime is first re-synced to the host clock. A caller-supplied id
// is honored if non-empty; otherwise one is generated.
func (s *State) Schedule(target address.Address, message any, delay time.Duration, id string) *ScheduledItem {
	if !s.TestMode {
		s.CurrentTime = time.Now()
	}
	if id == "" {
		id = uuid.NewString()
	}
	s.seq++
	item := &ScheduledItem{
		ID:            id,
		Target:        target,
		Message:       message,
		ScheduledTime: s.CurrentTime.Add(delay),
		insertionSeq:  s.seq,
	}
	s.items[id] = item
	return item
}

// Cancel removes a scheduled item by id; it is a no-op if the id is
// unknown or already flushed.
func (s *State) Cancel(id string) bool {
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	return true
}

// Advance moves CurrentTime forward by `by` (the test-mode driver; in
// real-time mode due items come from Tick, and Schedule only re-syncs the
// clock without flushing anything) and returns every item whose
// ScheduledTime is now <= CurrentTime, removed from state, ordered by
// ScheduledTime with ties broken by insertion order.
func (s *State) Advance(by time.Duration) []*ScheduledItem {
	s.CurrentTime = s.CurrentTime.Add(by)
	return s.flushDue()
}

// Tick re-syncs CurrentTime to the host clock (real-time mode) and returns
// newly due items, same ordering guarantee as Advance.
func (s *State) Tick() []*ScheduledItem {
	if !s.TestMode {
		s.CurrentTime = time.Now()
	}
	return s.flushDue()
}

func (s *State) flushDue() []*ScheduledItem {
	var due []*ScheduledItem
	for id, item := range s.items {
		if !item.ScheduledTime.After(s.CurrentTime) {
			due = append(due, item)
			delete(s.items, id)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ScheduledTime.Equal(due[j].ScheduledTime) {
			return due[i].insertionSeq < due[j].insertionSeq
		}
		return due[i].ScheduledTime.Before(due[j].ScheduledTime)
	})
	return due
}

// Listing returns every currently pending scheduled item (for GET_SCHEDULED
// asks), ordered by ScheduledTime then insertion order.
func (s *State) Listing() []ScheduledItem {
	out := make([]ScheduledItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledTime.Equal(out[j].ScheduledTime) {
			return out[i].insertionSeq < out[j].insertionSeq
		}
		return out[i].ScheduledTime.Before(out[j].ScheduledTime)
	})
	return out
}
