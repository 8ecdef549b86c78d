package correlation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TimeoutManager is the lightweight setTimeout/clearTimeout wrapper the ask
// pattern is built on. It is backed by the host clock via time.AfterFunc;
// a cleared timeout is guaranteed never to fire.
type TimeoutManager struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	cleared map[string]bool
}

// NewTimeoutManager constructs an empty TimeoutManager.
func NewTimeoutManager() *TimeoutManager {
	return &TimeoutManager{
		timers:  make(map[string]*time.Timer),
		cleared: make(map[string]bool),
	}
}

// SetTimeout schedules cb to run after d, unless cleared first. Callers
// that need the callback to run in an actor's identity context wrap cb
// with identity.RunInContext themselves before passing it in, so this
// package stays agnostic of the identity package.
func (tm *TimeoutManager) SetTimeout(cb func(), d time.Duration) string {
	id := uuid.NewString()

	tm.mu.Lock()
	timer := time.AfterFunc(d, func() {
		tm.mu.Lock()
		cleared := tm.cleared[id]
		delete(tm.timers, id)
		delete(tm.cleared, id)
		tm.mu.Unlock()

		if !cleared {
			cb()
		}
	})
	tm.timers[id] = timer
	tm.mu.Unlock()

	return id
}

// ClearTimeout cancels a previously scheduled callback. A timer whose fire
// is already in flight cannot be un-fired; the cleared flag makes its
// callback a no-op instead, so a cleared timeout never runs.
func (tm *TimeoutManager) ClearTimeout(id string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	timer, ok := tm.timers[id]
	if !ok {
		return
	}
	delete(tm.timers, id)
	if !timer.Stop() {
		// The fire raced us; its callback checks this flag under tm.mu
		// before running cb, and removes the entry either way.
		tm.cleared[id] = true
	}
}

// Shutdown stops every outstanding timer; used when the owning manager is
// torn down.
func (tm *TimeoutManager) Shutdown() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for id, timer := range tm.timers {
		timer.Stop()
		tm.cleared[id] = true
	}
	tm.timers = make(map[string]*time.Timer)
}
