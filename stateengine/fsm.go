package stateengine

import (
	"context"
	"sync"

	"github.com/looplab/fsm"

	"go.fergus.london/actorkit/logger"
)

// FSM adapts github.com/looplab/fsm to the Engine interface.
type FSM struct {
	machine *fsm.FSM

	mu   sync.Mutex
	subs []func(Snapshot)
}

// NewFSM builds an Engine whose transition table is events, starting in
// initial. Every accepted transition notifies Subscribe'd listeners with
// the resulting Snapshot.
func NewFSM(initial string, events []fsm.EventDesc) *FSM {
	f := &FSM{}
	f.machine = fsm.NewFSM(initial, events, fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			f.notify(Snapshot{
				State: e.Dst,
				Meta:  map[string]any{"event": e.Event, "from": e.Src},
			})
		},
	})
	return f
}

// Send triggers an FSM event. args are passed through to looplab/fsm's
// event callbacks unchanged.
func (f *FSM) Send(event string, args ...any) error {
	err := f.machine.Event(context.Background(), event, args...)
	if err != nil {
		logger.Current().Debug("state engine rejected event", "event", event, "error", err)
	}
	return err
}

// Subscribe registers listener for post-transition snapshots.
func (f *FSM) Subscribe(listener func(Snapshot)) func() {
	f.mu.Lock()
	idx := len(f.subs)
	f.subs = append(f.subs, listener)
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.subs[idx] = nil
		})
	}
}

// GetSnapshot returns the FSM's current state with no additional metadata.
func (f *FSM) GetSnapshot() Snapshot {
	return Snapshot{State: f.machine.Current()}
}

func (f *FSM) notify(snap Snapshot) {
	f.mu.Lock()
	listeners := make([]func(Snapshot), len(f.subs))
	copy(listeners, f.subs)
	f.mu.Unlock()

	for _, l := range listeners {
		if l != nil {
			l(snap)
		}
	}
}
