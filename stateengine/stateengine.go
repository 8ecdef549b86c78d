// Package stateengine defines the pluggable "state engine" collaborator
// some behaviors delegate message handling to: an opaque component
// exposing Send, Subscribe, and GetSnapshot. actorkit's interpreter
// forwards domain events to it and treats its result as just another
// emitted snapshot; it never reaches into the engine's internals.
package stateengine

// Engine is the collaborator interface the message-plan interpreter talks
// to. Implementations are free to be anything from a hand-written switch
// to a full FSM library; actorkit ships one adapter (FSM, in fsm.go) over
// github.com/looplab/fsm.
type Engine interface {
	// Send feeds a domain event into the engine, returning an error if
	// the event is not valid from the engine's current state.
	Send(event string, args ...any) error
	// Subscribe registers a listener invoked with the engine's snapshot
	// after every accepted transition. It returns an unsubscribe func.
	Subscribe(listener func(snapshot Snapshot)) (unsubscribe func())
	// GetSnapshot returns the engine's current externally-visible state.
	GetSnapshot() Snapshot
}

// Snapshot is the externally visible state of an Engine at a point in
// time: a current state label plus any engine-specific metadata.
type Snapshot struct {
	State string
	Meta  map[string]any
}
