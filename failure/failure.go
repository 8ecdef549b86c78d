// Package failure defines actorkit's error kinds: not a single error type,
// but a closed set of structured kinds callers can match with errors.As,
// each carrying the fields the failure is diagnosed by.
package failure

import (
	"errors"
	"fmt"
	"time"
)

// ActorStopped reports an operation attempted against an actor that is no
// longer running.
type ActorStopped struct {
	Path string
}

func (e *ActorStopped) Error() string {
	return fmt.Sprintf("actorkit: actor stopped: %s", e.Path)
}

// AskTimeout reports an ask that did not receive a reply within its
// configured timeout.
type AskTimeout struct {
	ActorPath     string
	MessageType   string
	Timeout       time.Duration
	CorrelationID string
}

func (e *AskTimeout) Error() string {
	return fmt.Sprintf("actorkit: ask timeout after %s: %s (correlation=%s, message=%s)",
		e.Timeout, e.ActorPath, e.CorrelationID, e.MessageType)
}

// MailboxRejected reports an enqueue refused by the mailbox's overflow
// policy.
type MailboxRejected struct {
	Path   string
	Policy string
}

func (e *MailboxRejected) Error() string {
	return fmt.Sprintf("actorkit: mailbox rejected enqueue (%s policy): %s", e.Policy, e.Path)
}

// HandlerFailure wraps a panic or error recovered from onMessage before it
// is routed to the actor's supervisor.
type HandlerFailure struct {
	Path  string
	Cause error
}

func (e *HandlerFailure) Error() string {
	return fmt.Sprintf("actorkit: handler failure in %s: %v", e.Path, e.Cause)
}

func (e *HandlerFailure) Unwrap() error { return e.Cause }

// InvalidPlan reports an ill-shaped message-plan instruction seen by the
// interpreter. It is counted, not fatal; other instructions still run.
type InvalidPlan struct {
	Reason string
}

func (e *InvalidPlan) Error() string {
	return fmt.Sprintf("actorkit: invalid message plan: %s", e.Reason)
}

// ContextCorruption reports an identity-context invariant violation,
// surfaced only in debug mode.
type ContextCorruption struct {
	Reason string
}

func (e *ContextCorruption) Error() string {
	return fmt.Sprintf("actorkit: identity context corrupted: %s", e.Reason)
}

// Unroutable reports a reply that arrived with no matching correlation; it
// is dead-lettered rather than returned to any caller.
type Unroutable struct {
	CorrelationID string
}

func (e *Unroutable) Error() string {
	return fmt.Sprintf("actorkit: unroutable reply for correlation %s", e.CorrelationID)
}

// Is allows errors.Is(err, failure.ErrActorStopped) style checks against the
// kind rather than the full struct value.
var (
	ErrActorStopped      = &ActorStopped{}
	ErrAskTimeout        = &AskTimeout{}
	ErrMailboxRejected   = &MailboxRejected{}
	ErrHandlerFailure    = &HandlerFailure{}
	ErrInvalidPlan       = &InvalidPlan{}
	ErrContextCorruption = &ContextCorruption{}
	ErrUnroutable        = &Unroutable{}
)

func (e *ActorStopped) Is(target error) bool      { _, ok := target.(*ActorStopped); return ok }
func (e *AskTimeout) Is(target error) bool        { _, ok := target.(*AskTimeout); return ok }
func (e *MailboxRejected) Is(target error) bool   { _, ok := target.(*MailboxRejected); return ok }
func (e *HandlerFailure) Is(target error) bool    { _, ok := target.(*HandlerFailure); return ok }
func (e *InvalidPlan) Is(target error) bool       { _, ok := target.(*InvalidPlan); return ok }
func (e *ContextCorruption) Is(target error) bool { _, ok := target.(*ContextCorruption); return ok }
func (e *Unroutable) Is(target error) bool        { _, ok := target.(*Unroutable); return ok }

// As is a small convenience wrapper over errors.As for the common
// single-target case, avoiding repetitive boilerplate at call sites.
func As[T error](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}
