// Package identity implements the per-message actor context: the value
// that makes "who am I" available to library code running inside a
// handler, including after a suspension point, and invisible to code
// running in any other actor.
//
// Go has no native continuation-local storage comparable to a fiber-local
// in other runtimes; context.Context threaded explicitly through every call
// is the idiomatic mechanism the ecosystem already uses for exactly this
// shape of problem (cancellation, deadlines, request-scoped values), so that
// is what carries the identity context here. See DESIGN.md for the
// alternative considered and rejected.
package identity

import (
	"context"
	"sync/atomic"
	"time"
)

// MaxDepth is the default nesting limit before debug-mode validation emits
// a warning rather than silently accepting ever-deeper contexts.
const MaxDepth = 10

// Context is the value carried alongside a single message dispatch.
type Context struct {
	ActorID       string
	CorrelationID string
	RequestID     string
	Depth         int
	CreatedAt     time.Time
}

type ctxKeyType struct{}

var ctxKey ctxKeyType

var counter uint64

// New builds a root identity context (Depth 0) for actorID.
func New(actorID string) Context {
	atomic.AddUint64(&counter, 1)
	return Context{ActorID: actorID, CreatedAt: time.Now()}
}

// RunInContext calls fn with a derived context.Context such that
// Current(ctx) returns ic everywhere inside fn's call graph, including continuations reached after
// an await/suspension point, as long as those continuations keep passing
// that context.Context forward, which is the explicit-propagation
// contract this package requires of callers.
//
// Nesting: calling RunInContext again with a context derived from one
// already carrying an identity increments Depth, so Current always returns
// the innermost identity.
func RunInContext(parent context.Context, ic Context, fn func(ctx context.Context)) {
	if existing, ok := FromContext(parent); ok {
		ic.Depth = existing.Depth + 1
	}
	if ic.CreatedAt.IsZero() {
		ic.CreatedAt = time.Now()
	}
	atomic.AddUint64(&counter, 1)
	fn(context.WithValue(parent, ctxKey, ic))
}

// WithContext is the non-callback form of RunInContext, for call sites that
// need to thread the derived context onward themselves (e.g. across an ask
// boundary) rather than invoking a closure immediately.
func WithContext(parent context.Context, ic Context) context.Context {
	if existing, ok := FromContext(parent); ok {
		ic.Depth = existing.Depth + 1
	}
	if ic.CreatedAt.IsZero() {
		ic.CreatedAt = time.Now()
	}
	atomic.AddUint64(&counter, 1)
	return context.WithValue(parent, ctxKey, ic)
}

// FromContext returns the innermost identity Context carried by ctx, if
// any.
func FromContext(ctx context.Context) (Context, bool) {
	ic, ok := ctx.Value(ctxKey).(Context)
	return ic, ok
}

// Current returns the innermost identity Context, or the zero value if
// ctx carries none.
func Current(ctx context.Context) Context {
	ic, _ := FromContext(ctx)
	return ic
}

// HasActive reports whether ctx carries an identity context.
func HasActive(ctx context.Context) bool {
	_, ok := FromContext(ctx)
	return ok
}

// Validate checks the debug-mode invariants: ActorID non-empty, Depth
// within maxDepth (0 uses MaxDepth). It never blocks dispatch; callers log
// the returned error as a warning.
func Validate(ic Context, maxDepth int) error {
	if maxDepth <= 0 {
		maxDepth = MaxDepth
	}
	if ic.ActorID == "" {
		return errEmptyActorID
	}
	if ic.Depth > maxDepth {
		return &depthExceededError{depth: ic.Depth, max: maxDepth}
	}
	return nil
}

// Diagnostics summarizes the active identity context for debugging.
type Diagnostics struct {
	HasActive bool
	ActorID   string
	Depth     int
	Age       time.Duration
	Counter   uint64
}

// Diagnose produces a Diagnostics snapshot for ctx.
func Diagnose(ctx context.Context) Diagnostics {
	ic, ok := FromContext(ctx)
	if !ok {
		return Diagnostics{Counter: atomic.LoadUint64(&counter)}
	}
	return Diagnostics{
		HasActive: true,
		ActorID:   ic.ActorID,
		Depth:     ic.Depth,
		Age:       time.Since(ic.CreatedAt),
		Counter:   atomic.LoadUint64(&counter),
	}
}
