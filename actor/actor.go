// Package actor implements the actor lifecycle and mailbox scheduler: a
// recover-wrapped dispatcher goroutine, run as a supervised func(ctx)
// error, that installs the actor's identity context per message, feeds the
// handler's return value to the message-plan interpreter, and surfaces
// handler failures to the owning supervisor for a policy-driven restart.
package actor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.fergus.london/actorkit/address"
	"go.fergus.london/actorkit/eventbus"
	"go.fergus.london/actorkit/failure"
	"go.fergus.london/actorkit/identity"
	"go.fergus.london/actorkit/logger"
	"go.fergus.london/actorkit/mailbox"
	"go.fergus.london/actorkit/plan"
	"go.fergus.london/actorkit/stateengine"
	"go.fergus.london/actorkit/supervisor"
)

// Status is an actor's lifecycle state. Transitions are monotonic except
// for the supervisor-driven error -> starting restart.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// Host is the set of system-level operations a running actor needs from
// its owning facade: routing a tell/ask to another address, fanning an
// emitted event out through the auto-publish registry, and being told
// when this actor has fully stopped so correlations and directory entries
// addressed to it can be cleaned up. The system package implements Host;
// actor never imports system, avoiding a cycle.
type Host interface {
	Tell(ctx context.Context, to address.Address, msg any) error
	Ask(ctx context.Context, to address.Address, msg any, timeout time.Duration) (any, error)
	RouteReply(correlationID string, reply any) error
	Emit(publisherID string, evt eventbus.Event)
	DeadLetter(envelope mailbox.Envelope, reason string)
	NotifyStopped(addr address.Address)
	StopActor(addr address.Address) error
	Subscribe(addr address.Address, listener func(eventbus.Event)) (eventbus.Unsubscribe, error)
	Snapshot(addr address.Address) (any, error)
}

// Ref is the immutable handle exposed to user and handler code: it
// carries the address but never the mailbox or live state. Operations on
// a Ref to a stopped actor fail with ActorStopped, reported by the Host.
type Ref struct {
	addr address.Address
	host Host
}

// NewRef builds a Ref over addr routed through host.
func NewRef(addr address.Address, host Host) Ref { return Ref{addr: addr, host: host} }

func (r Ref) Address() address.Address { return r.addr }
func (r Ref) IsZero() bool             { return r.addr.IsZero() }

// Tell sends msg fire-and-forget.
func (r Ref) Tell(ctx context.Context, msg any) error {
	return r.host.Tell(ctx, r.addr, msg)
}

// Ask sends msg and blocks for a correlated reply or timeout.
func (r Ref) Ask(ctx context.Context, msg any, timeout time.Duration) (any, error) {
	return r.host.Ask(ctx, r.addr, msg, timeout)
}

// Stop requests that the actor behind this Ref stop. Idempotent: stopping
// an already-stopped actor is a no-op.
func (r Ref) Stop() error { return r.host.StopActor(r.addr) }

// Subscribe registers listener on this actor's event bus, returning an
// Unsubscribe that is safe to call more than once.
func (r Ref) Subscribe(listener func(eventbus.Event)) (eventbus.Unsubscribe, error) {
	return r.host.Subscribe(r.addr, listener)
}

// GetSnapshot returns the actor's current OTP-style context value.
func (r Ref) GetSnapshot() (any, error) { return r.host.Snapshot(r.addr) }

// Behavior is the immutable description of how an actor reacts.
// OnMessage is a pure function of (message, self, context) that returns a
// message plan: nil, a plan.Instruction, or a []plan.Instruction.
type Behavior struct {
	OnStart   func(ctx context.Context, self Ref) error
	OnMessage func(ctx context.Context, self Ref, msg any) any
	OnStop    func(ctx context.Context, self Ref)

	InitialContext any
	StateEngine    stateengine.Engine

	MailboxCapacity      int
	MailboxPolicy        mailbox.OverflowPolicy
	DiscardPendingOnStop bool
}

type childEntry struct {
	instance *Instance
	sup      *supervisor.Supervisor
}

// Instance is the internal, live record behind a Ref: address, behavior,
// mailbox, dispatcher, status, and its place in the supervision/hierarchy
// tree.
type Instance struct {
	addr     address.Address
	behavior Behavior
	host     Host
	box      *mailbox.Mailbox
	bus      *eventbus.Bus

	mu           sync.RWMutex
	status       Status
	actorContext any

	parent            *Instance
	childrenMu        sync.RWMutex
	children          map[string]*childEntry
	depth             int
	maxHierarchyDepth int

	childBaseCtx    context.Context
	childBaseCancel context.CancelFunc
	stopFn          func()

	started   bool
	carryOver []mailbox.Envelope
	msgCount  uint64

	runningOnce sync.Once
	runningCh   chan struct{}
}

// NewInstance constructs an unstarted Instance. parent is nil for a root
// actor (the guardian attaches it to its own supervised tree); callers
// supply maxHierarchyDepth (0 disables the check).
func NewInstance(addr address.Address, behavior Behavior, host Host, parent *Instance, maxHierarchyDepth int) *Instance {
	depth := 0
	if parent != nil {
		depth = parent.depth + 1
	}
	return &Instance{
		addr:              addr,
		behavior:          behavior,
		host:              host,
		box:               mailbox.New(behavior.MailboxCapacity, behavior.MailboxPolicy),
		bus:               eventbus.New(),
		status:            StatusIdle,
		actorContext:      behavior.InitialContext,
		parent:            parent,
		children:          make(map[string]*childEntry),
		depth:             depth,
		maxHierarchyDepth: maxHierarchyDepth,
		runningCh:         make(chan struct{}),
	}
}

// WaitRunning blocks until this actor's DispatchLoop has reached
// StatusRunning, or ctx is done first. Callers that attach children to an
// actor immediately after spawning it (Attach requires a started parent)
// use this instead of polling Status.
func (inst *Instance) WaitRunning(ctx context.Context) error {
	select {
	case <-inst.runningCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (inst *Instance) Address() address.Address { return inst.addr }

// Mailbox returns the mailbox currently backing this actor. A restart
// replaces it with a fresh instance, so callers that mean to act on "this
// attempt's" mailbox should fetch it again after a restart rather than
// cache the pointer.
func (inst *Instance) Mailbox() *mailbox.Mailbox {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	return inst.box
}

// EventBus returns the event bus currently backing this actor; see
// Mailbox's note on restarts replacing it.
func (inst *Instance) EventBus() *eventbus.Bus {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	return inst.bus
}
func (inst *Instance) Ref() Ref             { return NewRef(inst.addr, inst.host) }
func (inst *Instance) Depth() int           { return inst.depth }
func (inst *Instance) MessageCount() uint64 { return atomic.LoadUint64(&inst.msgCount) }

func (inst *Instance) Status() Status {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	return inst.status
}

func (inst *Instance) setStatus(s Status) {
	inst.mu.Lock()
	inst.status = s
	inst.mu.Unlock()
}

// Context returns the actor's current OTP-style context value.
func (inst *Instance) Context() any {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	return inst.actorContext
}

func (inst *Instance) setContext(v any) {
	inst.mu.Lock()
	inst.actorContext = v
	inst.mu.Unlock()
}

// Enqueue delivers an envelope into this actor's mailbox, honoring its
// overflow policy.
func (inst *Instance) Enqueue(e mailbox.Envelope) mailbox.EnqueueResult {
	return inst.Mailbox().Enqueue(e)
}

// DispatchLoop is the Supervisable this Instance runs under: install
// identity context, invoke the handler, interpret its plan, loop. Every
// invocation after the first rebuilds a fresh mailbox and event bus before
// running, so a supervisor-driven restart genuinely gets a fresh context
// and a fresh mailbox rather than resuming the torn-down one; messages
// still queued at the point of failure are carried into the fresh mailbox
// unless DiscardPendingOnStop is set. A handler panic or error is turned
// into a failure.HandlerFailure/the underlying cause and returned, ending
// this invocation; the owning supervisor.Supervisor decides whether to
// call DispatchLoop again, stop, or escalate.
func (inst *Instance) DispatchLoop(ctx context.Context) error {
	inst.mu.Lock()
	if inst.started {
		inst.box = mailbox.New(inst.behavior.MailboxCapacity, inst.behavior.MailboxPolicy)
		inst.bus = eventbus.New()
		for _, e := range inst.carryOver {
			inst.box.Enqueue(e)
		}
		inst.carryOver = nil
		// The previous attempt's teardown cancelled the child base
		// context; children of a restarted actor need a live one.
		inst.childBaseCtx, inst.childBaseCancel = context.WithCancel(ctx)
	}
	inst.started = true
	if inst.childBaseCtx == nil {
		inst.childBaseCtx, inst.childBaseCancel = context.WithCancel(ctx)
	}
	inst.mu.Unlock()

	inst.setStatus(StatusStarting)
	inst.setContext(inst.behavior.InitialContext)

	if inst.behavior.OnStart != nil {
		if err := inst.invokeOnStart(ctx); err != nil {
			inst.setStatus(StatusError)
			inst.teardown(ctx, false)
			return &failure.HandlerFailure{Path: inst.addr.Path(), Cause: err}
		}
	}
	inst.setStatus(StatusRunning)
	inst.runningOnce.Do(func() { close(inst.runningCh) })

	for {
		env, ok := inst.box.Dequeue(ctx)
		if !ok {
			inst.teardown(ctx, true)
			return nil
		}

		err := inst.handleOne(ctx, env)
		inst.box.Done()
		if err != nil {
			inst.setStatus(StatusError)
			inst.teardown(ctx, false)
			return err
		}
		atomic.AddUint64(&inst.msgCount, 1)
	}
}

func (inst *Instance) invokeOnStart(ctx context.Context) (startErr error) {
	defer func() {
		if r := recover(); r != nil {
			startErr = fmt.Errorf("panic: %v", r)
		}
	}()
	ic := identity.New(inst.addr.Path())
	identity.RunInContext(ctx, ic, func(innerCtx context.Context) {
		startErr = inst.behavior.OnStart(innerCtx, inst.Ref())
	})
	return startErr
}

func (inst *Instance) handleOne(ctx context.Context, env mailbox.Envelope) (failureErr error) {
	ic := identity.New(inst.addr.Path())
	ic.CorrelationID = env.CorrelationID

	identity.RunInContext(ctx, ic, func(innerCtx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				failureErr = &failure.HandlerFailure{Path: inst.addr.Path(), Cause: fmt.Errorf("panic: %v", r)}
			}
		}()

		if inst.behavior.OnMessage == nil {
			inst.host.DeadLetter(env, "actor has no OnMessage handler")
			return
		}

		value := inst.behavior.OnMessage(innerCtx, inst.Ref(), env.Message)
		result := plan.Interpret(innerCtx, value, inst.planDependencies(), env.CorrelationID)
		if !result.Success {
			for _, e := range result.Errors {
				logger.Current().Warn("message-plan execution error", "actor", inst.addr.Path(), "error", e.Error())
			}
		}
		if env.CorrelationID != "" && result.RepliesRouted == 0 {
			logger.Current().Warn("correlation-bearing message handled without a reply",
				"actor", inst.addr.Path(),
				"messageType", fmt.Sprintf("%T", env.Message),
				"correlationId", env.CorrelationID)
		}
	})
	return failureErr
}

func (inst *Instance) planDependencies() plan.Dependencies {
	return plan.Dependencies{
		Tell:          inst.host.Tell,
		Ask:           inst.host.Ask,
		RouteReply:    inst.host.RouteReply,
		UpdateContext: inst.setContext,
		Emit: func(evt eventbus.Event) {
			if inst.behavior.StateEngine != nil {
				if err := inst.behavior.StateEngine.Send(evt.Type, evt.Payload); err != nil {
					logger.Current().Debug("state engine rejected domain event",
						"actor", inst.addr.Path(), "event", evt.Type, "error", err)
				}
			}
			inst.bus.Emit(evt)
			inst.host.Emit(inst.addr.Path(), evt)
		},
	}
}

// teardown tears this attempt down: it stops every child (cascading via
// childBaseCancel), runs OnStop, drains and closes the mailbox, and
// destroys the event bus. Any envelopes still queued are stashed on
// carryOver for the next DispatchLoop attempt unless DiscardPendingOnStop
// is set, so a restart can redeliver in-flight work to the fresh mailbox
// it builds.
//
// terminal distinguishes a genuine stop from a between-restarts exit. Only
// a terminal teardown notifies the host, which rejects pending asks and
// releases the registry/directory entries; a restarting actor keeps its
// address reachable and its status at error until the supervisor runs
// DispatchLoop again. When the supervisor instead gives up (max restarts
// exceeded, stop/escalate policy), Attach's child-stopped subscription
// performs the host notification this path skipped.
func (inst *Instance) teardown(ctx context.Context, terminal bool) {
	if terminal {
		inst.setStatus(StatusStopping)
	}

	inst.childrenMu.Lock()
	entries := make([]*childEntry, 0, len(inst.children))
	for _, e := range inst.children {
		entries = append(entries, e)
	}
	inst.children = make(map[string]*childEntry)
	inst.childrenMu.Unlock()

	inst.mu.RLock()
	cancel := inst.childBaseCancel
	inst.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	for _, e := range entries {
		e.sup.Wait()
	}

	if inst.behavior.OnStop != nil {
		inst.behavior.OnStop(ctx, inst.Ref())
	}

	var carried []mailbox.Envelope
	if !inst.behavior.DiscardPendingOnStop {
		for {
			e, ok := inst.box.TryDequeue()
			if !ok {
				break
			}
			carried = append(carried, e)
		}
	}

	inst.box.Close()
	inst.bus.Destroy()
	if terminal {
		inst.setStatus(StatusStopped)
		if inst.host != nil {
			inst.host.NotifyStopped(inst.addr)
		}
	}

	inst.mu.Lock()
	inst.carryOver = carried
	inst.mu.Unlock()
}

// Stop requests this actor stop: it applies the mailbox's discard policy,
// then invokes the stop function installed by whichever supervisor is
// running this actor's DispatchLoop (Attach, for a child; the system
// facade's root supervisor, for a top-level actor).
func (inst *Instance) Stop() {
	box := inst.Mailbox()
	if inst.behavior.DiscardPendingOnStop {
		box.Clear()
	}
	inst.mu.RLock()
	fn := inst.stopFn
	inst.mu.RUnlock()
	if fn != nil {
		fn()
		return
	}
	box.Close()
}
