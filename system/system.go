// Package system implements the actor system facade: the process-wide
// boundary applications call through (start/stop/spawn/lookup/stats/
// test mode/flush), wiring together the correlation manager, registry,
// directory, dead-letter queue, and a guardian actor that owns spawn,
// stop, shutdown, and health-check commands as ordinary actor messages.
package system

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"go.fergus.london/actorkit/actor"
	"go.fergus.london/actorkit/address"
	"go.fergus.london/actorkit/correlation"
	"go.fergus.london/actorkit/deadletter"
	"go.fergus.london/actorkit/directory"
	"go.fergus.london/actorkit/eventbus"
	"go.fergus.london/actorkit/failure"
	"go.fergus.london/actorkit/identity"
	"go.fergus.london/actorkit/logger"
	"go.fergus.london/actorkit/mailbox"
	"go.fergus.london/actorkit/registry"
	"go.fergus.london/actorkit/supervisor"
	"go.fergus.london/actorkit/timer"
)

const (
	guardianType = "system"
	guardianID   = "guardian"
	timerType    = "timer"
	timerID      = "clock"
)

// Option configures a System at construction time.
type Option func(*System)

// WithNode sets the node segment used for every address this system mints.
func WithNode(node string) Option { return func(s *System) { s.node = node } }

// WithDebug enables identity-context depth validation and extra warnings.
func WithDebug(debug bool) Option { return func(s *System) { s.debug = debug } }

// WithMaxHierarchyDepth bounds how deep Attach will let the actor tree
// grow under the guardian. 0 disables the check.
func WithMaxHierarchyDepth(n int) Option { return func(s *System) { s.maxHierarchyDepth = n } }

// WithDeadLetterCapacity sets the dead-letter ring buffer's capacity.
func WithDeadLetterCapacity(n int) Option { return func(s *System) { s.deadLetterCapacity = n } }

// WithDirectoryCacheSize sets the directory's LRU cache bound.
func WithDirectoryCacheSize(n int) Option { return func(s *System) { s.directoryCacheSize = n } }

// WithDefaultAskTimeout sets the timeout applied when Ask is called with
// timeout <= 0.
func WithDefaultAskTimeout(d time.Duration) Option {
	return func(s *System) { s.defaultAskTimeout = d }
}

// WithTestMode starts the timer actor in virtual-clock mode from the
// outset, equivalent to calling EnableTestMode before Start.
func WithTestMode(testMode bool) Option { return func(s *System) { s.testMode = testMode } }

// Stats is the system's diagnostic snapshot: per-actor message counts,
// ask-timeout rate, directory cache hit rate, dead-letter count.
type Stats struct {
	Running          bool
	ActorCount       int
	PendingAsks      int
	AskTimeoutCount  uint64
	AskTimeoutRate   float64
	AsksStarted      uint64
	DirectoryHitRate float64
	DeadLetterCount  int
	DeadLetterTotal  uint64
	MessageCounts    map[string]uint64
}

// System is the Actor System Facade: it implements actor.Host for every
// actor it spawns.
type System struct {
	mu      sync.RWMutex
	running bool

	node               string
	debug              bool
	testMode           bool
	maxHierarchyDepth  int
	deadLetterCapacity int
	directoryCacheSize int
	defaultAskTimeout  time.Duration

	correlations *correlation.Manager
	directory    *directory.Directory
	deadLetters  *deadletter.Queue
	registry     *registry.Registry

	rootSup    *supervisor.Supervisor
	guardian   *actor.Instance
	timerState *timer.State
	timerRef   actor.Ref

	instancesMu sync.RWMutex
	instances   map[string]*actor.Instance

	askTimeouts atomic.Uint64
	asksTotal   atomic.Uint64

	stopDirectoryCleanup func()
}

// New constructs an unstarted System.
func New(opts ...Option) *System {
	s := &System{
		node:               "local",
		deadLetterCapacity: 1000,
		directoryCacheSize: 1024,
		defaultAskTimeout:  5 * time.Second,
		instances:          make(map[string]*actor.Instance),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.correlations = correlation.New()
	s.deadLetters = deadletter.New(s.deadLetterCapacity)
	s.directory = directory.New(s.directoryCacheSize)
	s.registry = registry.New()
	return s
}

// IsRunning reports whether Start has completed and Stop has not yet run.
func (s *System) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Start boots the guardian actor and the timer actor beneath it.
func (s *System) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("actorkit: system already running")
	}
	s.mu.Unlock()

	guardianAddr, err := address.New(guardianType, s.node, guardianID)
	if err != nil {
		return err
	}
	guardian := actor.NewInstance(guardianAddr, s.guardianBehavior(), s, nil, s.maxHierarchyDepth)
	s.rootSup = supervisor.New(ctx)
	s.registerInstance(guardian)
	s.guardian = guardian

	s.rootSup.Supervise(supervisor.Child{
		ID:     guardianAddr.Path(),
		Func:   guardian.DispatchLoop,
		Policy: supervisor.DefaultPolicy(),
	})

	startCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := guardian.WaitRunning(startCtx); err != nil {
		return fmt.Errorf("actorkit: guardian failed to start: %w", err)
	}

	s.timerState = timer.New(s.testMode)
	timerAddr, err := address.New(timerType, s.node, timerID)
	if err != nil {
		return err
	}
	timerInst := actor.NewInstance(timerAddr, NewTimerBehavior(s.timerState), s, guardian, s.maxHierarchyDepth)
	if err := guardian.Attach(timerInst, supervisor.DefaultPolicy()); err != nil {
		return fmt.Errorf("actorkit: failed to attach timer actor: %w", err)
	}
	s.registerInstance(timerInst)
	s.timerRef = timerInst.Ref()
	s.directory.Register(timerAddr, "local://"+timerAddr.Path(), 0)

	s.stopDirectoryCleanup = s.directory.StartCleanup(30 * time.Second)

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	return nil
}

// Stop cancels the guardian's supervisor, which cascades to every attached
// actor, and blocks until the tree has fully unwound.
func (s *System) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	if s.stopDirectoryCleanup != nil {
		s.stopDirectoryCleanup()
	}
	s.rootSup.Stop()
	s.rootSup.Wait()
	s.correlations.Shutdown()
}

// TimerRef exposes the timer actor's Ref for direct SCHEDULE/ADVANCE_TIME
// asks outside the guardian message surface.
func (s *System) TimerRef() actor.Ref { return s.timerRef }

// Spawn constructs an actor under parent (the guardian, unless WithParent
// names another actor) and attaches it per policy. It is the direct, synchronous
// path; guardianBehavior's SpawnActor case calls the same doSpawn so an
// actor can equivalently ask the guardian to spawn a sibling.
func (s *System) Spawn(behavior actor.Behavior, opts ...SpawnOption) (actor.Ref, error) {
	cfg := spawnConfig{typ: "actor", behavior: behavior}
	for _, opt := range opts {
		opt(&cfg)
	}
	return s.doSpawn(cfg)
}

func (s *System) doSpawn(cfg spawnConfig) (actor.Ref, error) {
	id := cfg.id
	if id == "" {
		id = uuid.NewString()
	}
	addr, err := address.New(cfg.typ, s.node, id)
	if err != nil {
		return actor.Ref{}, err
	}

	parent := s.guardian
	if !cfg.parent.IsZero() {
		inst, ok := s.lookupInstance(cfg.parent.Address())
		if !ok {
			return actor.Ref{}, &failure.ActorStopped{Path: cfg.parent.Address().Path()}
		}
		parent = inst
	}
	if parent == nil {
		return actor.Ref{}, fmt.Errorf("actorkit: system is not running")
	}

	policy := supervisor.DefaultPolicy()
	if cfg.policy != nil {
		policy = *cfg.policy
	}

	inst := actor.NewInstance(addr, cfg.behavior, s, parent, s.maxHierarchyDepth)
	if err := parent.Attach(inst, policy); err != nil {
		return actor.Ref{}, err
	}
	s.registerInstance(inst)
	s.directory.Register(addr, "local://"+addr.Path(), cfg.directoryTTL)
	return inst.Ref(), nil
}

// SpawnOption configures a Spawn call.
type SpawnOption func(*spawnConfig)

type spawnConfig struct {
	id           string
	typ          string
	behavior     actor.Behavior
	parent       actor.Ref
	policy       *supervisor.Policy
	directoryTTL time.Duration
}

// WithID pins the spawned actor's id segment instead of generating a uuid.
func WithID(id string) SpawnOption { return func(c *spawnConfig) { c.id = id } }

// WithType sets the spawned actor's address type segment (default "actor").
func WithType(typ string) SpawnOption { return func(c *spawnConfig) { c.typ = typ } }

// WithParent attaches the spawned actor under parent instead of the
// guardian.
func WithParent(parent actor.Ref) SpawnOption { return func(c *spawnConfig) { c.parent = parent } }

// WithPolicy overrides the spawned actor's supervision policy.
func WithPolicy(policy supervisor.Policy) SpawnOption {
	return func(c *spawnConfig) { c.policy = &policy }
}

// WithDirectoryTTL overrides the directory entry's TTL for this actor.
func WithDirectoryTTL(ttl time.Duration) SpawnOption {
	return func(c *spawnConfig) { c.directoryTTL = ttl }
}

// Lookup resolves addr to a live Ref; LookupPath does the same for a path
// string.
func (s *System) Lookup(addr address.Address) (actor.Ref, bool) {
	inst, ok := s.lookupInstance(addr)
	if !ok {
		return actor.Ref{}, false
	}
	return inst.Ref(), true
}

// LookupPath parses path and resolves it to a live Ref.
func (s *System) LookupPath(path string) (actor.Ref, bool) {
	addr, err := address.Parse(path)
	if err != nil {
		return actor.Ref{}, false
	}
	return s.Lookup(addr)
}

// ListActors returns every currently registered actor's Ref.
func (s *System) ListActors() []actor.Ref {
	s.instancesMu.RLock()
	defer s.instancesMu.RUnlock()
	out := make([]actor.Ref, 0, len(s.instances))
	for _, inst := range s.instances {
		out = append(out, inst.Ref())
	}
	return out
}

// GetSystemStats returns the system's diagnostic snapshot.
func (s *System) GetSystemStats() Stats {
	s.instancesMu.RLock()
	counts := make(map[string]uint64, len(s.instances))
	for path, inst := range s.instances {
		counts[path] = inst.MessageCount()
	}
	actorCount := len(s.instances)
	s.instancesMu.RUnlock()

	timeouts := s.askTimeouts.Load()
	asks := s.asksTotal.Load()
	var rate float64
	if asks > 0 {
		rate = float64(timeouts) / float64(asks)
	}

	return Stats{
		Running:          s.IsRunning(),
		ActorCount:       actorCount,
		PendingAsks:      s.correlations.Pending(),
		AskTimeoutCount:  timeouts,
		AskTimeoutRate:   rate,
		AsksStarted:      asks,
		DirectoryHitRate: s.directory.Metrics().HitRate,
		DeadLetterCount:  s.deadLetters.Count(),
		DeadLetterTotal:  s.deadLetters.TotalCaptured(),
		MessageCounts:    counts,
	}
}

// EnableTestMode switches the timer actor into virtual-clock mode.
// Already-scheduled real-time items keep their absolute ScheduledTime but
// only advance in response to AdvanceTime from here on.
func (s *System) EnableTestMode() {
	s.mu.Lock()
	s.testMode = true
	s.mu.Unlock()
	if s.timerState != nil {
		s.timerState.TestMode = true
	}
}

// Flush blocks until every actor's mailbox is empty and no ask is
// in-flight, or ctx is done first. Required for deterministic tests
// driving the system through EnableTestMode/AdvanceTime.
func (s *System) Flush(ctx context.Context) error {
	for {
		if s.quiescent() {
			return nil
		}
		select {
		case <-time.After(time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *System) quiescent() bool {
	if s.correlations.Pending() > 0 {
		return false
	}
	s.instancesMu.RLock()
	defer s.instancesMu.RUnlock()
	for _, inst := range s.instances {
		if inst.Mailbox().Size() > 0 {
			return false
		}
	}
	return true
}

func (s *System) registerInstance(inst *actor.Instance) {
	s.instancesMu.Lock()
	s.instances[inst.Address().Path()] = inst
	s.instancesMu.Unlock()
}

func (s *System) lookupInstance(addr address.Address) (*actor.Instance, bool) {
	s.instancesMu.RLock()
	defer s.instancesMu.RUnlock()
	inst, ok := s.instances[addr.Path()]
	return inst, ok
}

// --- actor.Host ---

func senderFromContext(ctx context.Context) *address.Address {
	ic, ok := identity.FromContext(ctx)
	if !ok || ic.ActorID == "" {
		return nil
	}
	addr, err := address.Parse(ic.ActorID)
	if err != nil {
		return nil
	}
	return &addr
}

// validateSender logs a debug-mode warning when the calling identity
// context is invalid (empty actor id, excessive depth). It never blocks
// dispatch.
func (s *System) validateSender(ctx context.Context) {
	if !s.debug {
		return
	}
	ic, ok := identity.FromContext(ctx)
	if !ok {
		return
	}
	if err := identity.Validate(ic, 0); err != nil {
		logger.Current().Warn("identity context validation failed", "actor", ic.ActorID, "error", err.Error())
	}
}

// Tell delivers msg to to's mailbox fire-and-forget.
func (s *System) Tell(ctx context.Context, to address.Address, msg any) error {
	s.validateSender(ctx)
	inst, ok := s.lookupInstance(to)
	env := mailbox.Envelope{Message: msg, SenderAddress: senderFromContext(ctx), Timestamp: time.Now()}
	if !ok {
		s.deadLetters.Capture(env, "no such actor: "+to.Path())
		return &failure.ActorStopped{Path: to.Path()}
	}
	if inst.Enqueue(env) == mailbox.Rejected {
		s.deadLetters.Capture(env, "mailbox rejected")
		return &failure.MailboxRejected{Path: to.Path(), Policy: "overflow"}
	}
	return nil
}

// Ask delivers msg to to's mailbox and blocks for a correlated reply or
// timeout.
func (s *System) Ask(ctx context.Context, to address.Address, msg any, timeout time.Duration) (any, error) {
	s.validateSender(ctx)
	inst, ok := s.lookupInstance(to)
	if !ok {
		return nil, &failure.ActorStopped{Path: to.Path()}
	}
	if timeout <= 0 {
		timeout = s.defaultAskTimeout
	}

	s.asksTotal.Add(1)

	messageType := fmt.Sprintf("%T", msg)
	req := s.correlations.Register(to.Path(), messageType, timeout)
	sender := senderFromContext(ctx)
	env := mailbox.Envelope{
		Message:       msg,
		SenderAddress: sender,
		CorrelationID: req.CorrelationID,
		ReplyTo:       sender,
		Timestamp:     time.Now(),
	}
	if inst.Enqueue(env) == mailbox.Rejected {
		s.correlations.Reject(req.CorrelationID, &failure.MailboxRejected{Path: to.Path(), Policy: "overflow"})
	}

	reply, err := s.correlations.Await(ctx, req)
	if err != nil {
		if _, ok := failure.As[*failure.AskTimeout](err); ok {
			s.askTimeouts.Add(1)
		}
	}
	return reply, err
}

// RouteReply resolves a pending ask by correlation id, dead-lettering it if
// nothing is waiting.
func (s *System) RouteReply(correlationID string, reply any) error {
	if err := s.correlations.Resolve(correlationID, reply); err != nil {
		s.deadLetters.Capture(mailbox.Envelope{Message: reply, CorrelationID: correlationID, Timestamp: time.Now()}, "unroutable reply")
		return err
	}
	return nil
}

// Emit lazily registers publisherID as a publisher of evt.Type and fans
// evt out through the registry.
func (s *System) Emit(publisherID string, evt eventbus.Event) {
	s.registry.RegisterPublisher(publisherID, evt.Type)
	s.registry.Route(publisherID, evt)
}

// DeadLetter captures an undeliverable envelope.
func (s *System) DeadLetter(envelope mailbox.Envelope, reason string) {
	s.deadLetters.Capture(envelope, reason)
}

// NotifyStopped releases an actor's correlations and directory entry once
// it has fully stopped.
func (s *System) NotifyStopped(addr address.Address) {
	s.correlations.RejectByPath(addr.Path())
	s.directory.Unregister(addr)
	if addr.Path() != s.guardianPath() {
		s.instancesMu.Lock()
		delete(s.instances, addr.Path())
		s.instancesMu.Unlock()
	}
}

// StopActor requests that the actor at addr stop: a root actor stops
// directly, a child is detached from its parent (which cascades the
// supervisor's own stop/wait). Stopping an address with no live actor is a
// no-op, keeping Ref.Stop idempotent.
func (s *System) StopActor(addr address.Address) error {
	inst, ok := s.lookupInstance(addr)
	if !ok {
		return nil
	}
	parent := inst.Parent()
	if parent == nil {
		inst.Stop()
		return nil
	}
	return parent.Detach(addr.Path())
}

// Subscribe registers listener on the event bus currently backing the
// actor at addr.
func (s *System) Subscribe(addr address.Address, listener func(eventbus.Event)) (eventbus.Unsubscribe, error) {
	inst, ok := s.lookupInstance(addr)
	if !ok {
		return nil, &failure.ActorStopped{Path: addr.Path()}
	}
	return inst.EventBus().Subscribe(listener), nil
}

// Snapshot returns the actor's current OTP-style context value.
func (s *System) Snapshot(addr address.Address) (any, error) {
	inst, ok := s.lookupInstance(addr)
	if !ok {
		return nil, &failure.ActorStopped{Path: addr.Path()}
	}
	return inst.Context(), nil
}

func (s *System) guardianPath() string {
	if s.guardian == nil {
		return ""
	}
	return s.guardian.Address().Path()
}
