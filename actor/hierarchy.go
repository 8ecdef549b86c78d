package actor

import (
	"fmt"

	"go.fergus.london/actorkit/eventbus"
	"go.fergus.london/actorkit/supervisor"
)

// PropagationDirection is carried on a HierarchyEvent to say which way it
// travels the tree.
type PropagationDirection string

const (
	Up            PropagationDirection = "up"
	Down          PropagationDirection = "down"
	Bidirectional PropagationDirection = "bidirectional"
)

// HierarchyEvent travels up emitToParent, down emitToChildren, or both.
// A node that has finished reacting calls MarkHandled to stop propagation
// before the tree's edge is reached.
type HierarchyEvent struct {
	Type      string
	Payload   any
	Direction PropagationDirection

	handled bool
}

// MarkHandled stops further propagation of this event.
func (e *HierarchyEvent) MarkHandled() { e.handled = true }

// Handled reports whether a node has already marked this event handled.
func (e *HierarchyEvent) Handled() bool { return e.handled }

// Attach registers child under parent's supervision per policy and starts
// its dispatch loop. It rejects children that would exceed
// parent.maxHierarchyDepth.
func (parent *Instance) Attach(child *Instance, policy supervisor.Policy) error {
	if parent.maxHierarchyDepth > 0 && child.depth > parent.maxHierarchyDepth {
		return fmt.Errorf("actor: attaching %s would exceed max hierarchy depth %d",
			child.addr.Path(), parent.maxHierarchyDepth)
	}

	parent.mu.Lock()
	if parent.childBaseCtx == nil {
		// A parent that has not yet run DispatchLoop (e.g. attaching a
		// grandchild before the parent itself starts) has no base context
		// for its children yet, so the attach is refused.
		parent.mu.Unlock()
		return fmt.Errorf("actor: cannot attach to %s before it has started", parent.addr.Path())
	}
	base := parent.childBaseCtx
	parent.mu.Unlock()

	sup := supervisor.New(base)
	child.parent = parent

	parent.childrenMu.Lock()
	parent.children[child.addr.Path()] = &childEntry{instance: child, sup: sup}
	parent.childrenMu.Unlock()

	child.mu.Lock()
	child.stopFn = sup.Stop
	child.mu.Unlock()

	sup.Subscribe(func(e eventbus.Event) {
		se, _ := e.Payload.(supervisor.SupervisionEvent)
		parent.bus.Emit(eventbus.Event{
			Type:    "supervision." + e.Type,
			Payload: se,
		})
		// child-stopped is terminal: the supervisor will not run the
		// child again. A child that exited through a failure teardown
		// deferred its host notification in case of a restart; settle
		// it here. NotifyStopped is idempotent, so the graceful path
		// (which already notified) is unaffected.
		if e.Type == "child-stopped" && child.host != nil {
			child.setStatus(StatusStopped)
			child.host.NotifyStopped(child.addr)
		}
	})

	childID := child.addr.Path()
	sup.Supervise(supervisor.Child{ID: childID, Func: child.DispatchLoop, Policy: policy})
	return nil
}

// Detach stops and unregisters the child addressed by path.
func (parent *Instance) Detach(path string) error {
	parent.childrenMu.Lock()
	entry, ok := parent.children[path]
	if ok {
		delete(parent.children, path)
	}
	parent.childrenMu.Unlock()

	if !ok {
		return fmt.Errorf("actor: no such child %s", path)
	}
	entry.instance.Stop()
	entry.sup.Wait()
	return nil
}

// Children returns a snapshot of this actor's direct children.
func (parent *Instance) Children() []*Instance {
	parent.childrenMu.RLock()
	defer parent.childrenMu.RUnlock()
	out := make([]*Instance, 0, len(parent.children))
	for _, e := range parent.children {
		out = append(out, e.instance)
	}
	return out
}

// Parent returns this actor's parent, or nil for a root actor.
func (inst *Instance) Parent() *Instance { return inst.parent }

// EmitToParent delivers evt to this actor's parent's event bus, continuing
// upward while evt.Direction permits and no node has marked it handled.
func (inst *Instance) EmitToParent(evt *HierarchyEvent) {
	if evt.handled || inst.parent == nil {
		return
	}
	inst.parent.bus.Emit(eventbus.Event{Type: evt.Type, Payload: evt})
	if !evt.handled && (evt.Direction == Up || evt.Direction == Bidirectional) {
		inst.parent.EmitToParent(evt)
	}
}

// EmitToChildren delivers evt to every direct child's event bus,
// continuing downward while evt.Direction permits and no node has marked
// it handled.
func (inst *Instance) EmitToChildren(evt *HierarchyEvent) {
	for _, child := range inst.Children() {
		if evt.handled {
			return
		}
		child.bus.Emit(eventbus.Event{Type: evt.Type, Payload: evt})
		if !evt.handled && (evt.Direction == Down || evt.Direction == Bidirectional) {
			child.EmitToChildren(evt)
		}
	}
}
