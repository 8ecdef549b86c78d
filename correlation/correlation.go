// Package correlation implements the ask/correlation manager: unique
// correlation ids, pending-request bookkeeping, and the timeout manager
// that backs ask's per-request deadline.
package correlation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.fergus.london/actorkit/failure"
)

// PendingRequest is a live ask awaiting resolution, rejection, or timeout.
type PendingRequest struct {
	CorrelationID string
	ActorPath     string
	MessageType   string
	Timeout       time.Duration
	StartedAt     time.Time

	resolve   chan any
	reject    chan error
	once      sync.Once
	timeoutID string
}

// wait blocks until the request settles with a reply or an error, or ctx
// is done, whichever happens first.
func (p *PendingRequest) wait(ctx context.Context) (any, error) {
	select {
	case v := <-p.resolve:
		return v, nil
	case err := <-p.reject:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Manager generates correlation ids unique across the system's lifetime,
// registers pending requests, and matches replies back by id.
type Manager struct {
	mu      sync.Mutex
	pending map[string]*PendingRequest
	timeout *TimeoutManager
}

// New constructs a Manager backed by its own TimeoutManager.
func New() *Manager {
	return &Manager{
		pending: make(map[string]*PendingRequest),
		timeout: NewTimeoutManager(),
	}
}

// Register allocates a correlation id and a pending request, starting its
// timeout. If no Resolve/Reject happens first, the timeout manager's
// goroutine rejects the request with a failure.AskTimeout.
func (m *Manager) Register(actorPath, messageType string, timeout time.Duration) *PendingRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	// Re-rolling on an astronomically unlikely collision keeps the
	// "unique across the lifetime of the system" invariant explicit
	// rather than assumed.
	for {
		if _, exists := m.pending[id]; !exists {
			break
		}
		id = uuid.NewString()
	}

	req := &PendingRequest{
		CorrelationID: id,
		ActorPath:     actorPath,
		MessageType:   messageType,
		Timeout:       timeout,
		StartedAt:     time.Now(),
		resolve:       make(chan any, 1),
		reject:        make(chan error, 1),
	}
	m.pending[id] = req

	req.timeoutID = m.timeout.SetTimeout(func() {
		m.Reject(id, &failure.AskTimeout{
			ActorPath:     actorPath,
			MessageType:   messageType,
			Timeout:       timeout,
			CorrelationID: id,
		})
	}, timeout)

	return req
}

// Await blocks until req settles or ctx is cancelled first.
func (m *Manager) Await(ctx context.Context, req *PendingRequest) (any, error) {
	return req.wait(ctx)
}

// Resolve matches a reply to its pending request by correlation id.
func (m *Manager) Resolve(correlationID string, reply any) error {
	m.mu.Lock()
	req, ok := m.pending[correlationID]
	if ok {
		delete(m.pending, correlationID)
	}
	m.mu.Unlock()

	if !ok {
		return &failure.Unroutable{CorrelationID: correlationID}
	}

	m.timeout.ClearTimeout(req.timeoutID)
	req.once.Do(func() { req.resolve <- reply })
	return nil
}

// Reject settles a pending request with an error (timeout, actor stopped,
// etc).
func (m *Manager) Reject(correlationID string, err error) error {
	m.mu.Lock()
	req, ok := m.pending[correlationID]
	if ok {
		delete(m.pending, correlationID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("correlation: no pending request %s", correlationID)
	}

	m.timeout.ClearTimeout(req.timeoutID)
	req.once.Do(func() { req.reject <- err })
	return nil
}

// RejectByPath settles every pending request addressed to actorPath with
// ActorStopped, used when a target actor stops while asks are in flight.
func (m *Manager) RejectByPath(actorPath string) {
	m.mu.Lock()
	var matched []*PendingRequest
	for id, req := range m.pending {
		if req.ActorPath == actorPath {
			matched = append(matched, req)
			delete(m.pending, id)
		}
	}
	m.mu.Unlock()

	for _, req := range matched {
		m.timeout.ClearTimeout(req.timeoutID)
		req.once.Do(func() { req.reject <- &failure.ActorStopped{Path: actorPath} })
	}
}

// Pending returns the number of in-flight asks.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Shutdown cancels every timeout the manager owns; it does not settle
// pending requests (callers should RejectByPath first).
func (m *Manager) Shutdown() {
	m.timeout.Shutdown()
}
