package mailbox

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestEnqueueDequeueFIFO(t *testing.T) {
	m := New(0, Fail)
	for i := 0; i < 5; i++ {
		if got := m.Enqueue(Envelope{Message: i}); got != Accepted {
			t.Fatalf("Enqueue(%d) = %v, want Accepted", i, got)
		}
	}

	for i := 0; i < 5; i++ {
		e, ok := m.Dequeue(context.Background())
		if !ok {
			t.Fatalf("Dequeue() unexpectedly closed at i=%d", i)
		}
		if e.Message != i {
			t.Fatalf("Dequeue() = %v, want %d", e.Message, i)
		}
	}
}

func TestEnqueueFailPolicyRejectsAtCapacity(t *testing.T) {
	m := New(2, Fail)
	if m.Enqueue(Envelope{Message: 1}) != Accepted {
		t.Fatal("expected first enqueue accepted")
	}
	if m.Enqueue(Envelope{Message: 2}) != Accepted {
		t.Fatal("expected second enqueue accepted")
	}
	if m.Enqueue(Envelope{Message: 3}) != Rejected {
		t.Fatal("expected third enqueue rejected at capacity")
	}
	if m.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", m.Size())
	}
}

func TestEnqueueDropOldestEvictsHead(t *testing.T) {
	m := New(2, DropOldest)
	m.Enqueue(Envelope{Message: 1})
	m.Enqueue(Envelope{Message: 2})
	if got := m.Enqueue(Envelope{Message: 3}); got != Accepted {
		t.Fatalf("Enqueue() = %v, want Accepted under DropOldest", got)
	}

	first, _ := m.TryDequeue()
	second, _ := m.TryDequeue()
	if first.Message != 2 || second.Message != 3 {
		t.Fatalf("expected [2,3] after dropping oldest, got [%v,%v]", first.Message, second.Message)
	}
	if m.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", m.Dropped())
	}
}

func TestDequeueBlocksUntilEnqueueOrContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New(0, Fail)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan Envelope, 1)
	go func() {
		e, ok := m.Dequeue(ctx)
		if ok {
			done <- e
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	m.Enqueue(Envelope{Message: "hello"})

	select {
	case e := <-done:
		if e.Message != "hello" {
			t.Fatalf("got %v, want hello", e.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Dequeue to unblock")
	}
}

func TestDequeueUnblocksOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New(0, Fail)
	ctx, cancel := context.WithCancel(context.Background())

	unblocked := make(chan struct{})
	go func() {
		m.Dequeue(ctx)
		close(unblocked)
	}()

	cancel()
	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not unblock on context cancellation")
	}
}

func TestCloseRejectsFurtherEnqueueButDrains(t *testing.T) {
	m := New(0, Fail)
	m.Enqueue(Envelope{Message: "queued"})
	m.Close()

	if got := m.Enqueue(Envelope{Message: "late"}); got != Rejected {
		t.Fatal("expected enqueue after Close to be rejected")
	}

	e, ok := m.Dequeue(context.Background())
	if !ok || e.Message != "queued" {
		t.Fatal("expected already-queued message to still be drainable after Close")
	}

	_, ok = m.Dequeue(context.Background())
	if ok {
		t.Fatal("expected Dequeue to report closed once drained")
	}
}

func TestClearDiscardsQueuedEnvelopes(t *testing.T) {
	m := New(0, Fail)
	m.Enqueue(Envelope{Message: 1})
	m.Enqueue(Envelope{Message: 2})
	m.Clear()
	if m.Size() != 0 {
		t.Fatalf("Size() = %d after Clear, want 0", m.Size())
	}
}

func TestSizeCountsInFlightUntilDone(t *testing.T) {
	m := New(0, Fail)
	m.Enqueue(Envelope{Message: "work"})

	if _, ok := m.Dequeue(context.Background()); !ok {
		t.Fatal("expected dequeue to succeed")
	}
	if m.Size() != 1 {
		t.Fatalf("Size() = %d while envelope is in flight, want 1", m.Size())
	}

	m.Done()
	if m.Size() != 0 {
		t.Fatalf("Size() = %d after Done, want 0", m.Size())
	}
}
