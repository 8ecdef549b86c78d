package timer

import (
	"testing"
	"time"

	"go.fergus.london/actorkit/address"
)

func TestAdvanceDeliversOnlyDueItemsInOrder(t *testing.T) {
	s := New(true)
	target := address.MustNew("counter", "local", "c1")

	s.Schedule(target, "first", 100*time.Millisecond, "")
	s.Schedule(target, "second", 50*time.Millisecond, "")
	s.Schedule(target, "third", 200*time.Millisecond, "")

	due := s.Advance(100 * time.Millisecond)
	if len(due) != 2 {
		t.Fatalf("Advance(100ms) delivered %d items, want 2", len(due))
	}
	if due[0].Message != "second" || due[1].Message != "first" {
		t.Fatalf("unexpected delivery order: [%v, %v]", due[0].Message, due[1].Message)
	}

	due = s.Advance(100 * time.Millisecond)
	if len(due) != 1 || due[0].Message != "third" {
		t.Fatalf("expected third item after further advance, got %v", due)
	}
}

func TestAdvanceBreaksTiesByInsertionOrder(t *testing.T) {
	s := New(true)
	target := address.MustNew("counter", "local", "c1")

	s.Schedule(target, "a", 50*time.Millisecond, "")
	s.Schedule(target, "b", 50*time.Millisecond, "")
	s.Schedule(target, "c", 50*time.Millisecond, "")

	due := s.Advance(50 * time.Millisecond)
	if len(due) != 3 {
		t.Fatalf("len(due) = %d, want 3", len(due))
	}
	if due[0].Message != "a" || due[1].Message != "b" || due[2].Message != "c" {
		t.Fatalf("expected insertion-order tie-break [a,b,c], got %v", []any{due[0].Message, due[1].Message, due[2].Message})
	}
}

func TestCancelPreventsDelivery(t *testing.T) {
	s := New(true)
	target := address.MustNew("counter", "local", "c1")

	item := s.Schedule(target, "x", 10*time.Millisecond, "")
	if !s.Cancel(item.ID) {
		t.Fatal("expected Cancel to find the scheduled item")
	}
	if s.Cancel(item.ID) {
		t.Fatal("expected second Cancel of the same id to report false")
	}

	due := s.Advance(10 * time.Millisecond)
	if len(due) != 0 {
		t.Fatalf("expected cancelled item not to be delivered, got %v", due)
	}
}

func TestListingOrdersPendingItems(t *testing.T) {
	s := New(true)
	target := address.MustNew("counter", "local", "c1")

	s.Schedule(target, "late", 200*time.Millisecond, "")
	s.Schedule(target, "early", 10*time.Millisecond, "")

	listing := s.Listing()
	if len(listing) != 2 || listing[0].Message != "early" || listing[1].Message != "late" {
		t.Fatalf("unexpected listing order: %v", listing)
	}
}

func TestScheduleBeforeTestModeAdvanceIsNotYetDue(t *testing.T) {
	s := New(true)
	target := address.MustNew("counter", "local", "c1")
	s.Schedule(target, "tick", 100*time.Millisecond, "")

	if due := s.Advance(0); len(due) != 0 {
		t.Fatalf("expected nothing due before virtual clock advances, got %v", due)
	}
}
