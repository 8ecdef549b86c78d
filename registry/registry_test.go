package registry

import (
	"testing"

	"go.fergus.london/actorkit/eventbus"
)

func TestSubscribeImplicitlyRegistersPublisher(t *testing.T) {
	r := New()
	r.Subscribe("actor-a", "sub-1", nil, func(eventbus.Event) {})
	if !r.IsPublisher("actor-a") {
		t.Fatal("expected publisher to be implicitly registered on first subscription")
	}
}

func TestRouteDeliversOnlyToMatchingFilter(t *testing.T) {
	r := New()
	var gotAll, gotFiltered []eventbus.Event

	r.Subscribe("actor-a", "sub-all", nil, func(e eventbus.Event) { gotAll = append(gotAll, e) })
	r.Subscribe("actor-a", "sub-filtered", []string{"tick"}, func(e eventbus.Event) { gotFiltered = append(gotFiltered, e) })

	r.Route("actor-a", eventbus.Event{Type: "tick"})
	r.Route("actor-a", eventbus.Event{Type: "other"})

	if len(gotAll) != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", len(gotAll))
	}
	if len(gotFiltered) != 1 || gotFiltered[0].Type != "tick" {
		t.Fatalf("filtered subscriber got %v, want only tick", gotFiltered)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	r := New()
	calls := 0
	unsub := r.Subscribe("actor-a", "sub-1", nil, func(eventbus.Event) { calls++ })

	r.Route("actor-a", eventbus.Event{Type: "x"})
	unsub()
	r.Route("actor-a", eventbus.Event{Type: "x"})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestSubscriptionsSurviveRestartReRegistration(t *testing.T) {
	r := New()
	calls := 0
	r.Subscribe("actor-a", "sub-1", nil, func(eventbus.Event) { calls++ })

	// Simulate a supervisor restarting the publisher: re-registering the
	// same logical id must not drop the existing subscriber.
	r.RegisterPublisher("actor-a", "started")

	r.Route("actor-a", eventbus.Event{Type: "started"})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (subscription should survive re-registration)", calls)
	}
}

func TestRouteOnUnknownPublisherIsNoop(t *testing.T) {
	r := New()
	if n := r.Route("ghost", eventbus.Event{Type: "x"}); n != 0 {
		t.Fatalf("Route() = %d deliveries, want 0 for unknown publisher", n)
	}
}
