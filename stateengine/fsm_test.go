package stateengine

import (
	"testing"

	"github.com/looplab/fsm"
)

func TestFSMTransitionsAndNotifiesSnapshot(t *testing.T) {
	events := []fsm.EventDesc{
		{Name: "start", Src: []string{"idle"}, Dst: "running"},
		{Name: "stop", Src: []string{"running"}, Dst: "idle"},
	}
	e := NewFSM("idle", events)

	var got []Snapshot
	e.Subscribe(func(s Snapshot) { got = append(got, s) })

	if err := e.Send("start"); err != nil {
		t.Fatalf("Send(start) error: %v", err)
	}
	if e.GetSnapshot().State != "running" {
		t.Fatalf("GetSnapshot().State = %q, want running", e.GetSnapshot().State)
	}
	if len(got) != 1 || got[0].State != "running" {
		t.Fatalf("expected one notification to 'running', got %+v", got)
	}
}

func TestFSMRejectsInvalidTransition(t *testing.T) {
	events := []fsm.EventDesc{
		{Name: "start", Src: []string{"idle"}, Dst: "running"},
	}
	e := NewFSM("idle", events)

	if err := e.Send("stop"); err == nil {
		t.Fatal("expected error triggering an event with no matching source state")
	}
}

func TestFSMUnsubscribeStopsNotifications(t *testing.T) {
	events := []fsm.EventDesc{
		{Name: "start", Src: []string{"idle"}, Dst: "running"},
		{Name: "stop", Src: []string{"running"}, Dst: "idle"},
	}
	e := NewFSM("idle", events)

	calls := 0
	unsub := e.Subscribe(func(Snapshot) { calls++ })
	e.Send("start")
	unsub()
	e.Send("stop")

	if calls != 1 {
		t.Fatalf("calls = %d, want 1 after unsubscribe", calls)
	}
}
