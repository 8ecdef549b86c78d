package system

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.fergus.london/actorkit/actor"
	"go.fergus.london/actorkit/failure"
	"go.fergus.london/actorkit/plan"
	"go.fergus.london/actorkit/supervisor"
)

func echoBehavior() actor.Behavior {
	return actor.Behavior{
		OnMessage: func(ctx context.Context, self actor.Ref, msg any) any {
			return plan.Result{Reply: msg, HasReply: true}
		},
	}
}

func TestSystemStartSpawnAskStop(t *testing.T) {
	sys := New(WithNode("test"))
	ctx := context.Background()
	if err := sys.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sys.Stop()

	ref, err := sys.Spawn(echoBehavior(), WithType("echo"))
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	reply, err := ref.Ask(ctx, "hello", time.Second)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if reply != "hello" {
		t.Fatalf("reply = %v, want hello", reply)
	}

	if _, ok := sys.Lookup(ref.Address()); !ok {
		t.Fatal("Lookup did not find spawned actor")
	}

	stats := sys.GetSystemStats()
	if !stats.Running {
		t.Fatal("stats.Running = false, want true")
	}
	if stats.ActorCount < 3 {
		t.Fatalf("stats.ActorCount = %d, want at least guardian+timer+echo", stats.ActorCount)
	}
}

func TestSystemGuardianSpawnActor(t *testing.T) {
	sys := New(WithNode("test2"))
	ctx := context.Background()
	if err := sys.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sys.Stop()

	guardianRef := sys.guardian.Ref()
	reply, err := guardianRef.Ask(ctx, SpawnActor{Behavior: echoBehavior(), Type: "spawned"}, time.Second)
	if err != nil {
		t.Fatalf("guardian SpawnActor ask failed: %v", err)
	}
	ref, ok := reply.(actor.Ref)
	if !ok {
		t.Fatalf("reply = %T, want actor.Ref", reply)
	}

	echoReply, err := ref.Ask(ctx, "ping", time.Second)
	if err != nil {
		t.Fatalf("Ask on guardian-spawned actor failed: %v", err)
	}
	if echoReply != "ping" {
		t.Fatalf("echoReply = %v, want ping", echoReply)
	}
}

func TestSystemScheduledDeliveryUnderTestMode(t *testing.T) {
	sys := New(WithNode("test3"), WithTestMode(true))
	ctx := context.Background()
	if err := sys.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sys.Stop()

	var mu sync.Mutex
	received := false
	ref, err := sys.Spawn(actor.Behavior{
		OnMessage: func(ctx context.Context, self actor.Ref, msg any) any {
			mu.Lock()
			received = true
			mu.Unlock()
			return nil
		},
	}, WithType("recipient"))
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	if _, err := sys.TimerRef().Ask(ctx, Schedule{
		Target: ref.Address(),
		Message: "fire",
		Delay:   10 * time.Second,
		ID:      "job-1",
	}, time.Second); err != nil {
		t.Fatalf("Schedule ask failed: %v", err)
	}

	if err := sys.Flush(context.Background()); err != nil {
		t.Fatalf("Flush before advance failed: %v", err)
	}
	mu.Lock()
	gotEarly := received
	mu.Unlock()
	if gotEarly {
		t.Fatal("recipient received message before virtual clock advanced")
	}

	if err := sys.TimerRef().Tell(ctx, AdvanceTime{By: 15 * time.Second}); err != nil {
		t.Fatalf("AdvanceTime tell failed: %v", err)
	}
	if err := sys.Flush(context.Background()); err != nil {
		t.Fatalf("Flush after advance failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !received {
		t.Fatal("recipient never received scheduled message after advancing past its delay")
	}
}

func TestSystemSupervisedRestartThroughFacade(t *testing.T) {
	sys := New(WithNode("test4"))
	ctx := context.Background()
	if err := sys.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sys.Stop()

	var mu sync.Mutex
	attempts := 0
	ref, err := sys.Spawn(actor.Behavior{
		OnMessage: func(ctx context.Context, self actor.Ref, msg any) any {
			mu.Lock()
			attempts++
			n := attempts
			mu.Unlock()
			if n == 1 {
				panic("first attempt always fails")
			}
			return plan.Result{Reply: "recovered", HasReply: true}
		},
	}, WithPolicy(supervisor.Policy{
		Strategy:      supervisor.RestartOnFailure,
		MaxRestarts:   3,
		RestartWindow: time.Minute,
	}))
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	if err := ref.Tell(ctx, "boom"); err != nil {
		t.Fatalf("Tell failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	reply, err := ref.Ask(ctx, "again", time.Second)
	if err != nil {
		t.Fatalf("Ask after restart failed: %v", err)
	}
	if reply != "recovered" {
		t.Fatalf("reply = %v, want recovered", reply)
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2 (one panic, one successful restart)", attempts)
	}
}

func TestSystemHealthCheckAndShutdown(t *testing.T) {
	sys := New(WithNode("test5"))
	ctx := context.Background()
	if err := sys.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	reply, err := sys.guardian.Ref().Ask(ctx, SystemHealthCheck{}, time.Second)
	if err != nil {
		t.Fatalf("SystemHealthCheck ask failed: %v", err)
	}
	if reply != HealthOK {
		t.Fatalf("reply = %v, want %v", reply, HealthOK)
	}

	sys.Stop()
	if sys.IsRunning() {
		t.Fatal("system still reports running after Stop")
	}
}

func TestSystemAskTimeoutCarriesRequestFields(t *testing.T) {
	sys := New(WithNode("test6"))
	ctx := context.Background()
	if err := sys.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sys.Stop()

	silent, err := sys.Spawn(actor.Behavior{
		OnMessage: func(ctx context.Context, self actor.Ref, msg any) any {
			return nil // never replies
		},
	}, WithType("silent"))
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	_, err = silent.Ask(ctx, "Q", 50*time.Millisecond)
	timeoutErr, ok := failure.As[*failure.AskTimeout](err)
	if !ok {
		t.Fatalf("expected *failure.AskTimeout, got %v", err)
	}
	if timeoutErr.Timeout != 50*time.Millisecond {
		t.Fatalf("Timeout = %v, want 50ms", timeoutErr.Timeout)
	}
	if timeoutErr.ActorPath != silent.Address().Path() {
		t.Fatalf("ActorPath = %q, want %q", timeoutErr.ActorPath, silent.Address().Path())
	}

	stats := sys.GetSystemStats()
	if stats.AskTimeoutCount != 1 {
		t.Fatalf("AskTimeoutCount = %d, want 1", stats.AskTimeoutCount)
	}
}

func TestSystemFIFOPerSenderReceiver(t *testing.T) {
	sys := New(WithNode("test7"))
	ctx := context.Background()
	if err := sys.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sys.Stop()

	var mu sync.Mutex
	var order []int
	ref, err := sys.Spawn(actor.Behavior{
		OnMessage: func(ctx context.Context, self actor.Ref, msg any) any {
			mu.Lock()
			order = append(order, msg.(int))
			mu.Unlock()
			return nil
		},
	}, WithType("collector"))
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	for k := 0; k < 10; k++ {
		if err := ref.Tell(ctx, k); err != nil {
			t.Fatalf("Tell(%d) failed: %v", k, err)
		}
	}
	if err := sys.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 10 {
		t.Fatalf("received %d messages, want 10", len(order))
	}
	for k := 0; k < 10; k++ {
		if order[k] != k {
			t.Fatalf("order = %v, want [0..9] in sequence", order)
		}
	}
}

func TestSystemStopActorTwiceIsIdempotent(t *testing.T) {
	sys := New(WithNode("test8"))
	ctx := context.Background()
	if err := sys.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sys.Stop()

	ref, err := sys.Spawn(echoBehavior(), WithType("ephemeral"))
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	if err := ref.Stop(); err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}
	if err := ref.Stop(); err != nil {
		t.Fatalf("second Stop should be a no-op, got %v", err)
	}

	if _, err := ref.Ask(ctx, "hello", 100*time.Millisecond); err == nil {
		t.Fatal("expected Ask on a stopped actor to fail")
	}
}
