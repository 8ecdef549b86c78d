package identity

import (
	"context"
	"sync"
	"testing"
)

func TestRunInContextIsolatesConcurrentActors(t *testing.T) {
	var wg sync.WaitGroup
	results := make(chan string, 2)

	run := func(actorID string) {
		defer wg.Done()
		RunInContext(context.Background(), New(actorID), func(ctx context.Context) {
			results <- Current(ctx).ActorID
		})
	}

	wg.Add(2)
	go run("actor-a")
	go run("actor-b")
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for r := range results {
		seen[r] = true
	}
	if !seen["actor-a"] || !seen["actor-b"] {
		t.Fatalf("expected both actor ids observed distinctly, got %v", seen)
	}
}

func TestNestedRunInContextIncrementsDepth(t *testing.T) {
	RunInContext(context.Background(), New("outer"), func(ctx context.Context) {
		if Current(ctx).Depth != 0 {
			t.Fatalf("expected root depth 0, got %d", Current(ctx).Depth)
		}
		RunInContext(ctx, New("inner"), func(ctx context.Context) {
			got := Current(ctx)
			if got.ActorID != "inner" {
				t.Fatalf("expected innermost context to win, got %q", got.ActorID)
			}
			if got.Depth != 1 {
				t.Fatalf("expected nested depth 1, got %d", got.Depth)
			}
		})
	})
}

func TestCurrentOutsideContextIsZeroValue(t *testing.T) {
	if HasActive(context.Background()) {
		t.Fatal("expected no active identity context on bare background context")
	}
	if got := Current(context.Background()); got.ActorID != "" {
		t.Fatalf("expected zero value ActorID, got %q", got.ActorID)
	}
}

func TestValidateRejectsEmptyActorID(t *testing.T) {
	if err := Validate(Context{}, 0); err == nil {
		t.Fatal("expected error for empty actor id")
	}
}

func TestValidateRejectsExcessiveDepth(t *testing.T) {
	ic := Context{ActorID: "a", Depth: MaxDepth + 1}
	if err := Validate(ic, 0); err == nil {
		t.Fatal("expected error for depth beyond MaxDepth")
	}
}

func TestDiagnoseReportsActiveContext(t *testing.T) {
	RunInContext(context.Background(), New("diag-actor"), func(ctx context.Context) {
		d := Diagnose(ctx)
		if !d.HasActive || d.ActorID != "diag-actor" {
			t.Fatalf("unexpected diagnostics: %+v", d)
		}
	})
}
