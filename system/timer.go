package system

import (
	"context"
	"time"

	"go.fergus.london/actorkit/actor"
	"go.fergus.london/actorkit/address"
	"go.fergus.london/actorkit/logger"
	"go.fergus.london/actorkit/plan"
	"go.fergus.london/actorkit/timer"
)

// Schedule asks the timer actor to deliver Message to Target after Delay,
// returning the item's id as the ask reply.
type Schedule struct {
	Target  address.Address
	Message any
	Delay   time.Duration
	ID      string
}

// CancelScheduled cancels a previously scheduled item by id.
type CancelScheduled struct{ ID string }

// AdvanceTime moves the timer actor's virtual clock forward by By
// (test-mode only) and flushes any items now due.
type AdvanceTime struct{ By time.Duration }

// GetScheduled asks for a snapshot listing of pending scheduled items.
type GetScheduled struct{}

type timerTick struct{}

// dueToInstructions turns flushed items into the tells that actually
// deliver them, reusing the message-plan interpreter rather than giving
// the timer behavior a direct Host reference.
func dueToInstructions(due []*timer.ScheduledItem) []plan.Instruction {
	out := make([]plan.Instruction, 0, len(due))
	for _, item := range due {
		out = append(out, plan.SendInstruction{To: item.Target, Message: item.Message})
	}
	return out
}

// NewTimerBehavior adapts timer.State into an ordinary actor
// Behavior: state is owned exclusively by this actor's single-consumer
// dispatcher, so timer.State's own lack of internal locking is safe by
// construction, mirroring every other behavior's context.
func NewTimerBehavior(state *timer.State) actor.Behavior {
	return actor.Behavior{
		OnStart: func(ctx context.Context, self actor.Ref) error {
			if state.TestMode {
				return nil
			}
			// Real-time mode has no driving message; a background ticker
			// feeds the actor its own tick so flushDue keeps running.
			go func() {
				ticker := time.NewTicker(25 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						_ = self.Tell(ctx, timerTick{})
					case <-ctx.Done():
						return
					}
				}
			}()
			return nil
		},
		OnMessage: func(ctx context.Context, self actor.Ref, msg any) any {
			switch m := msg.(type) {
			case Schedule:
				item := state.Schedule(m.Target, m.Message, m.Delay, m.ID)
				return plan.Result{Reply: item.ID, HasReply: true}
			case CancelScheduled:
				return plan.Result{Reply: state.Cancel(m.ID), HasReply: true}
			case AdvanceTime:
				return dueToInstructions(state.Advance(m.By))
			case timerTick:
				return dueToInstructions(state.Tick())
			case GetScheduled:
				return plan.Result{Reply: state.Listing(), HasReply: true}
			default:
				logger.Current().Warn("timer actor received unrecognized message", "type", m)
				return nil
			}
		},
	}
}
