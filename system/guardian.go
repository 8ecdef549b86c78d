package system

import (
	"context"

	"go.fergus.london/actorkit/actor"
	"go.fergus.london/actorkit/address"
	"go.fergus.london/actorkit/logger"
	"go.fergus.london/actorkit/plan"
)

// SpawnActor asks the guardian (or any actor that forwards it there) to
// spawn behavior as a new child, replying with its Ref.
type SpawnActor struct {
	Behavior actor.Behavior
	ID       string
	Type     string
	Parent   actor.Ref
}

// StopActor asks the guardian to stop and detach the actor at Path.
type StopActor struct{ Path string }

// ActorFailed is sent by a supervisor-aware caller to report a failure the
// guardian should log and account for; actorkit's own supervisors already
// restart/stop/escalate on their own, so this is primarily an integration
// point for application code instrumenting failures it observes directly.
type ActorFailed struct {
	Path  string
	Cause error
}

// ShutdownSystem asks the guardian to begin a full system shutdown.
type ShutdownSystem struct{}

// GetSystemInfo asks the guardian for the current Stats snapshot.
type GetSystemInfo struct{}

// SystemHealthCheck is a liveness ask: a guardian that can reply is, by
// definition, still dispatching.
type SystemHealthCheck struct{}

// HealthOK is SystemHealthCheck's reply.
const HealthOK = "ok"

// guardianBehavior is the distinguished root actor's behavior: it owns
// spawn, stop, failure-report, shutdown, info, and health-check commands
// as ordinary typed messages.
func (s *System) guardianBehavior() actor.Behavior {
	return actor.Behavior{
		OnMessage: func(ctx context.Context, self actor.Ref, msg any) any {
			switch m := msg.(type) {
			case SpawnActor:
				cfg := spawnConfig{id: m.ID, typ: m.Type, behavior: m.Behavior, parent: m.Parent}
				if cfg.typ == "" {
					cfg.typ = "actor"
				}
				ref, err := s.doSpawn(cfg)
				if err != nil {
					return plan.Result{Reply: err, HasReply: true}
				}
				return plan.Result{Reply: ref, HasReply: true}

			case StopActor:
				addr, err := address.Parse(m.Path)
				if err != nil {
					return plan.Result{Reply: err, HasReply: true}
				}
				inst, ok := s.lookupInstance(addr)
				if !ok {
					return plan.Result{Reply: false, HasReply: true}
				}
				parent := inst.Parent()
				if parent == nil {
					inst.Stop()
				} else if err := parent.Detach(addr.Path()); err != nil {
					return plan.Result{Reply: err, HasReply: true}
				}
				return plan.Result{Reply: true, HasReply: true}

			case ActorFailed:
				logger.Current().Error("actor reported failure", "actor", m.Path, "error", m.Cause)
				return nil

			case ShutdownSystem:
				go s.Stop()
				return nil

			case GetSystemInfo:
				return plan.Result{Reply: s.GetSystemStats(), HasReply: true}

			case SystemHealthCheck:
				return plan.Result{Reply: HealthOK, HasReply: true}

			default:
				logger.Current().Warn("guardian received unrecognized message", "type", m)
				return nil
			}
		},
	}
}
