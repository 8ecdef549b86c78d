// Package plan implements the message-plan interpreter: the bridge between
// a behavior handler's declarative return value and the scheduler.
//
// The grammar is a closed sum type. Go has no native sum types, so
// Instruction is a small sealed interface with one struct per variant; a
// handler returns nil, a single Instruction, or a []Instruction, and
// Interpret normalizes all three.
package plan

import (
	"context"
	"fmt"
	"time"

	"go.fergus.london/actorkit/address"
	"go.fergus.london/actorkit/eventbus"
	"go.fergus.london/actorkit/failure"
	"go.fergus.london/actorkit/logger"
)

// Instruction is the closed sum type every message-plan element belongs
// to. The unexported method seals it to this package's variants.
type Instruction interface {
	isInstruction()
}

// DomainEvent is forwarded to the actor's state engine (if any) and
// emitted via the event bus and auto-publish registry.
type DomainEvent struct {
	Type   string
	Fields map[string]any
}

func (DomainEvent) isInstruction() {}

// SendInstruction is translated into a fire-and-forget tell.
type SendInstruction struct {
	To      address.Address
	Message any
}

func (SendInstruction) isInstruction() {}

// AskInstruction is translated into an ask; upon settlement, OnOk or
// OnError is evaluated to produce another plan, interpreted recursively
// against the same Dependencies and ExecutionResult.
type AskInstruction struct {
	To      address.Address
	Message any
	Timeout time.Duration
	OnOk    func(reply any) any
	OnError func(err error) any
}

func (AskInstruction) isInstruction() {}

// Result is the OTP-style return shape: a context update, a correlated
// reply, and/or a batch of emitted events.
type Result struct {
	Context    any
	HasContext bool
	Reply      any
	HasReply   bool
	Emit       []DomainEvent
}

func (Result) isInstruction() {}

// Dependencies are the scheduler-side collaborators the interpreter drives.
// All fields are required except where noted; the actor/system packages
// supply concrete closures bound to one in-flight dispatch.
type Dependencies struct {
	Tell          func(ctx context.Context, to address.Address, msg any) error
	Ask           func(ctx context.Context, to address.Address, msg any, timeout time.Duration) (any, error)
	Emit          func(evt eventbus.Event)
	RouteReply    func(correlationID string, reply any) error
	UpdateContext func(newContext any)
}

// ExecutionResult is the summary the interpreter reports per dispatch.
type ExecutionResult struct {
	Success                   bool
	InstructionsExecuted      int
	DomainEventsEmitted       int
	SendInstructionsProcessed int
	AskInstructionsProcessed  int
	RepliesRouted             int
	Errors                    []error
	ExecutionTimeMs           int64
}

// Interpret normalizes value (nil | Instruction | []Instruction) and
// executes every instruction in array order. A failing instruction is
// recorded in Errors and does not prevent later instructions from running.
// incomingCorrelationID is the correlation id of the message currently
// being handled, if any; Result.Reply routes to it.
func Interpret(ctx context.Context, value any, deps Dependencies, incomingCorrelationID string) ExecutionResult {
	start := time.Now()
	result := ExecutionResult{Success: true}
	interpretValue(ctx, value, deps, incomingCorrelationID, &result)
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	return result
}

func interpretValue(ctx context.Context, value any, deps Dependencies, corrID string, result *ExecutionResult) {
	switch v := value.(type) {
	case nil:
		return
	case []Instruction:
		for _, instr := range v {
			interpretOne(ctx, instr, deps, corrID, result)
		}
	case Instruction:
		interpretOne(ctx, v, deps, corrID, result)
	default:
		result.Success = false
		result.Errors = append(result.Errors, &failure.InvalidPlan{
			Reason: fmt.Sprintf("unrecognized message-plan shape %T", value),
		})
	}
}

func interpretOne(ctx context.Context, instr Instruction, deps Dependencies, corrID string, result *ExecutionResult) {
	result.InstructionsExecuted++

	switch t := instr.(type) {
	case DomainEvent:
		interpretDomainEvent(t, deps, result)

	case SendInstruction:
		interpretSend(ctx, t, deps, result)

	case AskInstruction:
		interpretAsk(ctx, t, deps, corrID, result)

	case Result:
		interpretResult(t, deps, corrID, result)

	default:
		result.Success = false
		result.Errors = append(result.Errors, &failure.InvalidPlan{
			Reason: fmt.Sprintf("unrecognized instruction type %T", instr),
		})
	}
}

func interpretDomainEvent(t DomainEvent, deps Dependencies, result *ExecutionResult) {
	if t.Type == "" {
		result.Success = false
		result.Errors = append(result.Errors, &failure.InvalidPlan{Reason: "domain event missing type"})
		return
	}
	deps.Emit(eventbus.Event{Type: t.Type, Payload: t.Fields})
	result.DomainEventsEmitted++
}

func interpretSend(ctx context.Context, t SendInstruction, deps Dependencies, result *ExecutionResult) {
	if t.To.IsZero() {
		result.Success = false
		result.Errors = append(result.Errors, &failure.InvalidPlan{Reason: "send instruction missing target"})
		return
	}
	if err := deps.Tell(ctx, t.To, t.Message); err != nil {
		result.Success = false
		result.Errors = append(result.Errors, err)
	}
	result.SendInstructionsProcessed++
}

func interpretAsk(ctx context.Context, t AskInstruction, deps Dependencies, corrID string, result *ExecutionResult) {
	if t.To.IsZero() {
		result.Success = false
		result.Errors = append(result.Errors, &failure.InvalidPlan{Reason: "ask instruction missing target"})
		return
	}
	result.AskInstructionsProcessed++

	reply, err := deps.Ask(ctx, t.To, t.Message, t.Timeout)

	var next any
	if err != nil {
		if t.OnError != nil {
			next = t.OnError(err)
		} else {
			result.Success = false
			result.Errors = append(result.Errors, err)
		}
	} else if t.OnOk != nil {
		next = t.OnOk(reply)
	}

	if next != nil {
		// Recursion happens inline, in the same goroutine and call
		// stack as the ask that produced it, so sharing *result
		// requires no synchronization.
		interpretValue(ctx, next, deps, corrID, result)
	}
}

func interpretResult(t Result, deps Dependencies, corrID string, result *ExecutionResult) {
	if t.HasContext {
		deps.UpdateContext(t.Context)
	}

	switch {
	case t.HasReply && corrID != "":
		if err := deps.RouteReply(corrID, t.Reply); err != nil {
			result.Success = false
			result.Errors = append(result.Errors, err)
		} else {
			result.RepliesRouted++
		}
	case t.HasReply && corrID == "":
		logger.Current().Warn("message-plan result carries a reply but the incoming message had no correlation id")
	}

	for _, e := range t.Emit {
		interpretDomainEvent(e, deps, result)
	}
}
