// Package dslexec runs a compiled execution plan sequentially against an
// external verb handler (spec §4.6 "Execute"). Adapted from the shape of
// the teacher's internal/runtime execution engine, stripped of its
// retry/backoff/idempotency-key machinery: a step either succeeds or the
// run stops there. There is no step-level retry and no background
// goroutines; callers that want concurrency drive multiple Execute calls
// themselves.
package dslexec

import (
	"context"
	"errors"
	"fmt"

	"github.com/adamtc007/ob-poc-sub006/internal/dslcompile"
)

// FailureKind classifies why a step failed (spec §4.6 "failure
// classification").
type FailureKind string

const (
	FailureValidation FailureKind = "validation" // args failed a handler-side precondition
	FailureLifecycle  FailureKind = "lifecycle"  // entity is not in a state that allows this verb
	FailureExternal   FailureKind = "external"   // a downstream collaborator rejected or errored
	FailureInternal   FailureKind = "internal"   // the runtime itself is in an inconsistent state
)

// StepError is the classified failure of one plan step.
type StepError struct {
	Kind      FailureKind
	Message   string
	StepIndex int
	FQN       string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed [%s]: %s", e.StepIndex, e.FQN, e.Kind, e.Message)
}

// HandlerError lets a VerbHandler classify its own failure. Invoke errors
// that are not a *HandlerError are treated as FailureExternal.
type HandlerError struct {
	Kind FailureKind
	Err  error
}

func (e *HandlerError) Error() string { return e.Err.Error() }
func (e *HandlerError) Unwrap() error { return e.Err }

// VerbHandler actually carries out one verb invocation. The runtime has
// no built-in handler: callers wire this to whatever interprets
// RuntimeVerb.Behavior (CRUD against a database, a plugin dispatch, a
// graph query) for their deployment.
type VerbHandler interface {
	Invoke(ctx context.Context, fqn string, args map[string]any) (any, error)
}

// StepResult is the outcome of one executed (or attempted) step.
type StepResult struct {
	Index  int
	FQN    string
	BindAs string
	Value  any
	Err    *StepError
}

// ExecutionResult is the full record of an Execute run: every step
// attempted, the symbol table as of the point the run stopped, and
// whether it failed.
type ExecutionResult struct {
	Steps    []StepResult
	Symbols  map[string]any
	Failed   bool
	FailedAt int // index of the failing step, or -1
}

// Executor runs plans against a single VerbHandler.
type Executor struct {
	Handler VerbHandler
}

// New returns an Executor bound to handler.
func New(handler VerbHandler) *Executor {
	return &Executor{Handler: handler}
}

// Execute runs plan step by step. It stops at the first failing step
// (no retry, no skip-ahead) and returns the partial result alongside the
// classified error. A context cancellation is treated the same way: the
// run stops where it is, the partial result is returned.
func (e *Executor) Execute(ctx context.Context, plan *dslcompile.ExecutionPlan) (*ExecutionResult, error) {
	symbols := make(map[string]any, len(plan.Steps))
	result := &ExecutionResult{Symbols: symbols, FailedAt: -1}

	for _, step := range plan.Steps {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		args, err := resolveArgs(step.Args, symbols)
		if err != nil {
			stepErr := &StepError{Kind: FailureInternal, Message: err.Error(), StepIndex: step.Index, FQN: step.FQN}
			result.Steps = append(result.Steps, StepResult{Index: step.Index, FQN: step.FQN, BindAs: step.BindAs, Err: stepErr})
			result.Failed = true
			result.FailedAt = step.Index
			return result, stepErr
		}

		val, err := e.Handler.Invoke(ctx, step.FQN, args)
		if err != nil {
			stepErr := classifyError(step, err)
			result.Steps = append(result.Steps, StepResult{Index: step.Index, FQN: step.FQN, BindAs: step.BindAs, Err: stepErr})
			result.Failed = true
			result.FailedAt = step.Index
			return result, stepErr
		}

		symbols[step.BindAs] = val
		result.Steps = append(result.Steps, StepResult{Index: step.Index, FQN: step.FQN, BindAs: step.BindAs, Value: val})
	}

	return result, nil
}

func classifyError(step dslcompile.PlanStep, err error) *StepError {
	var he *HandlerError
	if errors.As(err, &he) {
		return &StepError{Kind: he.Kind, Message: he.Err.Error(), StepIndex: step.Index, FQN: step.FQN}
	}
	return &StepError{Kind: FailureExternal, Message: err.Error(), StepIndex: step.Index, FQN: step.FQN}
}

func resolveArgs(args map[string]dslcompile.Value, symbols map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for k, v := range args {
		rv, err := resolveValue(v, symbols)
		if err != nil {
			return nil, fmt.Errorf("resolving arg %q: %w", k, err)
		}
		out[k] = rv
	}
	return out, nil
}

func resolveValue(v dslcompile.Value, symbols map[string]any) (any, error) {
	switch v.Kind {
	case dslcompile.KindString, dslcompile.KindUUID, dslcompile.KindEntityRef:
		return v.Str, nil
	case dslcompile.KindInt:
		return v.Int, nil
	case dslcompile.KindDecimal:
		return v.Float, nil
	case dslcompile.KindBool:
		return v.Bool, nil
	case dslcompile.KindNull:
		return nil, nil
	case dslcompile.KindSymbolRef:
		val, ok := symbols[v.SymbolRef]
		if !ok {
			return nil, fmt.Errorf("unresolved symbol reference @%s", v.SymbolRef)
		}
		return val, nil
	case dslcompile.KindList:
		out := make([]any, len(v.List))
		for i, item := range v.List {
			rv, err := resolveValue(item, symbols)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	case dslcompile.KindMap:
		out := make(map[string]any, len(v.Map))
		for _, entry := range v.Map {
			rv, err := resolveValue(entry.Value, symbols)
			if err != nil {
				return nil, err
			}
			out[entry.Key] = rv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.Kind)
	}
}
