package session

import (
	"context"
	"fmt"

	"github.com/adamtc007/ob-poc-sub006/internal/dslcompile"
	"github.com/adamtc007/ob-poc-sub006/internal/dslparser"
	"github.com/adamtc007/ob-poc-sub006/internal/dslvalidate"
	"github.com/adamtc007/ob-poc-sub006/internal/nlgen"
	"github.com/adamtc007/ob-poc-sub006/internal/runbook"
	"github.com/adamtc007/ob-poc-sub006/internal/toolapi"
	"github.com/adamtc007/ob-poc-sub006/internal/verbregistry"
	"github.com/adamtc007/ob-poc-sub006/internal/verbsurface"
)

// EnvelopeSource is the seam to the external semantic registry (SemReg)
// that supplies the governance envelope a session's verb surface is
// filtered against (spec §4.8 input). Returning nil means the envelope
// is unavailable, triggering the fail-policy step.
type EnvelopeSource interface {
	Envelope(ctx context.Context, sessionID string) (*verbsurface.Envelope, error)
}

// Orchestrator is the session orchestrator (C11): it owns every live
// session's state, routes inbound tool calls to the correct component,
// and returns a uniform ToolCallResult (spec §4.11). It is the single
// place that wires C2-C10 together for a transport.
type Orchestrator struct {
	Sessions  *Manager
	Registry  *verbregistry.Registry
	Runbook   *runbook.Service
	Envelopes EnvelopeSource
	NLGen     *nlgen.Generator
}

// NewOrchestrator builds an Orchestrator over the given components.
// envelopes may be nil, in which case every surface computation treats
// the envelope as unavailable (exercising SI-1 fail-closed by default).
// gen may be nil if no LLM backend is configured; the dsl_generate tool
// then answers LLMError rather than panicking.
func NewOrchestrator(reg *verbregistry.Registry, rb *runbook.Service, envelopes EnvelopeSource, gen *nlgen.Generator) *Orchestrator {
	return &Orchestrator{
		Sessions:  NewManager(),
		Registry:  reg,
		Runbook:   rb,
		Envelopes: envelopes,
		NLGen:     gen,
	}
}

// ToolRegistry builds the transport-agnostic toolapi.Registry (spec
// §6.3), binding every named tool to this Orchestrator's components.
func (o *Orchestrator) ToolRegistry() *toolapi.Registry {
	reg := toolapi.NewRegistry()
	reg.Register(toolapi.DSLValidate, o.handleValidate)
	reg.Register(toolapi.DSLPlan, o.handlePlan)
	reg.Register(toolapi.DSLExecute, o.handleExecute)
	reg.Register(toolapi.VerbsList, o.handleVerbsList)
	reg.Register(toolapi.DSLSignature, o.handleSignature)
	reg.Register(toolapi.DSLGenerate, o.handleGenerate)
	reg.Register(toolapi.RunbookStage, o.handleStage)
	reg.Register(toolapi.RunbookPick, o.handlePick)
	reg.Register(toolapi.RunbookRemove, o.handleRemove)
	reg.Register(toolapi.RunbookPreview, o.handlePreview)
	reg.Register(toolapi.RunbookShow, o.handleShow)
	reg.Register(toolapi.RunbookRun, o.handleRun)
	reg.Register(toolapi.RunbookAbort, o.handleAbort)
	return reg
}

func stringArg(input map[string]any, key string) string {
	v, _ := input[key].(string)
	return v
}

// Surface computes (or returns the cached) verb surface for a session,
// invalidating and recomputing whenever the envelope's fingerprint differs
// from the one the cached surface was computed under (spec §4.8, §5 "Verb
// surface cache per session").
func (o *Orchestrator) Surface(ctx context.Context, sess *Session) *verbsurface.SessionVerbSurface {
	var envelope *verbsurface.Envelope
	if o.Envelopes != nil {
		envelope, _ = o.Envelopes.Envelope(ctx, sess.ID)
	}
	fingerprint := ""
	if envelope != nil {
		fingerprint = envelope.Fingerprint
	}
	if cached, ok := sess.Surface(); ok && cached.SemRegFingerprint == fingerprint {
		return cached
	}
	surface := verbsurface.ComputeSessionVerbSurface(o.Registry, sess.Context(envelope))
	sess.SetSurface(surface)
	return surface
}

func (o *Orchestrator) handleValidate(input map[string]any) toolapi.ToolCallResult {
	source := stringArg(input, "source")
	prog, err := dslparser.ParseProgram(source)
	if err != nil {
		return toolapi.Err("ParseFailed", err.Error(), map[string]any{"source": source})
	}
	report := dslvalidate.Validate(prog, o.Registry, nil)
	return toolapi.Ok(report)
}

func (o *Orchestrator) handlePlan(input map[string]any) toolapi.ToolCallResult {
	source := stringArg(input, "source")
	prog, err := dslparser.ParseProgram(source)
	if err != nil {
		return toolapi.Err("ParseFailed", err.Error(), nil)
	}
	report := dslvalidate.Validate(prog, o.Registry, nil)
	if report.HasErrors() {
		return toolapi.Err("TypeMismatch", "program has validation errors", map[string]any{"diagnostics": report.Errors()})
	}
	plan, err := dslcompile.Compile(prog)
	if err != nil {
		return toolapi.ErrFromGo("InternalError", err)
	}
	return toolapi.Ok(plan)
}

// handleExecute implements the spec §6.3 dsl_execute tool: parse,
// validate, and compile source exactly like dsl_plan, then — unless
// dry_run is set — run the resulting plan through the Runbook service's
// executor in one shot, outside the staged runbook discipline (I-stage-
// never-executes scopes stage/pick/preview/remove/show/abort, not this
// tool). intent is accepted for caller context but does not change
// behavior; there is only one execution policy.
func (o *Orchestrator) handleExecute(input map[string]any) toolapi.ToolCallResult {
	source := stringArg(input, "source")
	prog, err := dslparser.ParseProgram(source)
	if err != nil {
		return toolapi.Err("ParseFailed", err.Error(), map[string]any{"source": source})
	}
	report := dslvalidate.Validate(prog, o.Registry, nil)
	if report.HasErrors() {
		return toolapi.Err("TypeMismatch", "program has validation errors", map[string]any{"diagnostics": report.Errors()})
	}
	plan, err := dslcompile.Compile(prog)
	if err != nil {
		return toolapi.ErrFromGo("InternalError", err)
	}

	dryRun, _ := input["dry_run"].(bool)
	if dryRun {
		return toolapi.Ok(map[string]any{"plan": plan, "diagnostics": report})
	}

	executor := o.Runbook.Executor()
	if executor == nil {
		return toolapi.Err("ExternalError", "dsl_execute is not configured with a verb handler", nil)
	}
	result, execErr := executor.Execute(context.Background(), plan)
	if execErr != nil {
		return toolapi.Err("ExternalError", execErr.Error(), map[string]any{"plan": plan, "result": result})
	}
	return toolapi.Ok(map[string]any{"plan": plan, "bindings": result.Symbols, "result": result})
}

func (o *Orchestrator) handleVerbsList(input map[string]any) toolapi.ToolCallResult {
	domain := stringArg(input, "domain")
	var out []*verbregistry.RuntimeVerb
	for _, v := range o.Registry.AllVerbs() {
		if domain != "" && v.Domain != domain {
			continue
		}
		out = append(out, v)
	}
	return toolapi.Ok(out)
}

func (o *Orchestrator) handleSignature(input map[string]any) toolapi.ToolCallResult {
	fqn := stringArg(input, "verb")
	verb, ok := o.Registry.Get(fqn)
	if !ok {
		return toolapi.Err("VocabularyUnknown", fmt.Sprintf("unknown verb %q", fqn), map[string]any{"verb": fqn})
	}
	return toolapi.Ok(verb)
}

func (o *Orchestrator) handleGenerate(input map[string]any) toolapi.ToolCallResult {
	if o.NLGen == nil {
		return toolapi.Err("LLMError", "dsl_generate is not configured (no GEMINI_API_KEY/GOOGLE_API_KEY)", nil)
	}
	result, err := o.NLGen.Generate(context.Background(), stringArg(input, "instruction"), stringArg(input, "domain"), o.Registry)
	if err != nil {
		return toolapi.ErrFromGo("LLMError", err)
	}
	if result.ParseError != nil {
		return toolapi.Err("ParseFailed", result.ParseError.Error(), map[string]any{"proposed_dsl": result.ProposedDSL})
	}
	return toolapi.Ok(result)
}

func (o *Orchestrator) sessionFor(input map[string]any) *Session {
	return o.Sessions.GetOrCreate(stringArg(input, "session_id"))
}

func (o *Orchestrator) handleStage(input map[string]any) toolapi.ToolCallResult {
	sess := o.sessionFor(input)
	cmd, events, err := o.Runbook.Stage(context.Background(), sess.ID, stringArg(input, "dsl_raw"), stringArg(input, "description"), stringArg(input, "prompt"))
	if err != nil {
		return toolapi.ErrFromGo("StoreError", err)
	}
	return toolapi.Ok(map[string]any{"command": cmd, "events": events})
}

func (o *Orchestrator) handlePick(input map[string]any) toolapi.ToolCallResult {
	ids, _ := input["selected_entity_ids"].([]string)
	cmd, events, err := o.Runbook.Pick(context.Background(), stringArg(input, "runbook_id"), stringArg(input, "command_id"), ids)
	if err != nil {
		var invalid *runbook.InvalidCandidateError
		if asInvalidCandidate(err, &invalid) {
			return toolapi.Err("InvalidCandidate", err.Error(), map[string]any{"entity_id": invalid.EntityID})
		}
		return toolapi.ErrFromGo("StoreError", err)
	}
	return toolapi.Ok(map[string]any{"command": cmd, "events": events})
}

func asInvalidCandidate(err error, target **runbook.InvalidCandidateError) bool {
	ic, ok := err.(*runbook.InvalidCandidateError)
	if ok {
		*target = ic
	}
	return ok
}

func (o *Orchestrator) handleRemove(input map[string]any) toolapi.ToolCallResult {
	events, err := o.Runbook.Remove(context.Background(), stringArg(input, "runbook_id"), stringArg(input, "command_id"))
	if err != nil {
		return toolapi.ErrFromGo("StoreError", err)
	}
	return toolapi.Ok(map[string]any{"events": events})
}

func (o *Orchestrator) handlePreview(input map[string]any) toolapi.ToolCallResult {
	preview, err := o.Runbook.Preview(context.Background(), stringArg(input, "runbook_id"))
	if err != nil {
		return toolapi.ErrFromGo("StoreError", err)
	}
	return toolapi.Ok(preview)
}

func (o *Orchestrator) handleShow(input map[string]any) toolapi.ToolCallResult {
	sess := o.sessionFor(input)
	rb, err := o.Runbook.Show(context.Background(), sess.ID)
	if err != nil {
		return toolapi.ErrFromGo("StoreError", err)
	}
	return toolapi.Ok(rb)
}

func (o *Orchestrator) handleRun(input map[string]any) toolapi.ToolCallResult {
	events, result, err := o.Runbook.Run(context.Background(), stringArg(input, "runbook_id"))
	if err != nil {
		var notReady *runbook.RunbookNotReadyError
		if asNotReady(err, &notReady) {
			return toolapi.Err("RunbookNotReady", err.Error(), map[string]any{"blockers": notReady.Blockers})
		}
		return toolapi.Err("ExternalError", err.Error(), map[string]any{"events": events})
	}
	return toolapi.Ok(map[string]any{"events": events, "result": result})
}

func asNotReady(err error, target **runbook.RunbookNotReadyError) bool {
	nr, ok := err.(*runbook.RunbookNotReadyError)
	if ok {
		*target = nr
	}
	return ok
}

func (o *Orchestrator) handleAbort(input map[string]any) toolapi.ToolCallResult {
	events, err := o.Runbook.Abort(context.Background(), stringArg(input, "runbook_id"))
	if err != nil {
		return toolapi.ErrFromGo("StoreError", err)
	}
	return toolapi.Ok(map[string]any{"events": events})
}
