package runbook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adamtc007/ob-poc-sub006/internal/dslcompile"
	"github.com/adamtc007/ob-poc-sub006/internal/dslexec"
	"github.com/adamtc007/ob-poc-sub006/internal/dslparser"
	"github.com/adamtc007/ob-poc-sub006/internal/entityresolve"
)

// entityArgNames is the set of argument names the stage path treats as
// entity references worth resolving (spec §4.9.2: "entity-id, cbu-id,
// target, subject, and their plural forms").
var entityArgNames = map[string]bool{
	"entity-id": true, "entity-ids": true,
	"cbu-id": true, "cbu-ids": true,
	"target": true, "targets": true,
	"subject": true, "subjects": true,
}

// Store is the persistence seam the Service depends on. A concrete
// sqlx/lib-pq implementation lives in internal/runbookstore.
type Store interface {
	SaveRunbook(ctx context.Context, rb *StagedRunbook) error
	SaveCommand(ctx context.Context, cmd *StagedCommand) error
	DeleteCommand(ctx context.Context, commandID string) error
	LoadRunbook(ctx context.Context, runbookID string) (*StagedRunbook, error)
	ActiveRunbookForSession(ctx context.Context, sessionID string) (*StagedRunbook, error)
}

// Resolver is the seam over internal/entityresolve.Resolve, narrowed to
// what the staging path needs; kept as an interface so tests can supply
// a fake gateway without standing up EntityGateway.
type Resolver interface {
	Resolve(ctx context.Context, clientGroupID, persona, rawValue string, kindHints []string) (*entityresolve.Result, error)
}

// resolverFunc adapts a GatewayClient into a Resolver by delegating to
// entityresolve.Resolve, the spec §4.7 entry point.
type resolverFunc struct {
	gw entityresolve.GatewayClient
}

// NewGatewayResolver builds a Resolver backed by an EntityGateway client.
func NewGatewayResolver(gw entityresolve.GatewayClient) Resolver {
	return &resolverFunc{gw: gw}
}

func (r *resolverFunc) Resolve(ctx context.Context, clientGroupID, persona, rawValue string, kindHints []string) (*entityresolve.Result, error) {
	return entityresolve.Resolve(ctx, r.gw, clientGroupID, persona, rawValue, kindHints)
}

// Service implements the staged runbook operations of spec §4.9.1. Tool
// calls for the same session are serialised by a per-session mutex (spec
// §5 "Ordering guarantees within a session").
type Service struct {
	store    Store
	resolver Resolver
	lookup   VerbLookup
	executor *dslexec.Executor

	mu        sync.Mutex
	sessionMu map[string]*sync.Mutex

	now func() time.Time
}

// New builds a Service. handler is the verb handler the run() path
// invokes via dslexec; it may be nil if the caller only stages/previews.
func New(store Store, resolver Resolver, lookup VerbLookup, handler dslexec.VerbHandler) *Service {
	var executor *dslexec.Executor
	if handler != nil {
		executor = dslexec.New(handler)
	}
	return &Service{
		store:     store,
		resolver:  resolver,
		lookup:    lookup,
		executor:  executor,
		sessionMu: make(map[string]*sync.Mutex),
		now:       time.Now,
	}
}

// Executor exposes the Service's configured dslexec.Executor for callers
// that need a one-shot execute path outside the staged runbook (spec
// §6.3 dsl_execute), distinct from Run's staged/DAG-ordered execution. It
// is nil if New was built with a nil handler.
func (s *Service) Executor() *dslexec.Executor {
	return s.executor
}

func (s *Service) lockSession(sessionID string) func() {
	s.mu.Lock()
	m, ok := s.sessionMu[sessionID]
	if !ok {
		m = &sync.Mutex{}
		s.sessionMu[sessionID] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Stage parses dslRaw, resolves its entity arguments, and persists a new
// StagedCommand attached to the session's active runbook, creating one if
// none exists (spec §4.9.1 stage()). I-stage-never-executes: this path
// never calls a verb handler.
func (s *Service) Stage(ctx context.Context, sessionID, dslRaw, description, sourcePrompt string) (*StagedCommand, []Event, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	rb, err := s.activeOrNewRunbook(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	var events []Event
	node, perr := dslparser.ParseSingleVerb(dslRaw)
	if perr != nil {
		ev := newEvent(EventStageFailed, rb.ID, s.now())
		ev.DSLRaw = dslRaw
		ev.ErrorKind = "parse_failed"
		ev.Error = perr.Error()
		events = append(events, ev)
		// Per S10: no command row is created, but the runbook stays visible.
		return nil, events, nil
	}

	cmd := &StagedCommand{
		ID:           newID(),
		RunbookID:    rb.ID,
		SourceOrder:  len(rb.Commands),
		DSLRaw:       dslRaw,
		Verb:         node.Domain + "." + node.Verb,
		Description:  description,
		SourcePrompt: sourcePrompt,
		Resolution:   ResolutionPending,
		CreatedAt:    s.now(),
	}

	events = append(events, newEventFor(EventCommandStaged, rb.ID, cmd.ID, s.now(), func(e *Event) { e.DSLRaw = dslRaw }))

	resolveEvents, err := s.resolveEntities(ctx, rb, cmd, node)
	if err != nil {
		return nil, nil, err
	}
	events = append(events, resolveEvents...)

	rb.Commands = append(rb.Commands, cmd)
	rb.Status = StatusBuilding
	if err := s.store.SaveCommand(ctx, cmd); err != nil {
		return nil, nil, fmt.Errorf("persisting staged command: %w", err)
	}
	if err := s.store.SaveRunbook(ctx, rb); err != nil {
		return nil, nil, fmt.Errorf("persisting runbook: %w", err)
	}
	return cmd, events, nil
}

func (s *Service) activeOrNewRunbook(ctx context.Context, sessionID string) (*StagedRunbook, error) {
	rb, err := s.store.ActiveRunbookForSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading active runbook: %w", err)
	}
	if rb != nil {
		return rb, nil
	}
	rb = &StagedRunbook{
		ID:        newID(),
		SessionID: sessionID,
		Status:    StatusBuilding,
		CreatedAt: s.now(),
	}
	if err := s.store.SaveRunbook(ctx, rb); err != nil {
		return nil, fmt.Errorf("creating runbook: %w", err)
	}
	return rb, nil
}

// resolveEntities walks the verb call's keyword args, resolving every one
// whose name designates an entity reference (spec §4.9.2).
func (s *Service) resolveEntities(ctx context.Context, rb *StagedRunbook, cmd *StagedCommand, call *dslparser.Node) ([]Event, error) {
	var events []Event
	anyAmbiguousOrFailed := false

	for _, arg := range call.Children {
		if arg.Type != dslparser.KeywordArgNode {
			continue
		}
		if !entityArgNames[arg.Value] {
			continue
		}
		if len(arg.Children) == 0 {
			continue
		}
		valueNode := arg.Children[0]
		rawValue := valueNode.Value
		if valueNode.Type == dslparser.SymbolRefNode {
			rawValue = "@" + rawValue
		}

		result, err := s.resolver.Resolve(ctx, rb.ClientGroupID, rb.Persona, rawValue, nil)
		if err != nil {
			return nil, fmt.Errorf("resolving entity arg %q: %w", arg.Value, err)
		}

		switch result.Outcome {
		case entityresolve.Resolved:
			for _, re := range result.Resolved {
				entry := ResolvedEntity{
					EntityID:         re.EntityID,
					EntityName:       re.EntityName,
					ArgName:          arg.Value,
					ResolutionSource: string(re.Source),
					OriginalRef:      rawValue,
					Confidence:       re.Confidence,
				}
				cmd.EntityFootprint = append(cmd.EntityFootprint, entry)
				events = append(events, newEventFor(EventEntityResolved, rb.ID, cmd.ID, s.now(), func(e *Event) { e.ResolvedEntity = &entry }))
			}
			if cmd.Resolution == "" || cmd.Resolution == ResolutionPending {
				cmd.Resolution = ResolutionResolved
			}
		case entityresolve.Ambiguous:
			candidates := make([]Candidate, 0, len(result.Candidates))
			for _, c := range result.Candidates {
				candidates = append(candidates, Candidate{EntityID: c.EntityID, EntityName: c.EntityName, ArgName: arg.Value, Score: c.Score})
			}
			cmd.Candidates = append(cmd.Candidates, candidates...)
			cmd.Resolution = ResolutionAmbiguous
			anyAmbiguousOrFailed = true
			events = append(events, newEventFor(EventResolutionAmbiguous, rb.ID, cmd.ID, s.now(), func(e *Event) { e.Candidates = candidates }))
		case entityresolve.Failed:
			cmd.Resolution = ResolutionFailed
			anyAmbiguousOrFailed = true
			events = append(events, newEventFor(EventResolutionFailed, rb.ID, cmd.ID, s.now(), func(e *Event) { e.ErrorKind = "resolution_failed"; e.Error = result.FailureReason }))
		case entityresolve.Deferred:
			cmd.EntityFootprint = append(cmd.EntityFootprint, ResolvedEntity{ArgName: arg.Value, OriginalRef: rawValue, ResolutionSource: "Deferred"})
			if cmd.Resolution == "" || cmd.Resolution == ResolutionPending {
				cmd.Resolution = ResolutionPending
			}
		}
	}

	if cmd.Resolution == "" || (cmd.Resolution == ResolutionPending && len(cmd.EntityFootprint) == 0) {
		// No entity args at all: trivially resolved.
		cmd.Resolution = ResolutionResolved
	}
	_ = anyAmbiguousOrFailed
	return events, nil
}

func newEventFor(evType EventType, runbookID, commandID string, now time.Time, mutate func(*Event)) Event {
	e := newEvent(evType, runbookID, now)
	e.CommandID = commandID
	if mutate != nil {
		mutate(&e)
	}
	return e
}

// Pick applies a picker selection to an Ambiguous command (spec §4.9.1
// pick()). I-candidate-closed: every selected id must already be in the
// command's stored candidate set.
func (s *Service) Pick(ctx context.Context, runbookID, commandID string, selectedEntityIDs []string) (*StagedCommand, []Event, error) {
	rb, err := s.store.LoadRunbook(ctx, runbookID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading runbook: %w", err)
	}
	if rb == nil {
		return nil, nil, fmt.Errorf("runbook %s not found", runbookID)
	}

	unlock := s.lockSession(rb.SessionID)
	defer unlock()

	cmd := rb.CommandByID(commandID)
	if cmd == nil {
		return nil, nil, fmt.Errorf("command %s not found in runbook %s", commandID, runbookID)
	}
	if cmd.Resolution != ResolutionAmbiguous {
		return nil, nil, fmt.Errorf("command %s is not ambiguous (status=%s)", commandID, cmd.Resolution)
	}

	for _, id := range selectedEntityIDs {
		if !cmd.HasCandidate(id) {
			return nil, nil, &InvalidCandidateError{CommandID: commandID, EntityID: id}
		}
	}

	byID := make(map[string]Candidate, len(cmd.Candidates))
	for _, c := range cmd.Candidates {
		byID[c.EntityID] = c
	}
	for _, id := range selectedEntityIDs {
		c := byID[id]
		cmd.EntityFootprint = append(cmd.EntityFootprint, ResolvedEntity{
			EntityID:         c.EntityID,
			EntityName:       c.EntityName,
			ArgName:          c.ArgName,
			ResolutionSource: "Picker",
			OriginalRef:      c.EntityName,
			Confidence:       c.Score,
		})
	}
	cmd.Candidates = nil // write-once: cleared on pick, per spec §5 "Shared resources"
	cmd.Resolution = ResolutionResolved

	if err := s.store.SaveCommand(ctx, cmd); err != nil {
		return nil, nil, fmt.Errorf("persisting picker selection: %w", err)
	}

	ev := newEventFor(EventPickerApplied, runbookID, commandID, s.now(), func(e *Event) { e.SelectedEntityIDs = selectedEntityIDs })
	return cmd, []Event{ev}, nil
}

// InvalidCandidateError is returned when pick() is given an entity id
// outside the command's stored candidate set.
type InvalidCandidateError struct {
	CommandID string
	EntityID  string
}

func (e *InvalidCandidateError) Error() string {
	return fmt.Sprintf("entity %s is not a candidate for command %s", e.EntityID, e.CommandID)
}

// Remove deletes a command, cascading to any command that consumed a
// symbol it produced (spec §4.9.1 remove()).
func (s *Service) Remove(ctx context.Context, runbookID, commandID string) ([]Event, error) {
	rb, err := s.store.LoadRunbook(ctx, runbookID)
	if err != nil {
		return nil, fmt.Errorf("loading runbook: %w", err)
	}
	if rb == nil {
		return nil, fmt.Errorf("runbook %s not found", runbookID)
	}

	unlock := s.lockSession(rb.SessionID)
	defer unlock()

	target := rb.CommandByID(commandID)
	if target == nil {
		return nil, fmt.Errorf("command %s not found", commandID)
	}

	toRemove := s.cascadeRemovalSet(rb, commandID)

	var events []Event
	remaining := rb.Commands[:0]
	for _, c := range rb.Commands {
		if toRemove[c.ID] {
			if err := s.store.DeleteCommand(ctx, c.ID); err != nil {
				return nil, fmt.Errorf("deleting command %s: %w", c.ID, err)
			}
			events = append(events, newEventFor(EventCommandRemoved, runbookID, c.ID, s.now(), nil))
			continue
		}
		remaining = append(remaining, c)
	}
	rb.Commands = remaining
	if err := s.store.SaveRunbook(ctx, rb); err != nil {
		return nil, fmt.Errorf("persisting runbook after removal: %w", err)
	}
	return events, nil
}

// cascadeRemovalSet finds every command transitively dependent (via
// symbol capture) on commandID, plus commandID itself. Cannot encounter a
// cycle: the DAG is validated acyclic before any reorder, per spec §9
// Open Questions.
func (s *Service) cascadeRemovalSet(rb *StagedRunbook, commandID string) map[string]bool {
	deps := buildEdges(rb.Commands, nil) // symbol edges only; deps[x] = set of ids x depends on
	removed := map[string]bool{commandID: true}

	changed := true
	for changed {
		changed = false
		for _, c := range rb.Commands {
			if removed[c.ID] {
				continue
			}
			for dep := range deps[c.ID] {
				if removed[dep] {
					removed[c.ID] = true
					changed = true
					break
				}
			}
		}
	}
	return removed
}

// PreviewResult is the side-effect-free readiness/ordering snapshot spec
// §4.9.1 preview() returns.
type PreviewResult struct {
	Runbook     *StagedRunbook
	Ready       bool
	DAGOrder    []*StagedCommand
	ReorderDiff []ReorderMove
	Blockers    []Blocker
}

// Preview computes readiness, the DAG order if ready, the reorder diff,
// and the entity footprint, without mutating anything.
func (s *Service) Preview(ctx context.Context, runbookID string) (*PreviewResult, error) {
	rb, err := s.store.LoadRunbook(ctx, runbookID)
	if err != nil {
		return nil, fmt.Errorf("loading runbook: %w", err)
	}
	if rb == nil {
		return nil, fmt.Errorf("runbook %s not found", runbookID)
	}

	blockers := blockersFor(rb)
	result := &PreviewResult{Runbook: rb, Blockers: blockers, Ready: len(blockers) == 0}
	if result.Ready {
		order, err := TopoSort(rb.Commands, s.lookup)
		if err != nil {
			result.Ready = false
			return result, nil
		}
		result.DAGOrder = order
		result.ReorderDiff = ReorderDiff(rb.Commands, order)
	}
	return result, nil
}

// Show returns the current runbook state for a session (spec §4.9.1
// show()).
func (s *Service) Show(ctx context.Context, sessionID string) (*StagedRunbook, error) {
	rb, err := s.store.ActiveRunbookForSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading active runbook: %w", err)
	}
	return rb, nil
}

func blockersFor(rb *StagedRunbook) []Blocker {
	var blockers []Blocker
	for _, c := range rb.Commands {
		switch c.Resolution {
		case ResolutionPending, ResolutionAmbiguous, ResolutionFailed, ResolutionParseFailed:
			blockers = append(blockers, Blocker{CommandID: c.ID, Status: c.Resolution, Error: c.ParseError})
		}
	}
	return blockers
}

// RunbookNotReadyError carries the blocker list spec §4.9.4 requires.
type RunbookNotReadyError struct {
	Blockers []Blocker
}

func (e *RunbookNotReadyError) Error() string {
	return fmt.Sprintf("runbook not ready: %d blocking command(s)", len(e.Blockers))
}

// Run enforces the server-side ready gate (I-ready-gate), computes DAG
// order, and executes every command in order, emitting events throughout
// (spec §4.9.1 run()). This is the only operation in the Service that may
// invoke a verb handler (I-stage-never-executes).
func (s *Service) Run(ctx context.Context, runbookID string) ([]Event, *dslexec.ExecutionResult, error) {
	rb, err := s.store.LoadRunbook(ctx, runbookID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading runbook: %w", err)
	}
	if rb == nil {
		return nil, nil, fmt.Errorf("runbook %s not found", runbookID)
	}

	unlock := s.lockSession(rb.SessionID)
	defer unlock()

	var events []Event

	blockers := blockersFor(rb)
	if len(blockers) > 0 {
		ev := newEvent(EventRunbookNotReady, runbookID, s.now())
		ev.Blockers = blockers
		events = append(events, ev)
		return events, nil, &RunbookNotReadyError{Blockers: blockers}
	}

	order, err := TopoSort(rb.Commands, s.lookup)
	if err != nil {
		ev := newEvent(EventRunbookNotReady, runbookID, s.now())
		ev.ErrorKind = "cycle_detected"
		ev.Error = err.Error()
		events = append(events, ev)
		return events, nil, err
	}
	diff := ReorderDiff(rb.Commands, order)
	for i, c := range order {
		idx := i
		c.DAGOrder = &idx
	}

	readyEv := newEvent(EventRunbookReady, runbookID, s.now())
	readyEv.ReorderDiff = diff
	events = append(events, readyEv)

	rb.Status = StatusExecuting
	if err := s.store.SaveRunbook(ctx, rb); err != nil {
		return events, nil, fmt.Errorf("persisting executing status: %w", err)
	}

	startEv := newEvent(EventExecutionStarted, runbookID, s.now())
	events = append(events, startEv)

	if s.executor == nil {
		return events, nil, fmt.Errorf("no verb handler configured; cannot execute")
	}

	plan, stepOwners, err := buildPlan(order)
	if err != nil {
		return events, nil, err
	}

	byID := make(map[string]*StagedCommand, len(order))
	for _, c := range order {
		byID[c.ID] = c
	}

	start := s.now()
	execResult, execErr := s.executor.Execute(ctx, plan)
	duration := s.now().Sub(start)

	var learned []LearnedTag
	for i, step := range execResult.Steps {
		cmd := byID[stepOwners[i]]
		success := step.Err == nil
		ev := newEventFor(EventCommandExecuted, runbookID, cmd.ID, s.now(), func(e *Event) {
			e.Success = success
			e.DurationMS = duration.Milliseconds()
			if step.Err != nil {
				e.Error = step.Err.Error()
			}
		})
		events = append(events, ev)
		if success {
			for _, entity := range cmd.EntityFootprint {
				if entity.ResolutionSource == string(entityresolve.TagExact) ||
					entity.ResolutionSource == string(entityresolve.TagFuzzy) ||
					entity.ResolutionSource == string(entityresolve.TagSemantic) {
					learned = append(learned, LearnedTag{EntityID: entity.EntityID, Tag: entity.OriginalRef, Source: "user_confirmed"})
				}
			}
		}
	}

	if execErr != nil {
		rb.Status = StatusExecuting // stopped mid-plan; prior bindings persist for post-mortem
		_ = s.store.SaveRunbook(ctx, rb)
		return events, execResult, execErr
	}

	rb.Status = StatusCompleted
	if err := s.store.SaveRunbook(ctx, rb); err != nil {
		return events, execResult, fmt.Errorf("persisting completed status: %w", err)
	}

	completedEv := newEvent(EventExecutionCompleted, runbookID, s.now())
	completedEv.LearnedTags = learned
	completedEv.DurationMS = duration.Milliseconds()
	events = append(events, completedEv)

	return events, execResult, nil
}

// buildPlan compiles each command in order independently and concatenates
// the results into one plan, rather than reparsing the whole runbook as a
// single program. A command's DSL may contain nested verb calls
// (dslcompile flattens those into extra synthesized steps, spec §4.5), so
// the number of plan steps is not 1:1 with len(order); buildPlan returns
// a parallel slice giving, for every step in the returned plan, the ID of
// the StagedCommand that produced it, so callers never have to assume
// step/command index alignment.
func buildPlan(order []*StagedCommand) (*dslcompile.ExecutionPlan, []string, error) {
	var steps []dslcompile.PlanStep
	var owners []string

	for cmdIdx, c := range order {
		prog, err := dslparser.ParseProgram(c.DSLRaw)
		if err != nil {
			return nil, nil, fmt.Errorf("re-parsing command %s: %w", c.ID, err)
		}
		cmdPlan, err := dslcompile.Compile(prog)
		if err != nil {
			return nil, nil, fmt.Errorf("compiling command %s: %w", c.ID, err)
		}

		// Synthetic bind names (anonymous nested-call steps) are only
		// ever referenced from within the same command's own source, but
		// dslcompile numbers them per-program ("__step0", "__step1", ...),
		// so two commands compiled independently can mint the same name.
		// Rewrite them with a per-command prefix before merging into the
		// shared symbol table the executor threads across commands.
		rename := make(map[string]string, len(cmdPlan.Steps))
		prefix := fmt.Sprintf("__cmd%d_", cmdIdx)
		for _, s := range cmdPlan.Steps {
			if !s.Explicit {
				rename[s.BindAs] = prefix + s.BindAs
			}
		}
		for _, s := range cmdPlan.Steps {
			if newName, ok := rename[s.BindAs]; ok {
				s.BindAs = newName
			}
			s.Args = renameSymbolRefs(s.Args, rename)
			s.Index = len(steps)
			steps = append(steps, s)
			owners = append(owners, c.ID)
		}
	}

	return &dslcompile.ExecutionPlan{Steps: steps}, owners, nil
}

func renameSymbolRefs(args map[string]dslcompile.Value, rename map[string]string) map[string]dslcompile.Value {
	out := make(map[string]dslcompile.Value, len(args))
	for k, v := range args {
		out[k] = renameSymbolRef(v, rename)
	}
	return out
}

func renameSymbolRef(v dslcompile.Value, rename map[string]string) dslcompile.Value {
	switch v.Kind {
	case dslcompile.KindSymbolRef:
		if newName, ok := rename[v.SymbolRef]; ok {
			v.SymbolRef = newName
		}
	case dslcompile.KindList:
		items := make([]dslcompile.Value, len(v.List))
		for i, item := range v.List {
			items[i] = renameSymbolRef(item, rename)
		}
		v.List = items
	case dslcompile.KindMap:
		entries := make([]dslcompile.MapEntry, len(v.Map))
		for i, e := range v.Map {
			entries[i] = dslcompile.MapEntry{Key: e.Key, Value: renameSymbolRef(e.Value, rename)}
		}
		v.Map = entries
	}
	return v
}

// Abort marks a Building or Ready runbook Aborted (spec §4.9.1 abort()).
func (s *Service) Abort(ctx context.Context, runbookID string) ([]Event, error) {
	rb, err := s.store.LoadRunbook(ctx, runbookID)
	if err != nil {
		return nil, fmt.Errorf("loading runbook: %w", err)
	}
	if rb == nil {
		return nil, fmt.Errorf("runbook %s not found", runbookID)
	}
	if rb.Status != StatusBuilding && rb.Status != StatusReady {
		return nil, fmt.Errorf("runbook %s cannot be aborted from status %s", runbookID, rb.Status)
	}

	unlock := s.lockSession(rb.SessionID)
	defer unlock()

	rb.Status = StatusAborted
	if err := s.store.SaveRunbook(ctx, rb); err != nil {
		return nil, fmt.Errorf("persisting aborted status: %w", err)
	}
	ev := newEvent(EventRunbookAborted, runbookID, s.now())
	return []Event{ev}, nil
}
