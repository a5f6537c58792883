package runbook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamtc007/ob-poc-sub006/internal/entityresolve"
)

type memStore struct {
	runbooks map[string]*StagedRunbook
	active   map[string]string // sessionID -> runbookID
}

func newMemStore() *memStore {
	return &memStore{runbooks: make(map[string]*StagedRunbook), active: make(map[string]string)}
}

func (m *memStore) SaveRunbook(_ context.Context, rb *StagedRunbook) error {
	m.runbooks[rb.ID] = rb
	if rb.Status == StatusBuilding || rb.Status == StatusReady || rb.Status == StatusExecuting {
		m.active[rb.SessionID] = rb.ID
	}
	return nil
}

func (m *memStore) SaveCommand(_ context.Context, cmd *StagedCommand) error {
	rb := m.runbooks[cmd.RunbookID]
	if rb == nil {
		return nil
	}
	for i, c := range rb.Commands {
		if c.ID == cmd.ID {
			rb.Commands[i] = cmd
			return nil
		}
	}
	return nil
}

func (m *memStore) DeleteCommand(_ context.Context, commandID string) error {
	for _, rb := range m.runbooks {
		for i, c := range rb.Commands {
			if c.ID == commandID {
				rb.Commands = append(rb.Commands[:i], rb.Commands[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (m *memStore) LoadRunbook(_ context.Context, runbookID string) (*StagedRunbook, error) {
	return m.runbooks[runbookID], nil
}

func (m *memStore) ActiveRunbookForSession(_ context.Context, sessionID string) (*StagedRunbook, error) {
	id, ok := m.active[sessionID]
	if !ok {
		return nil, nil
	}
	return m.runbooks[id], nil
}

type stubResolver struct {
	result *entityresolve.Result
	err    error
}

func (r *stubResolver) Resolve(context.Context, string, string, string, []string) (*entityresolve.Result, error) {
	return r.result, r.err
}

// S1 — Stage with exact entity match.
func TestStageExactMatchResolvesImmediately(t *testing.T) {
	store := newMemStore()
	resolver := &stubResolver{result: &entityresolve.Result{
		Outcome:  entityresolve.Resolved,
		Resolved: []entityresolve.ResolvedEntity{{EntityID: "e1", EntityName: "Acme Holdings", Source: entityresolve.TagExact, Confidence: 1.0}},
	}}
	svc := New(store, resolver, nil, nil)

	cmd, events, err := svc.Stage(context.Background(), "sess1", `(kyc.start :entity-id "Acme Holdings")`, "", "")
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, ResolutionResolved, cmd.Resolution)
	require.Len(t, cmd.EntityFootprint, 1)
	assert.Equal(t, string(entityresolve.TagExact), cmd.EntityFootprint[0].ResolutionSource)

	var sawStaged, sawResolved bool
	for _, ev := range events {
		if ev.EventType == EventCommandStaged {
			sawStaged = true
		}
		if ev.EventType == EventEntityResolved {
			sawResolved = true
		}
	}
	assert.True(t, sawStaged)
	assert.True(t, sawResolved)

	rb, err := svc.Show(context.Background(), "sess1")
	require.NoError(t, err)
	require.NotNil(t, rb)
	assert.Equal(t, StatusBuilding, rb.Status)
}

// S2 — Ambiguous picker round-trip.
func TestPickRoundTrip(t *testing.T) {
	store := newMemStore()
	resolver := &stubResolver{result: &entityresolve.Result{
		Outcome: entityresolve.Ambiguous,
		Candidates: []entityresolve.Candidate{
			{EntityID: "id1", EntityName: "John Smith", Score: 0.7},
			{EntityID: "id2", EntityName: "John Smith", Score: 0.65},
		},
	}}
	svc := New(store, resolver, nil, nil)

	cmd, events, err := svc.Stage(context.Background(), "sess2", `(entity.register :target "John Smith")`, "", "")
	require.NoError(t, err)
	assert.Equal(t, ResolutionAmbiguous, cmd.Resolution)

	var sawAmbiguous bool
	for _, ev := range events {
		if ev.EventType == EventResolutionAmbiguous {
			sawAmbiguous = true
			assert.Len(t, ev.Candidates, 2)
		}
	}
	assert.True(t, sawAmbiguous)

	_, _, err = svc.Pick(context.Background(), cmd.RunbookID, cmd.ID, []string{"not-in-set"})
	require.Error(t, err)
	var invalidErr *InvalidCandidateError
	assert.ErrorAs(t, err, &invalidErr)

	updated, pickEvents, err := svc.Pick(context.Background(), cmd.RunbookID, cmd.ID, []string{"id1"})
	require.NoError(t, err)
	assert.Equal(t, ResolutionResolved, updated.Resolution)
	assert.Empty(t, updated.Candidates)
	require.Len(t, pickEvents, 1)
	assert.Equal(t, EventPickerApplied, pickEvents[0].EventType)
}

// S3 — Ready gate refusal.
func TestRunRefusedWhenNotReady(t *testing.T) {
	store := newMemStore()
	resolver := &stubResolver{result: &entityresolve.Result{Outcome: entityresolve.Ambiguous, Candidates: []entityresolve.Candidate{
		{EntityID: "id1", EntityName: "X", Score: 0.6}, {EntityID: "id2", EntityName: "Y", Score: 0.58},
	}}}
	svc := New(store, resolver, nil, nil)

	_, _, err := svc.Stage(context.Background(), "sess3", `(entity.register :target "X")`, "", "")
	require.NoError(t, err)

	rb, err := svc.Show(context.Background(), "sess3")
	require.NoError(t, err)

	events, execResult, err := svc.Run(context.Background(), rb.ID)
	require.Error(t, err)
	var notReady *RunbookNotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Len(t, notReady.Blockers, 1)
	assert.Nil(t, execResult)

	var sawNotReady, sawStarted bool
	for _, ev := range events {
		if ev.EventType == EventRunbookNotReady {
			sawNotReady = true
		}
		if ev.EventType == EventExecutionStarted {
			sawStarted = true
		}
	}
	assert.True(t, sawNotReady)
	assert.False(t, sawStarted)
}

// S10 — Parse-failed stage is inspectable.
func TestStageParseFailedKeepsRunbookVisible(t *testing.T) {
	store := newMemStore()
	resolver := &stubResolver{}
	svc := New(store, resolver, nil, nil)

	cmd, events, err := svc.Stage(context.Background(), "sess10", `(((bad`, "", "")
	require.NoError(t, err)
	assert.Nil(t, cmd)
	require.Len(t, events, 1)
	assert.Equal(t, EventStageFailed, events[0].EventType)
	assert.Equal(t, "parse_failed", events[0].ErrorKind)
}

// fakeHandler records every invoked FQN and echoes it back as the bound
// value, so a test can assert on execution order without a real verb
// handler.
type fakeHandler struct {
	invoked []string
}

func (h *fakeHandler) Invoke(_ context.Context, fqn string, _ map[string]any) (any, error) {
	h.invoked = append(h.invoked, fqn)
	return fqn, nil
}

// A staged command whose source contains a nested verb call compiles to
// more than one plan step (dslcompile flattens nested calls into extra
// synthesized steps, spec §4.5). Run must still map each executed step
// back to the command that produced it instead of assuming one step per
// command.
func TestRunWithNestedCallDoesNotPanicOnStepCommandMismatch(t *testing.T) {
	store := newMemStore()
	resolver := &stubResolver{}
	handler := &fakeHandler{}
	svc := New(store, resolver, nil, handler)

	_, _, err := svc.Stage(context.Background(), "sess-nested", `(kyc.start :amount (account.compute-amount :base 10))`, "", "")
	require.NoError(t, err)
	_, _, err = svc.Stage(context.Background(), "sess-nested", `(session.info)`, "", "")
	require.NoError(t, err)

	rb, err := svc.Show(context.Background(), "sess-nested")
	require.NoError(t, err)
	require.Len(t, rb.Commands, 2)
	firstCmdID, secondCmdID := rb.Commands[0].ID, rb.Commands[1].ID

	events, execResult, err := svc.Run(context.Background(), rb.ID)
	require.NoError(t, err)
	require.NotNil(t, execResult)
	require.Len(t, execResult.Steps, 3) // nested call + kyc.start + session.info
	assert.Equal(t, []string{"account.compute-amount", "kyc.start", "session.info"}, handler.invoked)

	var executedFor []string
	for _, ev := range events {
		if ev.EventType == EventCommandExecuted {
			executedFor = append(executedFor, ev.CommandID)
		}
	}
	// One extra step was synthesized for the nested call; every step emits
	// CommandExecuted tagged with the staged command that owns it, so the
	// first command appears twice and no index goes out of range.
	require.Len(t, executedFor, 3)
	assert.Equal(t, firstCmdID, executedFor[0])
	assert.Equal(t, firstCmdID, executedFor[1])
	assert.Equal(t, secondCmdID, executedFor[2])
}

func TestNoEntityArgsResolvesTrivially(t *testing.T) {
	store := newMemStore()
	resolver := &stubResolver{}
	svc := New(store, resolver, nil, nil)

	cmd, _, err := svc.Stage(context.Background(), "sess4", `(session.info)`, "", "")
	require.NoError(t, err)
	assert.Equal(t, ResolutionResolved, cmd.Resolution)
	assert.Empty(t, cmd.EntityFootprint)
}
