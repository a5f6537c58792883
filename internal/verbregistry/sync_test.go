package verbregistry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	hashes    map[string]string
	upserts   int
	syncLogs  []*SyncResult
}

func newFakeStore(hashes map[string]string) *fakeStore {
	return &fakeStore{hashes: hashes}
}

func (f *fakeStore) ExistingYAMLHashes(context.Context) (map[string]string, error) {
	out := make(map[string]string, len(f.hashes))
	for k, v := range f.hashes {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) UpsertContract(_ context.Context, c *VerbContract) error {
	f.upserts++
	f.hashes[c.FullName] = c.YAMLHash
	return nil
}

func (f *fakeStore) LogSync(_ context.Context, r *SyncResult) error {
	f.syncLogs = append(f.syncLogs, r)
	return nil
}

func sampleVerb() *RuntimeVerb {
	return &RuntimeVerb{
		Domain:      "cbu",
		Verb:        "create",
		Description: "Create a CBU",
		Behavior:    Behavior{Kind: BehaviorPlugin, Handler: "create_cbu"},
		Args: []Arg{
			{Name: "name", Type: ArgString, Required: true, MapsTo: "name"},
		},
		Returns: Returns{Type: ArgUUID, Name: "cbu_id", Capture: true},
	}
}

func TestHashVerbDeterministic(t *testing.T) {
	v := sampleVerb()
	h1 := HashVerb(v)
	h2 := HashVerb(v)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHashVerbChangesWithDescription(t *testing.T) {
	v1 := sampleVerb()
	v2 := sampleVerb()
	v2.Description = "Create a Client Business Unit"
	assert.NotEqual(t, HashVerb(v1), HashVerb(v2))
}

func TestInferCategory(t *testing.T) {
	assert.Equal(t, "cbu_operations", InferCategory("cbu"))
	assert.Equal(t, "kyc_workflow", InferCategory("kyc-case"))
	assert.Equal(t, "", InferCategory("unknown-domain"))
}

func TestCompileVerbContractCRUDMissingTableIsError(t *testing.T) {
	v := sampleVerb()
	v.Behavior = Behavior{Kind: BehaviorCRUD}
	contract := CompileVerbContract(v)
	require.True(t, contract.Diagnostics.HasErrors())
	assert.Equal(t, CodeCRUDMissingTable, contract.Diagnostics.Errors[0].Code)
}

func TestCompileVerbContractRequiredWithDefaultWarns(t *testing.T) {
	v := sampleVerb()
	v.Args[0].Default = "Acme"
	contract := CompileVerbContract(v)
	require.Len(t, contract.Diagnostics.Warnings, 1)
	assert.Equal(t, CodeRequiredWithDefault, contract.Diagnostics.Warnings[0].Code)
}

func TestSyncAllAddedUpdatedUnchanged(t *testing.T) {
	reg := NewRegistry()
	unchanged := sampleVerb()
	require.NoError(t, reg.Add(unchanged))

	changed := &RuntimeVerb{Domain: "kyc", Verb: "begin", Description: "v2",
		Behavior: Behavior{Kind: BehaviorPlugin, Handler: "begin_kyc"},
		Returns:  Returns{Type: ArgUUID}}
	require.NoError(t, reg.Add(changed))

	store := newFakeStore(map[string]string{
		"cbu.create": HashVerb(unchanged), // unchanged
		"kyc.begin":  "stale-hash",        // will be updated
	})

	svc := NewSyncService(store)
	svc.now = func() time.Time { return time.Unix(0, 0) }

	result, err := svc.SyncAll(context.Background(), reg)
	require.NoError(t, err)

	assert.Equal(t, 0, result.VerbsAdded)
	assert.Equal(t, 1, result.VerbsUpdated)
	assert.Equal(t, 1, result.VerbsUnchanged)
	assert.Equal(t, 0, result.VerbsRemoved)
	assert.Equal(t, 1, store.upserts)
	assert.Len(t, store.syncLogs, 1)
}

func TestSyncAllIdempotentOnSecondRun(t *testing.T) {
	reg := NewRegistry()
	v := sampleVerb()
	require.NoError(t, reg.Add(v))

	store := newFakeStore(map[string]string{})
	svc := NewSyncService(store)

	first, err := svc.SyncAll(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, 1, first.VerbsAdded)

	second, err := svc.SyncAll(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, 0, second.VerbsAdded)
	assert.Equal(t, 0, second.VerbsUpdated)
	assert.Equal(t, 1, second.VerbsUnchanged)
}

func TestSyncAllReportsOrphanedVerbs(t *testing.T) {
	reg := NewRegistry()
	store := newFakeStore(map[string]string{"legacy.verb": "somehash"})
	svc := NewSyncService(store)

	result, err := svc.SyncAll(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, 1, result.VerbsRemoved)
}

func TestHashRegistryDeterministicAcrossRuns(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(sampleVerb()))

	h1 := HashRegistry(reg)
	h2 := HashRegistry(reg)
	assert.Equal(t, h1, h2)
}
