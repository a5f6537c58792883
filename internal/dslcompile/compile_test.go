package dslcompile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamtc007/ob-poc-sub006/internal/dslparser"
)

func mustParse(t *testing.T, src string) *dslparser.Program {
	t.Helper()
	prog, err := dslparser.ParseProgram(src)
	require.NoError(t, err)
	return prog
}

func TestCompileSingleVerbCall(t *testing.T) {
	prog := mustParse(t, `(cbu.create :name "Acme Corp" :jurisdiction UK)`)
	plan, err := Compile(prog)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)

	step := plan.Steps[0]
	assert.Equal(t, "cbu.create", step.FQN)
	assert.Equal(t, "cbu", step.Domain)
	assert.Equal(t, "create", step.Verb)
	assert.False(t, step.Explicit)
	assert.Equal(t, "__step0", step.BindAs)

	assert.Equal(t, Value{Kind: KindString, Str: "Acme Corp"}, step.Args["name"])
	assert.Equal(t, Value{Kind: KindEntityRef, Str: "UK"}, step.Args["jurisdiction"])
}

func TestCompileExplicitCapture(t *testing.T) {
	prog := mustParse(t, `(cbu.create :name "Acme" :as @cbu)`)
	plan, err := Compile(prog)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.True(t, plan.Steps[0].Explicit)
	assert.Equal(t, "cbu", plan.Steps[0].BindAs)
}

func TestCompileSymbolReferenceFollowsSourceOrder(t *testing.T) {
	prog := mustParse(t, `
		(cbu.create :name "Acme" :as @cbu)
		(kyc.begin :cbu_id @cbu :as @case)
	`)
	plan, err := Compile(prog)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)

	assert.Equal(t, "cbu.create", plan.Steps[0].FQN)
	assert.Equal(t, "kyc.begin", plan.Steps[1].FQN)
	assert.Equal(t, Value{Kind: KindSymbolRef, SymbolRef: "cbu"}, plan.Steps[1].Args["cbu_id"])
}

func TestCompileNestedVerbCallHoistedBeforeConsumer(t *testing.T) {
	prog := mustParse(t, `(kyc.begin :cbu (cbu.lookup :name "Acme"))`)
	plan, err := Compile(prog)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)

	nested := plan.Steps[0]
	outer := plan.Steps[1]
	assert.Equal(t, "cbu.lookup", nested.FQN)
	assert.Equal(t, "kyc.begin", outer.FQN)
	assert.False(t, nested.Explicit)
	assert.Equal(t, Value{Kind: KindSymbolRef, SymbolRef: nested.BindAs}, outer.Args["cbu"])
}

func TestCompileListAndMapLiterals(t *testing.T) {
	prog := mustParse(t, `(doc.collect :tags ["a" "b"] :meta {:owner "alice" :priority 1})`)
	plan, err := Compile(prog)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)

	step := plan.Steps[0]
	tags := step.Args["tags"]
	require.Equal(t, KindList, tags.Kind)
	require.Len(t, tags.List, 2)
	assert.Equal(t, Value{Kind: KindString, Str: "a"}, tags.List[0])

	meta := step.Args["meta"]
	require.Equal(t, KindMap, meta.Kind)
	require.Len(t, meta.Map, 2)
	assert.Equal(t, "owner", meta.Map[0].Key)
	assert.Equal(t, Value{Kind: KindString, Str: "alice"}, meta.Map[0].Value)
	assert.Equal(t, "priority", meta.Map[1].Key)
	assert.Equal(t, Value{Kind: KindInt, Int: 1}, meta.Map[1].Value)
}

func TestCompileHasArg(t *testing.T) {
	prog := mustParse(t, `(cbu.create :name "Acme")`)
	plan, err := Compile(prog)
	require.NoError(t, err)
	assert.True(t, plan.Steps[0].HasArg("name"))
	assert.False(t, plan.Steps[0].HasArg("missing"))
}
