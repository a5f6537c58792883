package dslparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgramSingleVerbCall(t *testing.T) {
	prog, err := ParseProgram(`(cbu.create :name "Acme Corp" :jurisdiction UK)`)
	require.NoError(t, err)

	calls := prog.VerbCalls()
	require.Len(t, calls, 1)

	call := calls[0]
	assert.Equal(t, "cbu", call.Domain)
	assert.Equal(t, "create", call.Verb)
	require.Len(t, call.Children, 2)

	nameArg := call.Children[0]
	assert.Equal(t, KeywordArgNode, nameArg.Type)
	assert.Equal(t, "name", nameArg.Value)
	assert.Equal(t, StringNode, nameArg.Children[0].Type)
	assert.Equal(t, "Acme Corp", nameArg.Children[0].Value)

	jurisdictionArg := call.Children[1]
	assert.Equal(t, "jurisdiction", jurisdictionArg.Value)
	assert.Equal(t, EntityRefNode, jurisdictionArg.Children[0].Type)
	assert.Equal(t, "UK", jurisdictionArg.Children[0].Value)
}

func TestParseProgramCaptureAs(t *testing.T) {
	prog, err := ParseProgram(`(cbu.create :name "Acme" :as @cbu)`)
	require.NoError(t, err)

	calls := prog.VerbCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "cbu", calls[0].CaptureAs)
	assert.Equal(t, []string{"cbu"}, prog.SymbolCaptures())
}

func TestParseProgramSymbolReference(t *testing.T) {
	prog, err := ParseProgram(`
		(cbu.create :name "Acme" :as @cbu)
		(kyc.begin :cbu_id @cbu :as @case)
	`)
	require.NoError(t, err)

	refs := prog.SymbolReferences()
	require.Len(t, refs, 1)
	assert.Equal(t, "cbu", refs[0].Value)

	assert.Equal(t, []string{"cbu", "case"}, prog.SymbolCaptures())
}

func TestParseProgramNestedVerbCallAsValue(t *testing.T) {
	prog, err := ParseProgram(`(kyc.begin :cbu (cbu.lookup :name "Acme"))`)
	require.NoError(t, err)

	calls := prog.VerbCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "kyc", calls[0].Domain)
	assert.Equal(t, "cbu", calls[1].Domain)
	assert.Equal(t, "lookup", calls[1].Verb)
}

func TestParseProgramList(t *testing.T) {
	prog, err := ParseProgram(`(cbu.tag :labels [high-risk, "needs review", 3])`)
	require.NoError(t, err)

	arg := prog.VerbCalls()[0].Children[0]
	list := arg.Children[0]
	require.Equal(t, ListNode, list.Type)
	require.Len(t, list.Children, 3)
	assert.Equal(t, EntityRefNode, list.Children[0].Type)
	assert.Equal(t, StringNode, list.Children[1].Type)
	assert.Equal(t, IntNode, list.Children[2].Type)
}

func TestParseProgramMap(t *testing.T) {
	prog, err := ParseProgram(`(cbu.create :attrs {:risk_rating high :score 42})`)
	require.NoError(t, err)

	arg := prog.VerbCalls()[0].Children[0]
	m := arg.Children[0]
	require.Equal(t, MapNode, m.Type)
	require.Len(t, m.Children, 2)
	assert.Equal(t, "risk_rating", m.Children[0].Value)
	assert.Equal(t, "score", m.Children[1].Value)
	assert.Equal(t, IntNode, m.Children[1].Children[0].Type)
}

func TestParseProgramUUIDLiteral(t *testing.T) {
	prog, err := ParseProgram(`(cbu.get :cbu_id 3fa85f64-5717-4562-b3fc-2c963f66afa6)`)
	require.NoError(t, err)

	val := prog.VerbCalls()[0].Children[0].Children[0]
	assert.Equal(t, UUIDNode, val.Type)
}

func TestParseProgramBoolAndNullLiterals(t *testing.T) {
	prog, err := ParseProgram(`(cbu.create :active true :parent null)`)
	require.NoError(t, err)

	call := prog.VerbCalls()[0]
	assert.Equal(t, BoolNode, call.Children[0].Children[0].Type)
	assert.Equal(t, NullNode, call.Children[1].Children[0].Type)
}

func TestParseProgramDecimalLiteral(t *testing.T) {
	prog, err := ParseProgram(`(fund.record_nav :value 101.25)`)
	require.NoError(t, err)
	val := prog.VerbCalls()[0].Children[0].Children[0]
	assert.Equal(t, DecimalNode, val.Type)
	assert.Equal(t, "101.25", val.Value)
}

func TestParseProgramLineComments(t *testing.T) {
	prog, err := ParseProgram(`
		; create the CBU first
		(cbu.create :name "Acme") ; trailing comment
	`)
	require.NoError(t, err)
	require.Len(t, prog.VerbCalls(), 1)
}

func TestParseSingleVerb(t *testing.T) {
	node, err := ParseSingleVerb(`(cbu.create :name "Acme")`)
	require.NoError(t, err)
	assert.Equal(t, "cbu", node.Domain)
	assert.Equal(t, "create", node.Verb)
}

func TestParseSingleVerbRejectsTrailingContent(t *testing.T) {
	_, err := ParseSingleVerb(`(cbu.create :name "Acme") (kyc.begin)`)
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrSyntax, pe.Code)
}

func TestParseProgramRejectsEmptyInput(t *testing.T) {
	_, err := ParseProgram(`   `)
	require.Error(t, err)
}

func TestParseProgramRejectsMissingDot(t *testing.T) {
	_, err := ParseProgram(`(create :name "Acme")`)
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrSyntax, pe.Code)
}

func TestParseProgramRejectsUnterminatedCall(t *testing.T) {
	_, err := ParseProgram(`(cbu.create :name "Acme"`)
	require.Error(t, err)
}

func TestParseProgramRejectsUnterminatedString(t *testing.T) {
	_, err := ParseProgram(`(cbu.create :name "Acme)`)
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrLex, pe.Code)
}

func TestParseProgramStringEscapes(t *testing.T) {
	prog, err := ParseProgram(`(cbu.create :name "Line1\nLine2 \"quoted\"")`)
	require.NoError(t, err)
	val := prog.VerbCalls()[0].Children[0].Children[0]
	assert.Equal(t, "Line1\nLine2 \"quoted\"", val.Value)
}

func TestParseProgramTracksPosition(t *testing.T) {
	_, err := ParseProgram("(cbu.create\n  :name)")
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)
}
