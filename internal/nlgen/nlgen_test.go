package nlgen

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamtc007/ob-poc-sub006/internal/verbregistry"
)

func TestNewWithEmptyAPIKeyReturnsNilGenerator(t *testing.T) {
	gen, err := New(nil, "")
	require.NoError(t, err)
	assert.Nil(t, gen)
}

func TestGenerateOnNilGeneratorErrors(t *testing.T) {
	var gen *Generator
	_, err := gen.Generate(nil, "do something", "", verbregistry.NewRegistry())
	require.Error(t, err)
}

func TestBuildPromptFiltersByDomain(t *testing.T) {
	reg := verbregistry.NewRegistry()
	require.NoError(t, reg.Add(&verbregistry.RuntimeVerb{Domain: "case", Verb: "create", Description: "Create a case"}))
	require.NoError(t, reg.Add(&verbregistry.RuntimeVerb{Domain: "kyc", Verb: "start", Description: "Start KYC"}))

	prompt := buildPrompt("open a case for Acme", "case", reg)
	assert.Contains(t, prompt, "case.create: Create a case")
	assert.NotContains(t, prompt, "kyc.start")
}

func TestBuildPromptIncludesWholeCatalogueWithoutDomainFilter(t *testing.T) {
	reg := verbregistry.NewRegistry()
	require.NoError(t, reg.Add(&verbregistry.RuntimeVerb{Domain: "case", Verb: "create", Description: "Create a case"}))
	require.NoError(t, reg.Add(&verbregistry.RuntimeVerb{Domain: "kyc", Verb: "start", Description: "Start KYC"}))

	prompt := buildPrompt("do something", "", reg)
	assert.Contains(t, prompt, "case.create")
	assert.Contains(t, prompt, "kyc.start")
}

func TestStripCodeFenceRemovesFencedBlock(t *testing.T) {
	in := "```\n(case.create :name \"Acme\")\n```"
	assert.Equal(t, `(case.create :name "Acme")`, stripCodeFence(in))
}

func TestStripCodeFenceLeavesPlainSourceUnchanged(t *testing.T) {
	in := `(case.create :name "Acme")`
	assert.Equal(t, in, stripCodeFence(in))
}

func TestExtractTextConcatenatesParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("(case.create"), genai.Text(" :name \"Acme\")")}}},
		},
	}
	assert.Equal(t, `(case.create :name "Acme")`, extractText(resp))
}

func TestExtractTextHandlesNilResponse(t *testing.T) {
	assert.Equal(t, "", extractText(nil))
}
