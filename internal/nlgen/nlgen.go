// Package nlgen is the natural-language path of the `dsl_generate` tool
// (spec §6.3): an instruction in, proposed DSL source plus a validation
// report out. The LLM provider is an explicit external collaborator
// (spec §1 "explicitly out of scope"), reached only through this narrow
// seam. Lifecycle adapted from the teacher's internal/agent.Agent
// (NewAgent(ctx, apiKey)/Close()), with the GEMINI_API_KEY/GOOGLE_API_KEY
// fallback from the teacher's main.go getAPIKey().
package nlgen

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/adamtc007/ob-poc-sub006/internal/dslparser"
	"github.com/adamtc007/ob-poc-sub006/internal/dslvalidate"
	"github.com/adamtc007/ob-poc-sub006/internal/verbregistry"
)

// Generator turns a natural-language instruction into a proposed DSL
// program, backed by Gemini.
type Generator struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// New initializes the Gemini client. If apiKey is empty the caller
// receives a nil Generator and no error, so callers can decide how to
// handle a missing configuration (matches the teacher's NewAgent
// contract exactly).
func New(ctx context.Context, apiKey string) (*Generator, error) {
	if apiKey == "" {
		return nil, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	model := client.GenerativeModel("gemini-2.5-flash-preview-09-2025")
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
	}
	return &Generator{client: client, model: model}, nil
}

// Close releases the underlying client.
func (g *Generator) Close() {
	if g == nil || g.client == nil {
		return
	}
	if err := g.client.Close(); err != nil {
		log.Printf("warning: failed to close Gemini client: %v", err)
	}
}

// Result is the `dsl_generate` tool's output (spec §6.3): the proposed
// DSL source plus its validation report against the current registry.
type Result struct {
	ProposedDSL string
	Report      *dslvalidate.Report
	ParseError  error
}

// Generate asks the model to produce DSL source for instruction scoped
// to domain (if non-empty), then parses and validates the result against
// reg before returning it — the tool never lets unvalidated LLM output
// reach the runbook service directly.
func (g *Generator) Generate(ctx context.Context, instruction, domain string, reg *verbregistry.Registry) (*Result, error) {
	if g == nil || g.model == nil {
		return nil, fmt.Errorf("nlgen generator is not initialized (missing GEMINI_API_KEY/GOOGLE_API_KEY)")
	}

	prompt := buildPrompt(instruction, domain, reg)
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("generating DSL from instruction: %w", err)
	}
	raw := extractText(resp)
	dslSrc := strings.TrimSpace(stripCodeFence(raw))

	result := &Result{ProposedDSL: dslSrc}
	prog, perr := dslparser.ParseProgram(dslSrc)
	if perr != nil {
		result.ParseError = perr
		return result, nil
	}
	result.Report = dslvalidate.Validate(prog, reg, nil)
	return result, nil
}

func buildPrompt(instruction, domain string, reg *verbregistry.Registry) string {
	var b strings.Builder
	b.WriteString("You translate a user's instruction into one or more calls in a governed S-expression DSL.\n")
	b.WriteString("Only use verbs from the following catalogue, in the form (domain.verb :arg value ...):\n")
	for _, v := range reg.AllVerbs() {
		if domain != "" && v.Domain != domain {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", v.FullName(), v.Description)
	}
	b.WriteString("Respond with DSL source only, no prose, no markdown fences.\n")
	b.WriteString("Instruction: ")
	b.WriteString(instruction)
	return b.String()
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
	}
	return b.String()
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		if len(lines) > 1 {
			lines = lines[1:]
		}
		s = strings.Join(lines, "\n")
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	return s
}
