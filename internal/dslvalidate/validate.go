// Package dslvalidate implements the staged semantic/policy validator
// (syntax -> vocabulary -> semantic -> dataflow/CSG -> governance) that
// produces a diagnostic report for a parsed program. Staging and
// severity-keyed diagnostics are grounded on the original agent's
// DslValidator/SyntaxValidator/VerbValidator/SemanticValidator pipeline;
// the Go-level error wrapping and "is this verb in scope" check follow
// the teacher's internal/dsl/validator.go.
package dslvalidate

import (
	"fmt"
	"sort"

	"github.com/adamtc007/ob-poc-sub006/internal/dslparser"
	"github.com/adamtc007/ob-poc-sub006/internal/verbregistry"
)

// Severity mirrors spec §4.4: every stage returns diagnostics with one
// of these three severities.
type Severity string

const (
	SeverityError   Severity = "Error"
	SeverityWarning Severity = "Warning"
	SeverityInfo    Severity = "Info"
)

// Stage identifies which pipeline stage produced a Diagnostic.
type Stage string

const (
	StageSyntax    Stage = "syntax"
	StageVocab     Stage = "vocabulary"
	StageSemantic  Stage = "semantic"
	StageDataflow  Stage = "dataflow"
	StageGovernance Stage = "governance"
)

// Diagnostic codes. Named by what they report, not by spec tag.
const (
	CodeUnknownVerb          = "UNKNOWN_VERB"
	CodeUnknownArg           = "UNKNOWN_ARG"
	CodeMissingRequiredArg   = "MISSING_REQUIRED_ARG"
	CodeWrongArgType         = "WRONG_ARG_TYPE"
	CodeInvalidValidValue    = "INVALID_VALID_VALUE"
	CodeMalformedLookup      = "MALFORMED_LOOKUP"
	CodeUndefinedReference   = "UNDEFINED_REFERENCE"
	CodeUnusedCapture        = "UNUSED_CAPTURE"
	CodeSelfReferentialCycle = "SELF_REFERENTIAL_CYCLE"
	CodeLifecycleUnverifiable = "LIFECYCLE_UNVERIFIABLE"
	CodeLifecycleViolation   = "LIFECYCLE_VIOLATION"
)

// Diagnostic is one finding from a single validation stage.
type Diagnostic struct {
	Stage      Stage
	Severity   Severity
	Code       string
	Message    string
	Line       int
	Column     int
	Suggestion string
}

// Report is the full set of diagnostics produced across every stage
// that ran. The validator never rewrites the AST (spec §4.4); callers
// decide whether warnings block staging.
type Report struct {
	Diagnostics []Diagnostic
}

// HasErrors reports whether any diagnostic carries SeverityError.
func (r *Report) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the Error-severity diagnostics.
func (r *Report) Errors() []Diagnostic {
	return r.filter(SeverityError)
}

// Warnings returns only the Warning-severity diagnostics.
func (r *Report) Warnings() []Diagnostic {
	return r.filter(SeverityWarning)
}

func (r *Report) filter(sev Severity) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == sev {
			out = append(out, d)
		}
	}
	return out
}

func (r *Report) add(stage Stage, sev Severity, code, msg string, line, col int, suggestion string) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{
		Stage: stage, Severity: sev, Code: code, Message: msg,
		Line: line, Column: col, Suggestion: suggestion,
	})
}

// VerbLookup resolves a full verb name against whatever scope the
// caller wants enforced -- a SessionVerbSurface for in-session staging,
// or the full Registry for out-of-session validation (spec §4.4 step 2).
type VerbLookup interface {
	Get(fullName string) (*verbregistry.RuntimeVerb, bool)
	AllFullNames() []string
}

// EntityStateLookup supplies the known lifecycle state of an entity, if
// any is available. The governance stage treats an unknown state as
// unverifiable rather than as a failure (spec §4.4 step 5).
type EntityStateLookup interface {
	State(entityID string) (state string, known bool)
}

// Validate runs every stage of the pipeline against an already-parsed
// program. lookup and entityStates may be nil; a nil entityStates means
// every lifecycle check is reported as unverifiable.
func Validate(prog *dslparser.Program, lookup VerbLookup, entityStates EntityStateLookup) *Report {
	report := &Report{}

	calls := prog.VerbCalls()
	validateVocabulary(calls, lookup, report)
	validateSemantics(calls, lookup, report)
	validateDataflow(prog, report)
	validateGovernance(calls, lookup, entityStates, report)

	return report
}

// validateVocabulary implements spec §4.4 stage 2: every verb FQN must
// exist in scope; suggests a close alternative when one exists.
func validateVocabulary(calls []*dslparser.Node, lookup VerbLookup, report *Report) {
	if lookup == nil {
		return
	}
	for _, call := range calls {
		if _, ok := lookup.Get(call.Value); ok {
			continue
		}
		suggestion := closestFullName(call.Value, lookup.AllFullNames())
		msg := fmt.Sprintf("verb %q is not in scope", call.Value)
		report.add(StageVocab, SeverityError, CodeUnknownVerb, msg, call.Line, call.Column, suggestion)
	}
}

// validateSemantics implements spec §4.4 stage 3: type-check each
// argument against its declared type; required args present;
// valid_values enforced; lookup references well-formed.
func validateSemantics(calls []*dslparser.Node, lookup VerbLookup, report *Report) {
	if lookup == nil {
		return
	}
	for _, call := range calls {
		verb, ok := lookup.Get(call.Value)
		if !ok {
			continue // already reported by the vocabulary stage
		}

		argByName := make(map[string]*dslparser.Node, len(call.Children))
		for _, argNode := range call.Children {
			argByName[argNode.Value] = argNode
			if !hasArg(verb, argNode.Value) {
				msg := fmt.Sprintf("%s does not accept argument %q", call.Value, argNode.Value)
				report.add(StageSemantic, SeverityWarning, CodeUnknownArg, msg, argNode.Line, argNode.Column, "")
			}
		}

		for _, decl := range verb.Args {
			argNode, present := argByName[decl.Name]
			if !present {
				if decl.Required && decl.Default == nil {
					msg := fmt.Sprintf("%s is missing required argument %q", call.Value, decl.Name)
					report.add(StageSemantic, SeverityError, CodeMissingRequiredArg, msg, call.Line, call.Column, "")
				}
				continue
			}
			valueNode := argNode.Children[0]
			if !typeMatches(decl.Type, valueNode) {
				msg := fmt.Sprintf("%s.%s expects %s, got %s", call.Value, decl.Name, decl.Type, describeNodeType(valueNode.Type))
				report.add(StageSemantic, SeverityError, CodeWrongArgType, msg, valueNode.Line, valueNode.Column, "")
				continue
			}
			if len(decl.ValidValues) > 0 && valueNode.Type != dslparser.SymbolRefNode && !inValidValues(decl.ValidValues, valueNode.Value) {
				msg := fmt.Sprintf("%s.%s value %q is not one of the allowed values", call.Value, decl.Name, valueNode.Value)
				report.add(StageSemantic, SeverityError, CodeInvalidValidValue, msg, valueNode.Line, valueNode.Column, "")
			}
			if decl.Type == verbregistry.ArgEntity && valueNode.Type == dslparser.EntityRefNode && decl.Lookup != nil && decl.Lookup.EntityType == "" {
				msg := fmt.Sprintf("%s.%s is a lookup argument with no entity_type configured", call.Value, decl.Name)
				report.add(StageSemantic, SeverityError, CodeMalformedLookup, msg, valueNode.Line, valueNode.Column, "")
			}
		}
	}
}

// validateDataflow implements spec §4.4 stage 4: the Capture-Scope-Graph
// pass. Evaluation order follows the same nested-call flattening the
// compiler performs, so "prior" matches C5's actual binding order.
func validateDataflow(prog *dslparser.Program, report *Report) {
	order := prog.EvaluationOrder()
	defined := make(map[string]bool)
	used := make(map[string]bool)

	definedAt := make(map[string]*dslparser.Node, len(order))
	for _, call := range order {
		if call.CaptureAs != "" {
			definedAt[call.CaptureAs] = call
		}
	}

	for _, call := range order {
		for _, argNode := range call.Children {
			walkReferences(argNode.Children[0], func(ref *dslparser.Node) {
				used[ref.Value] = true
				if !defined[ref.Value] {
					if target, ok := definedAt[ref.Value]; ok && target == call {
						msg := fmt.Sprintf("@%s cannot be referenced by the same call that captures it", ref.Value)
						report.add(StageDataflow, SeverityError, CodeSelfReferentialCycle, msg, ref.Line, ref.Column, "")
					} else {
						msg := fmt.Sprintf("@%s is referenced before it is captured", ref.Value)
						report.add(StageDataflow, SeverityError, CodeUndefinedReference, msg, ref.Line, ref.Column, "")
					}
				}
			})
		}
		if call.CaptureAs != "" {
			defined[call.CaptureAs] = true
		}
	}

	for name, call := range definedAt {
		if !used[name] {
			msg := fmt.Sprintf("@%s is captured but never referenced", name)
			report.add(StageDataflow, SeverityWarning, CodeUnusedCapture, msg, call.Line, call.Column, "")
		}
	}
}

func walkReferences(n *dslparser.Node, fn func(*dslparser.Node)) {
	if n.Type == dslparser.SymbolRefNode {
		fn(n)
	}
	for _, c := range n.Children {
		walkReferences(c, fn)
	}
}

// validateGovernance implements spec §4.4 stage 5: lifecycle
// preconditions are checked against known entity state; an unknown
// state is an Info diagnostic, not a failure.
func validateGovernance(calls []*dslparser.Node, lookup VerbLookup, states EntityStateLookup, report *Report) {
	if lookup == nil {
		return
	}
	for _, call := range calls {
		verb, ok := lookup.Get(call.Value)
		if !ok || verb.Lifecycle == nil || len(verb.Lifecycle.RequiresStates) == 0 {
			continue
		}
		if states == nil {
			msg := fmt.Sprintf("%s lifecycle precondition cannot be verified without entity state", call.Value)
			report.add(StageGovernance, SeverityInfo, CodeLifecycleUnverifiable, msg, call.Line, call.Column, "")
			continue
		}
		entityArg := findArg(call, verb.Lifecycle.EntityArg)
		if entityArg == nil {
			msg := fmt.Sprintf("%s lifecycle precondition cannot be verified: no value bound for %q", call.Value, verb.Lifecycle.EntityArg)
			report.add(StageGovernance, SeverityInfo, CodeLifecycleUnverifiable, msg, call.Line, call.Column, "")
			continue
		}
		state, known := states.State(entityArg.Children[0].Value)
		if !known {
			msg := fmt.Sprintf("%s lifecycle precondition cannot be verified: state of %q is unknown", call.Value, entityArg.Children[0].Value)
			report.add(StageGovernance, SeverityInfo, CodeLifecycleUnverifiable, msg, call.Line, call.Column, "")
			continue
		}
		if !contains(verb.Lifecycle.RequiresStates, state) {
			msg := fmt.Sprintf("%s requires entity state in %v, found %q", call.Value, verb.Lifecycle.RequiresStates, state)
			report.add(StageGovernance, SeverityError, CodeLifecycleViolation, msg, call.Line, call.Column, "")
		}
	}
}

func findArg(call *dslparser.Node, name string) *dslparser.Node {
	for _, a := range call.Children {
		if a.Value == name {
			return a
		}
	}
	return nil
}

func hasArg(verb *verbregistry.RuntimeVerb, name string) bool {
	for _, a := range verb.Args {
		if a.Name == name {
			return true
		}
	}
	return false
}

func inValidValues(valid []string, v string) bool {
	for _, candidate := range valid {
		if candidate == v {
			return true
		}
	}
	return false
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func describeNodeType(t dslparser.NodeType) string {
	switch t {
	case dslparser.StringNode:
		return "string"
	case dslparser.IntNode:
		return "int"
	case dslparser.DecimalNode:
		return "decimal"
	case dslparser.BoolNode:
		return "bool"
	case dslparser.NullNode:
		return "null"
	case dslparser.UUIDNode:
		return "uuid"
	case dslparser.SymbolRefNode:
		return "symbol-reference"
	case dslparser.EntityRefNode:
		return "entity-reference"
	case dslparser.ListNode:
		return "list"
	case dslparser.MapNode:
		return "map"
	case dslparser.VerbCallNode:
		return "nested-verb-call"
	default:
		return "unknown"
	}
}

// typeMatches reports whether a parsed value node is compatible with a
// declared argument type. A symbol reference is always accepted: its
// real type is only known once the producing step has executed.
func typeMatches(argType verbregistry.ArgType, v *dslparser.Node) bool {
	if v.Type == dslparser.SymbolRefNode {
		return true
	}
	switch argType {
	case verbregistry.ArgString:
		return v.Type == dslparser.StringNode || v.Type == dslparser.EntityRefNode
	case verbregistry.ArgInt:
		return v.Type == dslparser.IntNode
	case verbregistry.ArgFloat:
		return v.Type == dslparser.IntNode || v.Type == dslparser.DecimalNode
	case verbregistry.ArgBool:
		return v.Type == dslparser.BoolNode
	case verbregistry.ArgUUID:
		return v.Type == dslparser.UUIDNode
	case verbregistry.ArgDate:
		return v.Type == dslparser.StringNode
	case verbregistry.ArgEntity:
		return v.Type == dslparser.EntityRefNode || v.Type == dslparser.StringNode || v.Type == dslparser.UUIDNode
	case verbregistry.ArgList:
		return v.Type == dslparser.ListNode
	case verbregistry.ArgMap:
		return v.Type == dslparser.MapNode
	default:
		return true
	}
}

// closestFullName finds the nearest match to target by edit distance,
// returning "" when nothing is within a reasonable distance. Mirrors
// the original agent's verb-suggestion behavior without hard-coding a
// fixed lookup table.
func closestFullName(target string, candidates []string) string {
	best := ""
	bestDist := -1
	for _, c := range candidates {
		d := levenshtein(target, c)
		if d > len(target)/2+1 {
			continue
		}
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = c
		}
	}
	sort.Strings(candidates) // keep AllFullNames() callers' slices stable for any later reuse
	return best
}

func levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}
	prev := make([]int, len(br)+1)
	curr := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ar); i++ {
		curr[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(br)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
