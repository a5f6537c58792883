// Package entityresolve maps free-form entity references to canonical
// IDs via the EntityGateway's Combined search (spec §4.7), classifying
// the outcome as Resolved, Ambiguous, Failed, or Deferred. Grounded on
// the original implementation's search_engine.rs scoring and resolution
// logic, adapted to the abstract Search RPC of spec §6.2.
package entityresolve

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// T_exact and T_ambiguous are tunable per spec §9 Open Question
// "Exact thresholds T_exact, T_ambiguous ... the spec fixes their
// relationship but not their values." Kept as package vars, not
// constants, so a deployment can retune without a rebuild of callers
// that hold a *testing.T closure over them.
var (
	TExact     = 0.85
	TAmbiguous = 0.55

	// ambiguityGap is the minimum separation between the top two scores
	// required to treat the top score as a definite match even when it
	// clears TExact; below this gap the match is ambiguous regardless of
	// how high the top score is, unless the top match is an exact-kind
	// match and the runner-up is not (exact wins ties).
	ambiguityGap = 0.1
)

// SearchMode mirrors the EntityGateway's three search strategies (spec
// §6.2); the resolver always calls Combined.
type SearchMode string

const (
	ModeExact    SearchMode = "Exact"
	ModeFuzzy    SearchMode = "Fuzzy"
	ModeCombined SearchMode = "Combined"
)

// MatchKind classifies how a candidate was found. The abstract protocol
// in spec §6.2 does not itself carry this per-match, but the tie-break
// rule ("a tag whose type is exact always wins ties") needs it, so
// gateway implementations populate it on a best-effort basis; an empty
// Kind is treated as Fuzzy.
type MatchKind string

const (
	MatchExact    MatchKind = "exact"
	MatchFuzzy    MatchKind = "fuzzy"
	MatchSemantic MatchKind = "semantic"
)

// SearchRequest is the single RPC the resolver issues to EntityGateway.
type SearchRequest struct {
	Nickname  string
	Values    []string
	SearchKey string
	Mode      SearchMode
	Limit     int
}

// Match is one candidate returned by EntityGateway. Data carries the
// candidate's discriminator field values (e.g. "dob", "nationality")
// when the gateway implementation supplies them, enabling the
// discriminator-boost scoring in discriminator.go; it is empty when the
// gateway does not support discriminator lookups.
type Match struct {
	Token   string
	Display string
	Score   float64
	Kind    MatchKind
	Data    map[string]string
}

// SearchResponse is the EntityGateway's reply.
type SearchResponse struct {
	Matches []Match
}

// GatewayClient is the resolver's sole external collaborator.
type GatewayClient interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// ResolutionSource records how a Resolved entity was matched (spec
// §4.9.2).
type ResolutionSource string

const (
	TagExact    ResolutionSource = "TagExact"
	TagFuzzy    ResolutionSource = "TagFuzzy"
	TagSemantic ResolutionSource = "TagSemantic"
)

// Outcome is the resolver's four-way classification (spec §4.7).
type Outcome int

const (
	Resolved Outcome = iota
	Ambiguous
	Failed
	Deferred
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "Resolved"
	case Ambiguous:
		return "Ambiguous"
	case Failed:
		return "Failed"
	case Deferred:
		return "Deferred"
	default:
		return "Unknown"
	}
}

// ResolvedEntity is one canonical match chosen by scoring.
type ResolvedEntity struct {
	EntityID         string
	EntityName       string
	Source           ResolutionSource
	Confidence       float64
}

// Candidate is one plausible-but-not-definite match, carried verbatim
// when the outcome is Ambiguous so a picker can choose among them.
type Candidate struct {
	EntityID   string
	EntityName string
	Score      float64
}

// Result is the outcome of one Resolve call.
type Result struct {
	Outcome       Outcome
	Resolved      []ResolvedEntity
	Candidates    []Candidate
	FailureReason string
}

// DiscriminatorQuery supplements the primary free-text search with
// selectivity-weighted discriminator fields (e.g. date of birth,
// nationality) the way search_engine.rs's score_match does: it boosts
// confidence for candidates that have a matching discriminator value,
// without itself being the primary search signal.
type DiscriminatorQuery struct {
	Field     string
	Value     string
	Mode      DateMatchMode
	Required  bool
	Selectivity float64 // 0..1, higher = more discriminating
}

// Resolve implements spec §4.7's Combined-search contract. rawValue that
// begins with "@" is a symbol reference and is always Deferred without
// contacting the gateway. Gateway errors (timeouts, unavailability) are
// returned as a Go error, distinct from the resolver's own Failed
// outcome for "searched but found nothing usable."
func Resolve(ctx context.Context, gw GatewayClient, clientGroupID, persona, rawValue string, kindHints []string, discriminators ...DiscriminatorQuery) (*Result, error) {
	if strings.HasPrefix(rawValue, "@") {
		return &Result{Outcome: Deferred}, nil
	}

	req := SearchRequest{
		Nickname:  clientGroupID,
		Values:    []string{rawValue},
		SearchKey: persona,
		Mode:      ModeCombined,
		Limit:     20,
	}
	resp, err := gw.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("entity gateway search for %q: %w", rawValue, err)
	}

	matches := applyDiscriminators(resp.Matches, discriminators)
	if hasRequiredMismatch(matches, discriminators) {
		matches = filterRequiredDiscriminators(matches, discriminators)
	}

	sortMatches(matches)

	if len(matches) == 0 {
		return &Result{Outcome: Failed, FailureReason: "no candidates returned by entity gateway"}, nil
	}

	top := matches[0]
	if top.Score >= TExact {
		if len(matches) > 1 && (top.Score-matches[1].Score) < ambiguityGap &&
			!(top.Kind == MatchExact && matches[1].Kind != MatchExact) {
			return &Result{Outcome: Ambiguous, Candidates: toCandidates(aboveThreshold(matches, TAmbiguous))}, nil
		}
		return &Result{Outcome: Resolved, Resolved: []ResolvedEntity{{
			EntityID:   top.Token,
			EntityName: top.Display,
			Source:     matchSource(top.Kind),
			Confidence: top.Score,
		}}}, nil
	}

	if top.Score >= TAmbiguous {
		return &Result{Outcome: Ambiguous, Candidates: toCandidates(aboveThreshold(matches, TAmbiguous))}, nil
	}

	return &Result{Outcome: Failed, FailureReason: fmt.Sprintf("best score %.3f below ambiguity threshold %.3f", top.Score, TAmbiguous)}, nil
}

func matchSource(k MatchKind) ResolutionSource {
	switch k {
	case MatchExact:
		return TagExact
	case MatchSemantic:
		return TagSemantic
	default:
		return TagFuzzy
	}
}

// sortMatches orders by score descending; ties are broken by MatchKind,
// exact beating fuzzy/semantic (spec §4.7 "a tag whose type is exact
// always wins ties").
func sortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return kindRank(matches[i].Kind) < kindRank(matches[j].Kind)
	})
}

func kindRank(k MatchKind) int {
	switch k {
	case MatchExact:
		return 0
	case MatchFuzzy:
		return 1
	case MatchSemantic:
		return 2
	default:
		return 1
	}
}

func aboveThreshold(matches []Match, threshold float64) []Match {
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.Score >= threshold {
			out = append(out, m)
		}
	}
	return out
}

func toCandidates(matches []Match) []Candidate {
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		out = append(out, Candidate{EntityID: m.Token, EntityName: m.Display, Score: m.Score})
	}
	return out
}
