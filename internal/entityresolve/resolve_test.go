package entityresolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	resp *SearchResponse
	err  error
}

func (g *fakeGateway) Search(_ context.Context, _ SearchRequest) (*SearchResponse, error) {
	return g.resp, g.err
}

func TestResolveDeferredOnSymbolReference(t *testing.T) {
	result, err := Resolve(context.Background(), &fakeGateway{}, "cg1", "", "@cbu", nil)
	require.NoError(t, err)
	assert.Equal(t, Deferred, result.Outcome)
}

func TestResolveSingleHighConfidenceMatch(t *testing.T) {
	gw := &fakeGateway{resp: &SearchResponse{Matches: []Match{
		{Token: "id-1", Display: "John Smith", Score: 0.95, Kind: MatchExact},
	}}}
	result, err := Resolve(context.Background(), gw, "cg1", "", "John Smith", nil)
	require.NoError(t, err)
	require.Equal(t, Resolved, result.Outcome)
	require.Len(t, result.Resolved, 1)
	assert.Equal(t, "id-1", result.Resolved[0].EntityID)
	assert.Equal(t, TagExact, result.Resolved[0].Source)
}

func TestResolveAmbiguousOnCloseScores(t *testing.T) {
	gw := &fakeGateway{resp: &SearchResponse{Matches: []Match{
		{Token: "id-1", Display: "John Smith", Score: 0.91, Kind: MatchFuzzy},
		{Token: "id-2", Display: "John Smyth", Score: 0.87, Kind: MatchFuzzy},
	}}}
	result, err := Resolve(context.Background(), gw, "cg1", "", "John Smith", nil)
	require.NoError(t, err)
	require.Equal(t, Ambiguous, result.Outcome)
	assert.Len(t, result.Candidates, 2)
}

func TestResolveAmbiguousBetweenThresholds(t *testing.T) {
	gw := &fakeGateway{resp: &SearchResponse{Matches: []Match{
		{Token: "id-1", Display: "J. Smith", Score: 0.7, Kind: MatchFuzzy},
		{Token: "id-2", Display: "J. Smyth", Score: 0.6, Kind: MatchFuzzy},
	}}}
	result, err := Resolve(context.Background(), gw, "cg1", "", "J Smith", nil)
	require.NoError(t, err)
	require.Equal(t, Ambiguous, result.Outcome)
	assert.Len(t, result.Candidates, 2)
}

func TestResolveFailedBelowThreshold(t *testing.T) {
	gw := &fakeGateway{resp: &SearchResponse{Matches: []Match{
		{Token: "id-1", Display: "Nobody", Score: 0.2, Kind: MatchSemantic},
	}}}
	result, err := Resolve(context.Background(), gw, "cg1", "", "xyz", nil)
	require.NoError(t, err)
	assert.Equal(t, Failed, result.Outcome)
	assert.NotEmpty(t, result.FailureReason)
}

func TestResolveFailedOnEmptyMatches(t *testing.T) {
	gw := &fakeGateway{resp: &SearchResponse{}}
	result, err := Resolve(context.Background(), gw, "cg1", "", "ghost", nil)
	require.NoError(t, err)
	assert.Equal(t, Failed, result.Outcome)
}

func TestResolveExactTieBreaksOverFuzzy(t *testing.T) {
	gw := &fakeGateway{resp: &SearchResponse{Matches: []Match{
		{Token: "id-fuzzy", Display: "fuzzy", Score: 0.9, Kind: MatchFuzzy},
		{Token: "id-exact", Display: "exact", Score: 0.9, Kind: MatchExact},
	}}}
	result, err := Resolve(context.Background(), gw, "cg1", "", "thing", nil)
	require.NoError(t, err)
	require.Equal(t, Resolved, result.Outcome)
	assert.Equal(t, "id-exact", result.Resolved[0].EntityID)
}

func TestResolvePropagatesGatewayError(t *testing.T) {
	gw := &fakeGateway{err: assertErr{}}
	_, err := Resolve(context.Background(), gw, "cg1", "", "thing", nil)
	require.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "gateway unavailable" }

func TestResolveRequiredDiscriminatorExcludesMismatch(t *testing.T) {
	gw := &fakeGateway{resp: &SearchResponse{Matches: []Match{
		{Token: "id-1", Display: "John Smith", Score: 0.9, Kind: MatchFuzzy, Data: map[string]string{"nationality": "GB"}},
		{Token: "id-2", Display: "John Smith", Score: 0.89, Kind: MatchFuzzy, Data: map[string]string{"nationality": "US"}},
	}}}
	result, err := Resolve(context.Background(), gw, "cg1", "", "John Smith", nil,
		DiscriminatorQuery{Field: "nationality", Value: "US", Required: true, Selectivity: 0.8})
	require.NoError(t, err)
	require.Equal(t, Resolved, result.Outcome)
	assert.Equal(t, "id-2", result.Resolved[0].EntityID)
}

func TestExtractYearAndNormalizeDate(t *testing.T) {
	y, ok := ExtractYear("1980-01-15")
	require.True(t, ok)
	assert.Equal(t, 1980, y)

	y, ok = ExtractYear("1980")
	require.True(t, ok)
	assert.Equal(t, 1980, y)

	assert.Equal(t, "1980-01-15", NormalizeDate("1980-01-15"))
	assert.Equal(t, "1980", NormalizeDate("1980"))
}

func TestCompareDatesModes(t *testing.T) {
	assert.Equal(t, 1.0, CompareDates("1980-01-15", "1980-01-15", DateExact))
	assert.Equal(t, 0.0, CompareDates("1980-01-15", "1981-01-15", DateExact))
	assert.Equal(t, 1.0, CompareDates("1980-01-15", "1980-06-30", DateYearOnly))
	assert.Equal(t, 0.8, CompareDates("1980-01-15", "1980-06-30", DateYearOrExact))
	assert.Equal(t, 1.0, CompareDates("1980-01-15", "1980-01-15", DateYearOrExact))
}
