package gatewayclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamtc007/ob-poc-sub006/internal/entityresolve"
)

func TestSearchPostsAndDecodesMatches(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(searchResponse{Matches: []entityresolve.Match{
			{Token: "tok-1", Display: "Acme Corp", Score: 0.97, Kind: entityresolve.MatchExact},
		}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.Search(context.Background(), entityresolve.SearchRequest{
		Nickname: "cbu", Values: []string{"Acme Corp"}, Mode: entityresolve.ModeCombined, Limit: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, "/search", gotPath)
	assert.Equal(t, "cbu", gotBody["nickname"])
	assert.Equal(t, "Combined", gotBody["mode"])
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "tok-1", resp.Matches[0].Token)
	assert.Equal(t, 0.97, resp.Matches[0].Score)
}

func TestSearchMapsNon2xxToError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("gateway unavailable"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Search(context.Background(), entityresolve.SearchRequest{Nickname: "cbu", Values: []string{"x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway error 500")
}
