// Package gatewayclient is a minimal HTTP client for the EntityGateway
// Search RPC (spec §6.2), the sole external collaborator of
// internal/entityresolve. Shape ported from the teacher's
// internal/rustclient.Client (baseURL + *http.Client, one method per RPC,
// a post helper, HTTP status >= 400 mapped to an error).
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adamtc007/ob-poc-sub006/internal/entityresolve"
)

// Client implements entityresolve.GatewayClient over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a Client against baseURL (spec §6.4 GATEWAY_ADDR).
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type searchRequest struct {
	Nickname  string                  `json:"nickname"`
	Values    []string                `json:"values"`
	SearchKey string                  `json:"search_key,omitempty"`
	Mode      entityresolve.SearchMode `json:"mode"`
	Limit     int                     `json:"limit,omitempty"`
}

type searchResponse struct {
	Matches []entityresolve.Match `json:"matches"`
}

// Search implements entityresolve.GatewayClient via POST /search.
func (c *Client) Search(ctx context.Context, req entityresolve.SearchRequest) (*entityresolve.SearchResponse, error) {
	body := searchRequest{
		Nickname:  req.Nickname,
		Values:    req.Values,
		SearchKey: req.SearchKey,
		Mode:      req.Mode,
		Limit:     req.Limit,
	}
	var resp searchResponse
	if err := c.post(ctx, "/search", body, &resp); err != nil {
		return nil, err
	}
	return &entityresolve.SearchResponse{Matches: resp.Matches}, nil
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway error %d: %s", resp.StatusCode, string(respBody))
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response: %w", err)
		}
	}
	return nil
}
