// Package gamma is the REST client for the Polymarket Gamma API, used to
// enrich on-chain markets with slugs and question text.
package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/polymind/polymind/internal/domain"
)

// DefaultBaseURL is the public Gamma API root.
const DefaultBaseURL = "https://gamma-api.polymarket.com"

// Client is an unauthenticated Gamma API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Gamma client. An empty baseURL falls back to the public
// endpoint.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// apiMarket is the subset of the Gamma market payload we consume.
type apiMarket struct {
	ConditionID string `json:"conditionId"`
	Slug        string `json:"slug"`
	Question    string `json:"question"`
}

// Enrich fills in the market's slug and question from the Gamma API. It
// returns the market unchanged together with an error when the lookup
// fails, so callers can treat enrichment as best-effort.
func (c *Client) Enrich(ctx context.Context, market domain.Market) (domain.Market, error) {
	params := url.Values{}
	params.Set("condition_ids", market.ConditionID)

	body, err := c.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return market, fmt.Errorf("gamma: lookup %s: %w", market.ConditionID, err)
	}

	var results []apiMarket
	if err := json.Unmarshal(body, &results); err != nil {
		return market, fmt.Errorf("gamma: decode markets: %w", err)
	}
	if len(results) == 0 {
		return market, fmt.Errorf("gamma: condition %s: %w", market.ConditionID, domain.ErrNotFound)
	}

	market.Slug = results[0].Slug
	market.Question = results[0].Question
	return market, nil
}

// doGet sends an unauthenticated GET request.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
