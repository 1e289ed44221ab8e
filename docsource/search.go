// Package docsource adapts external documentation research into research
// tools: search_docs queries a Tavily-style web search API, fetch_doc pulls
// one page and extracts its readable text.
package docsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultSearchLimit is the number of results search_docs returns when the
// model does not ask for a specific count.
const DefaultSearchLimit = 3

// SearchClient queries a Tavily-style search API.
type SearchClient struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

// NewSearchClient creates a SearchClient. An empty apiURL uses the Tavily
// production endpoint.
func NewSearchClient(apiKey, apiURL string) *SearchClient {
	if apiURL == "" {
		apiURL = "https://api.tavily.com/search"
	}
	return &SearchClient{
		apiKey: apiKey,
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// DocResult is one ranked search hit.
type DocResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type searchRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth,omitempty"`
	MaxResults  int    `json:"max_results,omitempty"`
}

type searchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search runs one documentation search and returns up to limit ranked
// results. limit <= 0 uses DefaultSearchLimit.
func (c *SearchClient) Search(ctx context.Context, query string, limit int) ([]DocResult, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	payload, err := json.Marshal(searchRequest{
		APIKey:      c.apiKey,
		Query:       query,
		SearchDepth: "basic",
		MaxResults:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	results := make([]DocResult, 0, limit)
	for _, r := range parsed.Results {
		results = append(results, DocResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
