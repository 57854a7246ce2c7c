// Package exa is a search.Searcher backed by the Exa search API.
package exa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vango-go/vai-tutor/pkg/core/search"
)

const (
	defaultBaseURL  = "https://api.exa.ai"
	maxResponseBody = 4 << 20
	maxSnippetRunes = 3000
)

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ search.Searcher = (*Client)(nil)

func NewClient(apiKey, baseURL string, httpClient *http.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) Name() string { return "exa" }

func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.apiKey) != ""
}

func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]search.Hit, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("exa api key is not configured")
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	body, err := json.Marshal(map[string]any{
		"query":      query,
		"numResults": maxResults,
		"contents": map[string]any{
			"highlights": true,
			"summary":    map[string]any{"query": search.Objective(query)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, &search.StatusError{Provider: "exa", Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var decoded struct {
		Results []struct {
			Title      string   `json:"title"`
			URL        string   `json:"url"`
			Text       string   `json:"text,omitempty"`
			Highlights []string `json:"highlights,omitempty"`
			Summary    string   `json:"summary,omitempty"`
		} `json:"results"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	hits := make([]search.Hit, 0, len(decoded.Results))
	for _, result := range decoded.Results {
		snippet := strings.TrimSpace(result.Summary)
		if snippet == "" && len(result.Highlights) > 0 {
			snippet = strings.TrimSpace(strings.Join(result.Highlights, " "))
		}
		if snippet == "" {
			snippet = truncate(strings.TrimSpace(result.Text), maxSnippetRunes)
		}
		hits = append(hits, search.Hit{
			Title:   result.Title,
			URL:     result.URL,
			Snippet: snippet,
		})
	}
	return hits, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
