// Package parallel is a search.Searcher backed by the Parallel search API.
package parallel

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/vango-go/vai-tutor/pkg/core/search"
)

const (
	defaultBaseURL    = "https://api.parallel.ai"
	maxCharsPerResult = 3000
)

type Client struct {
	apiKey string
	http   *resty.Client
}

var _ search.Searcher = (*Client)(nil)

func NewClient(apiKey, baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey: strings.TrimSpace(apiKey),
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetHeader("Content-Type", "application/json"),
	}
}

func (c *Client) Name() string { return "parallel" }

func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type searchRequest struct {
	Objective         string   `json:"objective"`
	SearchQueries     []string `json:"search_queries"`
	Processor         string   `json:"processor"`
	MaxResults        int      `json:"max_results"`
	MaxCharsPerResult int      `json:"max_chars_per_result"`
}

type searchResponse struct {
	Results []struct {
		URL      string   `json:"url"`
		Title    string   `json:"title"`
		Excerpts []string `json:"excerpts"`
	} `json:"results"`
}

func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]search.Hit, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("parallel api key is not configured")
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	var result searchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetBody(searchRequest{
			Objective:         search.Objective(query),
			SearchQueries:     []string{query},
			Processor:         "base",
			MaxResults:        maxResults,
			MaxCharsPerResult: maxCharsPerResult,
		}).
		SetResult(&result).
		Post("/beta/search")
	if err != nil {
		return nil, fmt.Errorf("parallel search request: %w", err)
	}
	if resp.IsError() {
		return nil, &search.StatusError{Provider: "parallel", Status: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}

	hits := make([]search.Hit, 0, len(result.Results))
	for _, r := range result.Results {
		hits = append(hits, search.Hit{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: strings.Join(r.Excerpts, " "),
		})
	}
	return hits, nil
}
