package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SearxngEngine queries a self-hosted SearXNG instance's JSON API.
type SearxngEngine struct {
	name       string
	baseURL    string
	categories string
	priority   int
	client     *http.Client
}

func NewSearxngEngine(config EngineConfig) (Engine, error) {
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, fmt.Errorf("searxng: base_url is required")
	}
	return &SearxngEngine{
		name:       nameOr(config.Name, "searxng"),
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		categories: config.stringOption("categories", "general"),
		priority:   config.Priority,
		client:     config.httpClient(),
	}, nil
}

func (e *SearxngEngine) Name() string  { return e.name }
func (e *SearxngEngine) Type() string  { return "searxng" }
func (e *SearxngEngine) Priority() int { return e.priority }

func (e *SearxngEngine) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("categories", e.categories)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	var payload struct {
		Results []struct {
			Title         string  `json:"title"`
			URL           string  `json:"url"`
			Content       string  `json:"content"`
			Engine        string  `json:"engine"`
			Score         float64 `json:"score"`
			PublishedDate string  `json:"publishedDate"`
		} `json:"results"`
	}
	if err := doJSON(e.client, req, &payload); err != nil {
		return nil, fmt.Errorf("searxng: %w", err)
	}

	retrievedAt := time.Now()
	results := make([]Result, 0, len(payload.Results))
	for _, r := range payload.Results {
		res := Result{
			Title:       r.Title,
			URL:         r.URL,
			Snippet:     r.Content,
			Source:      e.name,
			RetrievedAt: retrievedAt,
			Score:       r.Score,
		}
		if r.Engine != "" {
			res.Metadata = map[string]string{"engine": r.Engine}
		}
		if t, err := time.Parse(time.RFC3339, r.PublishedDate); err == nil {
			res.PublishedAt = t
		}
		results = append(results, res)
	}
	return capResults(results, limit), nil
}
