package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TavilyEngine calls the Tavily search API.
type TavilyEngine struct {
	name     string
	apiKey   string
	baseURL  string
	depth    string
	priority int
	client   *http.Client
}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results,omitempty"`
}

type tavilyResponse struct {
	Results []struct {
		Title     string  `json:"title"`
		URL       string  `json:"url"`
		Content   string  `json:"content"`
		Score     float64 `json:"score"`
		Published string  `json:"published_date,omitempty"`
	} `json:"results"`
}

func NewTavilyEngine(config EngineConfig) (Engine, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("tavily: API key is required")
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}
	return &TavilyEngine{
		name:     nameOr(config.Name, "tavily"),
		apiKey:   config.APIKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		depth:    config.stringOption("search_depth", "basic"),
		priority: config.Priority,
		client:   config.httpClient(),
	}, nil
}

func (e *TavilyEngine) Name() string  { return e.name }
func (e *TavilyEngine) Type() string  { return "tavily" }
func (e *TavilyEngine) Priority() int { return e.priority }

func (e *TavilyEngine) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	var payload tavilyResponse
	err := postJSON(ctx, e.client, e.baseURL+"/search", e.apiKey, tavilyRequest{
		APIKey:      e.apiKey,
		Query:       query,
		SearchDepth: e.depth,
		MaxResults:  limit,
	}, &payload)
	if err != nil {
		return nil, fmt.Errorf("tavily: %w", err)
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
		if t, err := time.Parse(time.RFC3339, r.Published); err == nil {
			res.PublishedAt = t
		}
		results = append(results, res)
	}
	return capResults(results, limit), nil
}
