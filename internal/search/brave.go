package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// BraveEngine uses the Brave Search API (X-Subscription-Token auth).
type BraveEngine struct {
	name     string
	apiKey   string
	endpoint string
	priority int
	client   *http.Client
}

func NewBraveEngine(config EngineConfig) (Engine, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("brave: API key is required")
	}
	endpoint := config.BaseURL
	if endpoint == "" {
		endpoint = "https://api.search.brave.com/res/v1/web/search"
	}
	return &BraveEngine{
		name:     nameOr(config.Name, "brave"),
		apiKey:   config.APIKey,
		endpoint: endpoint,
		priority: config.Priority,
		client:   config.httpClient(),
	}, nil
}

func (e *BraveEngine) Name() string  { return e.name }
func (e *BraveEngine) Type() string  { return "brave" }
func (e *BraveEngine) Priority() int { return e.priority }

func (e *BraveEngine) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	if limit > 0 {
		// Brave caps count at 20.
		params.Set("count", strconv.Itoa(min(limit, 20)))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", e.apiKey)

	var payload struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
				PageAge     string `json:"page_age"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := doJSON(e.client, req, &payload); err != nil {
		return nil, fmt.Errorf("brave: %w", err)
	}

	retrievedAt := time.Now()
	results := make([]Result, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		res := Result{
			Title:       r.Title,
			URL:         r.URL,
			Snippet:     r.Description,
			Source:      e.name,
			RetrievedAt: retrievedAt,
		}
		if t, err := time.Parse("2006-01-02T15:04:05", r.PageAge); err == nil {
			res.PublishedAt = t
		}
		results = append(results, res)
	}
	return capResults(results, limit), nil
}
