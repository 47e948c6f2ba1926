package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DuckDuckGoEngine scrapes the DuckDuckGo HTML endpoint. No key needed.
type DuckDuckGoEngine struct {
	name     string
	endpoint string
	priority int
	client   *http.Client
}

func NewDuckDuckGoEngine(config EngineConfig) (Engine, error) {
	endpoint := config.BaseURL
	if endpoint == "" {
		endpoint = "https://html.duckduckgo.com/html/"
	}
	return &DuckDuckGoEngine{
		name:     nameOr(config.Name, "web"),
		endpoint: endpoint,
		priority: config.Priority,
		client:   config.httpClient(),
	}, nil
}

func (e *DuckDuckGoEngine) Name() string  { return e.name }
func (e *DuckDuckGoEngine) Type() string  { return "duckduckgo" }
func (e *DuckDuckGoEngine) Priority() int { return e.priority }

func (e *DuckDuckGoEngine) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}

	form := url.Values{}
	form.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("duckduckgo http %d", resp.StatusCode)
	}

	return e.parse(resp.Body, limit)
}

func (e *DuckDuckGoEngine) parse(r io.Reader, limit int) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duckduckgo html: %w", err)
	}

	retrievedAt := time.Now()
	var results []Result
	doc.Find("div.result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.HasClass("result--ad") {
			return true
		}
		link := s.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		target := unwrapDDGLink(href)
		if title == "" || target == "" {
			return true
		}
		results = append(results, Result{
			Title:       title,
			URL:         target,
			Snippet:     strings.TrimSpace(s.Find(".result__snippet").First().Text()),
			Source:      e.name,
			RetrievedAt: retrievedAt,
		})
		return limit <= 0 || len(results) < limit
	})
	return results, nil
}

// unwrapDDGLink resolves DuckDuckGo's /l/?uddg= redirect links.
func unwrapDDGLink(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if u.Host == "" {
		return ""
	}
	return href
}
