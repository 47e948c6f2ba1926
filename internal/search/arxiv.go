package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const arxivSnippetRunes = 500

// ArxivEngine queries the arXiv Atom export API.
type ArxivEngine struct {
	name     string
	endpoint string
	priority int
	client   *http.Client
}

func NewArxivEngine(config EngineConfig) (Engine, error) {
	endpoint := config.BaseURL
	if endpoint == "" {
		endpoint = "https://export.arxiv.org/api/query"
	}
	return &ArxivEngine{
		name:     nameOr(config.Name, "arxiv"),
		endpoint: endpoint,
		priority: config.Priority,
		client:   config.httpClient(),
	}, nil
}

func (e *ArxivEngine) Name() string  { return e.name }
func (e *ArxivEngine) Type() string  { return "arxiv" }
func (e *ArxivEngine) Priority() int { return e.priority }

type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Title string `xml:"title,attr"`
		Type  string `xml:"type,attr"`
	} `xml:"link"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
	PrimaryCategory struct {
		Term string `xml:"term,attr"`
	} `xml:"primary_category"`
}

func (e *ArxivEngine) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(limit))
	params.Set("sortBy", "relevance")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/atom+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("arxiv http %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to parse arxiv feed: %w", err)
	}

	retrievedAt := time.Now()
	results := make([]Result, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		r := Result{
			Title:       collapseSpace(entry.Title),
			URL:         strings.TrimSpace(entry.ID),
			Snippet:     truncateRunes(collapseSpace(entry.Summary), arxivSnippetRunes),
			Source:      e.name,
			RetrievedAt: retrievedAt,
			Metadata:    map[string]string{},
		}
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(entry.Published)); err == nil {
			r.PublishedAt = t
		}
		for _, a := range entry.Authors {
			if name := strings.TrimSpace(a.Name); name != "" {
				r.Authors = append(r.Authors, name)
			}
		}
		for _, l := range entry.Links {
			if l.Title == "pdf" || l.Type == "application/pdf" {
				r.Metadata["pdf_url"] = l.Href
			}
		}
		var cats []string
		for _, c := range entry.Categories {
			cats = append(cats, c.Term)
		}
		if len(cats) > 0 {
			r.Metadata["categories"] = strings.Join(cats, ",")
		}
		if entry.PrimaryCategory.Term != "" {
			r.Metadata["primary_category"] = entry.PrimaryCategory.Term
		}
		if r.URL == "" {
			continue
		}
		results = append(results, r)
	}
	return capResults(results, limit), nil
}
