package search

import (
	"strings"
	"time"
)

// Result is one search hit. Treat it as immutable once produced.
type Result struct {
	Title       string            `json:"title"`
	URL         string            `json:"url"`
	Snippet     string            `json:"snippet"`
	Source      string            `json:"source"`
	Authors     []string          `json:"authors,omitempty"`
	PublishedAt time.Time         `json:"published_at,omitempty"`
	RetrievedAt time.Time         `json:"retrieved_at,omitempty"`
	Score       float64           `json:"score,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Key is the identity used for deduplication.
func (r Result) Key() string {
	return NormalizeURL(r.URL)
}

// NormalizeURL trims, lowercases and strips trailing slashes.
func NormalizeURL(u string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(u)), "/")
}

// Hits is what a Searcher returns for one query. Results is empty when Err
// is set.
type Hits struct {
	Source  string        `json:"source"`
	Query   string        `json:"query"`
	Results []Result      `json:"results"`
	Err     error         `json:"-"`
	Elapsed time.Duration `json:"elapsed"`
}

// OK reports whether the search call succeeded.
func (h Hits) OK() bool {
	return h.Err == nil
}
