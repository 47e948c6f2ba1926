package search

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/kayz/quorum/internal/fanout"
	"github.com/kayz/quorum/internal/logger"
)

// Searcher wraps an Engine with a timeout and an optional rate limiter.
// Search never returns an error; failures are recorded on Hits.
type Searcher struct {
	engine  Engine
	timeout time.Duration
	limiter *rate.Limiter
}

// SearcherOption customizes a Searcher.
type SearcherOption func(*Searcher)

// WithTimeout bounds each call, including time spent waiting on the limiter.
func WithTimeout(d time.Duration) SearcherOption {
	return func(s *Searcher) { s.timeout = d }
}

// WithRateLimit paces calls to the engine.
func WithRateLimit(rl RateLimit) SearcherOption {
	return func(s *Searcher) { s.limiter = NewLimiter(rl) }
}

func NewSearcher(engine Engine, opts ...SearcherOption) *Searcher {
	s := &Searcher{engine: engine}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Source is the engine name attached to every result.
func (s *Searcher) Source() string {
	return s.engine.Name()
}

func (s *Searcher) Engine() Engine {
	return s.engine
}

// Search runs one query against the engine.
func (s *Searcher) Search(ctx context.Context, query string, maxResults int) Hits {
	out := fanout.Do(ctx, fanout.Task[[]Result]{
		Name:    s.engine.Name(),
		Timeout: s.timeout,
		Run: func(ctx context.Context) ([]Result, error) {
			if err := waitLimiter(ctx, s.limiter); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
			return s.engine.Search(ctx, query, maxResults)
		},
	})

	hits := Hits{Source: s.engine.Name(), Query: query, Elapsed: out.Elapsed}
	if out.Err != nil {
		hits.Err = out.Err
		logger.Warn("[SEARCH] %s: %q failed: %v", hits.Source, query, out.Err)
		return hits
	}

	results := capResults(out.Value, maxResults)
	hits.Results = make([]Result, 0, len(results))
	for _, r := range results {
		if r.Source == "" {
			r.Source = hits.Source
		}
		hits.Results = append(hits.Results, r)
	}
	logger.Debug("[SEARCH] %s: %q returned %d results in %s", hits.Source, query, len(hits.Results), out.Elapsed.Round(time.Millisecond))
	return hits
}
