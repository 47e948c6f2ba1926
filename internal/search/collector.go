package search

import (
	"context"
	"time"

	"github.com/kayz/quorum/internal/fanout"
	"github.com/kayz/quorum/internal/logger"
)

// CollectSettings controls a multi-iteration search run.
type CollectSettings struct {
	MaxIterations       int
	ResultsPerIteration int
	Diversify           bool
	Parallel            bool
}

// SourceStats summarizes one searcher call.
type SourceStats struct {
	Source  string        `json:"source"`
	Results int           `json:"results"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// IterationStats summarizes one iteration across all searchers.
type IterationStats struct {
	Index      int           `json:"index"`
	Query      string        `json:"query"`
	Sources    []SourceStats `json:"sources"`
	Added      int           `json:"added"`
	Duplicates int           `json:"duplicates"`
	CorpusSize int           `json:"corpus_size"`
}

// Outcome is the result of Collect.
type Outcome struct {
	Query      string           `json:"query"`
	Corpus     *Corpus          `json:"-"`
	Iterations []IterationStats `json:"iterations"`
	Duplicates int              `json:"duplicates"`
	AllFailed  bool             `json:"all_failed"`
	Elapsed    time.Duration    `json:"elapsed"`
}

// Results is a shortcut for o.Corpus.Results.
func (o *Outcome) Results() []Result {
	if o == nil {
		return nil
	}
	return o.Corpus.Results()
}

// Collector runs diversified queries against every searcher and merges the
// hits into one corpus.
type Collector struct {
	searchers []*Searcher
	settings  CollectSettings
}

func NewCollector(searchers []*Searcher, settings CollectSettings) *Collector {
	if settings.MaxIterations <= 0 {
		settings.MaxIterations = 1
	}
	if settings.ResultsPerIteration <= 0 {
		settings.ResultsPerIteration = 10
	}
	return &Collector{searchers: searchers, settings: settings}
}

// Searchers returns the configured searchers in merge order.
func (c *Collector) Searchers() []*Searcher {
	return append([]*Searcher(nil), c.searchers...)
}

// Collect never fails. A search run where every call failed is reported
// with AllFailed and an empty corpus.
func (c *Collector) Collect(ctx context.Context, query string) *Outcome {
	start := time.Now()
	out := &Outcome{Query: query, Corpus: NewCorpus()}
	if len(c.searchers) == 0 {
		return out
	}

	mode := fanout.ModeFor(c.settings.Parallel)
	succeeded := 0
	for i := 0; i < c.settings.MaxIterations; i++ {
		if ctx.Err() != nil {
			logger.Warn("[SEARCH] stopping after %d iterations: %v", i, ctx.Err())
			break
		}
		q := query
		if c.settings.Diversify {
			q = Diversify(query, i)
		}

		tasks := make([]fanout.Task[Hits], len(c.searchers))
		for j, s := range c.searchers {
			s := s
			tasks[j] = fanout.Task[Hits]{
				Name: s.Source(),
				Run: func(ctx context.Context) (Hits, error) {
					return s.Search(ctx, q, c.settings.ResultsPerIteration), nil
				},
			}
		}

		stats := IterationStats{Index: i, Query: q}
		for j, o := range fanout.Run(ctx, mode, tasks) {
			hits := o.Value
			if o.Err != nil {
				hits = Hits{Source: c.searchers[j].Source(), Query: q, Err: o.Err, Elapsed: o.Elapsed}
			}
			src := SourceStats{Source: hits.Source, Results: len(hits.Results), Elapsed: hits.Elapsed}
			if hits.Err != nil {
				src.Error = hits.Err.Error()
			} else {
				succeeded++
			}
			stats.Sources = append(stats.Sources, src)

			var ms MergeStats
			out.Corpus, ms = Merge(out.Corpus, hits.Results)
			stats.Added += ms.Added
			stats.Duplicates += ms.Duplicates
		}
		stats.CorpusSize = out.Corpus.Len()
		out.Duplicates += stats.Duplicates
		out.Iterations = append(out.Iterations, stats)

		logger.Info("[SEARCH] iteration %d %q: +%d new, %d duplicates, %d total", i+1, q, stats.Added, stats.Duplicates, stats.CorpusSize)
	}

	out.AllFailed = succeeded == 0
	out.Elapsed = time.Since(start)
	if out.AllFailed {
		logger.Warn("[SEARCH] every search call failed; continuing without references")
	}
	return out
}
