package search

// Corpus is an ordered, duplicate-free set of results. Order is discovery
// order. A Corpus is never modified after Merge returns it.
type Corpus struct {
	results []Result
	keys    map[string]struct{}
}

// NewCorpus returns an empty corpus.
func NewCorpus() *Corpus {
	return &Corpus{keys: map[string]struct{}{}}
}

// Len returns the number of unique results.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.results)
}

// Results returns a copy of the results in discovery order.
func (c *Corpus) Results() []Result {
	if c == nil {
		return nil
	}
	return append([]Result(nil), c.results...)
}

// Contains reports whether a result with the same identity key is present.
func (c *Corpus) Contains(r Result) bool {
	if c == nil {
		return false
	}
	_, ok := c.keys[r.Key()]
	return ok
}

// BySource groups results per source, keeping discovery order within each
// group and first-appearance order across groups.
func (c *Corpus) BySource() (sources []string, groups map[string][]Result) {
	groups = make(map[string][]Result)
	for _, r := range c.Results() {
		if _, ok := groups[r.Source]; !ok {
			sources = append(sources, r.Source)
		}
		groups[r.Source] = append(groups[r.Source], r)
	}
	return sources, groups
}

// MergeStats counts what a Merge kept and dropped.
type MergeStats struct {
	Added      int `json:"added"`
	Duplicates int `json:"duplicates"`
}

// Merge returns a new corpus holding existing followed by the incoming
// results not already present. Results with an empty key are dropped as
// duplicates. existing is not modified and may be nil.
func Merge(existing *Corpus, incoming []Result) (*Corpus, MergeStats) {
	next := &Corpus{
		results: make([]Result, 0, existing.Len()+len(incoming)),
		keys:    make(map[string]struct{}, existing.Len()+len(incoming)),
	}
	if existing != nil {
		next.results = append(next.results, existing.results...)
		for k := range existing.keys {
			next.keys[k] = struct{}{}
		}
	}

	var stats MergeStats
	for _, r := range incoming {
		key := r.Key()
		if key == "" {
			stats.Duplicates++
			continue
		}
		if _, seen := next.keys[key]; seen {
			stats.Duplicates++
			continue
		}
		next.keys[key] = struct{}{}
		next.results = append(next.results, r)
		stats.Added++
	}
	return next, stats
}
