package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kayz/quorum/internal/aggregate"
	"github.com/kayz/quorum/internal/llm"
	"github.com/kayz/quorum/internal/search"
)

type fakeClient struct {
	CompleteFunc func(ctx context.Context, req llm.Request) (llm.Completion, error)
	calls        int32
}

func (f *fakeClient) Name() string         { return "fake" }
func (f *fakeClient) DefaultModel() string { return "fake-model" }

func (f *fakeClient) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.CompleteFunc(ctx, req)
}

type fakeEngine struct {
	name       string
	SearchFunc func(ctx context.Context, query string, limit int) ([]search.Result, error)

	mu      sync.Mutex
	queries []string
}

func (f *fakeEngine) Name() string  { return f.name }
func (f *fakeEngine) Type() string  { return "fake" }
func (f *fakeEngine) Priority() int { return 0 }

func (f *fakeEngine) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	return f.SearchFunc(ctx, query, limit)
}

func (f *fakeEngine) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func provider(id string, fn func(context.Context, llm.Request) (llm.Completion, error)) (*llm.Provider, *fakeClient) {
	c := &fakeClient{CompleteFunc: fn}
	return llm.NewProvider(id, c, llm.Settings{Timeout: time.Second}), c
}

func answering(content string) func(context.Context, llm.Request) (llm.Completion, error) {
	return func(context.Context, llm.Request) (llm.Completion, error) {
		return llm.Completion{Content: content, FinishReason: llm.FinishStop}, nil
	}
}

func staticEngine(name string, urls ...string) *fakeEngine {
	return &fakeEngine{name: name, SearchFunc: func(context.Context, string, int) ([]search.Result, error) {
		out := make([]search.Result, 0, len(urls))
		for _, u := range urls {
			out = append(out, search.Result{Title: "t " + u, URL: u, Snippet: "about " + u})
		}
		return out, nil
	}}
}

func TestNewRejectsZeroProvidersBeforeAnyCall(t *testing.T) {
	engine := staticEngine("web", "https://a.example")
	_, err := New(Settings{SearchEnabled: true}, Deps{
		Searchers: []*search.Searcher{search.NewSearcher(engine)},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.True(t, errors.Is(err, llm.ErrNoProviders))
	var cfgErr *ConfigError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, 0, engine.calls())
}

func TestNewRejectsDuplicateProviderIDs(t *testing.T) {
	a, _ := provider("a", answering("x"))
	b, _ := provider("a", answering("y"))
	_, err := New(Settings{}, Deps{Providers: []*llm.Provider{a, b}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "duplicate provider id")
}

func TestRunEmptyQuestionFailsEarly(t *testing.T) {
	p1, c1 := provider("a", answering("x"))
	p, err := New(Settings{SynthesisEnabled: true}, Deps{Providers: []*llm.Provider{p1}})
	require.NoError(t, err)

	var events []Event
	res, err := p.Run(context.Background(), "   ", func(e Event) { events = append(events, e) })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Equal(t, StateFailed, res.State)
	require.Len(t, events, 1)
	assert.Equal(t, StateFailed, events[0].To)
	assert.Equal(t, int32(0), atomic.LoadInt32(&c1.calls))
}

func TestRunFullStateSequence(t *testing.T) {
	pa, _ := provider("a", answering(strings.Repeat("a", 500)))
	pb := llm.NewProvider("b", &fakeClient{CompleteFunc: func(ctx context.Context, _ llm.Request) (llm.Completion, error) {
		<-ctx.Done()
		return llm.Completion{}, ctx.Err()
	}}, llm.Settings{Timeout: 20 * time.Millisecond})
	pc, _ := provider("c", answering(strings.Repeat("c", 700)))

	var synthPrompt string
	judge := llm.NewProvider("judge", &fakeClient{CompleteFunc: func(_ context.Context, req llm.Request) (llm.Completion, error) {
		synthPrompt = req.Prompt
		return llm.Completion{Content: "merged\n\n## Contradictions\n- None"}, nil
	}}, llm.Settings{Timeout: time.Second})

	web := staticEngine("web", "https://a.example", "https://b.example/")
	arxiv := staticEngine("arxiv", "https://B.example", "https://c.example")

	p, err := New(Settings{
		SearchEnabled:    true,
		SynthesisEnabled: true,
		Parallel:         true,
		Search:           search.CollectSettings{MaxIterations: 2, ResultsPerIteration: 5, Diversify: true},
	}, Deps{
		Providers:  []*llm.Provider{pa, pb, pc},
		Searchers:  []*search.Searcher{search.NewSearcher(web), search.NewSearcher(arxiv)},
		Aggregator: aggregate.NewEngine(judge),
	})
	require.NoError(t, err)

	var states []State
	res, err := p.Run(context.Background(), "what is go?", func(e Event) { states = append(states, e.To) })
	require.NoError(t, err)

	assert.Equal(t, []State{StateSearching, StateQuerying, StateAggregating, StateDone}, states)
	assert.Equal(t, StateDone, res.State)
	assert.NotEmpty(t, res.ID)

	require.NotNil(t, res.Search)
	assert.Equal(t, 3, res.Search.Corpus.Len())
	assert.Len(t, res.Search.Iterations, 2)
	assert.Equal(t, []string{"what is go?", "what is go? overview"}, web.queries)
	assert.Contains(t, res.Prompt, "Reference information:")
	assert.Contains(t, res.Prompt, "[From WEB]")

	require.Equal(t, 3, res.Responses.Len())
	assert.Equal(t, []string{"a", "b", "c"}, res.Responses.IDs())
	b, ok := res.Responses.Get("b")
	require.True(t, ok)
	require.NotNil(t, b.Err)
	assert.Equal(t, llm.FailureTimeout, b.Err.Kind)

	assert.Equal(t, aggregate.OutcomeSynthesized, res.Report.Outcome)
	assert.Equal(t, "merged\n\n## Contradictions\n- None", res.Report.Content)
	assert.Nil(t, res.Report.Contradictions)
	assert.Contains(t, synthPrompt, "[From WEB]")

	var stages []string
	for _, s := range res.Timings {
		stages = append(stages, s.Stage)
	}
	assert.Equal(t, []string{StageSearch, StageQuery, StageAggregate}, stages)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestRunWithProviderSubset(t *testing.T) {
	pa, ca := provider("a", answering("alpha"))
	pb, cb := provider("b", answering("beta"))
	pc, cc := provider("c", answering("gamma"))
	engine := staticEngine("web", "https://a.example")
	p, err := New(Settings{SearchEnabled: true}, Deps{
		Providers: []*llm.Provider{pa, pb, pc},
		Searchers: []*search.Searcher{search.NewSearcher(engine)},
	})
	require.NoError(t, err)

	res, err := p.RunWith(context.Background(), "q", RunOptions{Providers: []string{"c", "a"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, res.Responses.IDs())
	assert.Equal(t, int32(1), atomic.LoadInt32(&ca.calls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&cb.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&cc.calls))

	searched := engine.calls()
	var events []Event
	res, err = p.RunWith(context.Background(), "q", RunOptions{Providers: []string{"a", "zz"}},
		func(e Event) { events = append(events, e) })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), "zz")
	assert.Equal(t, StateFailed, res.State)
	require.Len(t, events, 1)
	assert.Equal(t, StateFailed, events[0].To)
	assert.Equal(t, searched, engine.calls())
	assert.Equal(t, int32(1), atomic.LoadInt32(&ca.calls))
}

func TestRunSkipsSearchAndSynthesis(t *testing.T) {
	pa, _ := provider("a", answering("alpha"))
	engine := staticEngine("web", "https://a.example")

	p, err := New(Settings{SearchEnabled: false, SynthesisEnabled: false}, Deps{
		Providers: []*llm.Provider{pa},
		Searchers: []*search.Searcher{search.NewSearcher(engine)},
	})
	require.NoError(t, err)

	var events []Event
	res, err := p.Run(context.Background(), "q", func(e Event) { events = append(events, e) })
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, StateIdle, events[0].From)
	assert.Equal(t, StateQuerying, events[0].To)
	assert.Equal(t, "search skipped", events[0].Note)
	assert.Equal(t, StateDone, events[1].To)
	assert.Equal(t, StateQuerying, events[1].From)

	assert.Equal(t, 0, engine.calls())
	assert.Nil(t, res.Search)
	assert.Equal(t, "q", res.Prompt)
	assert.Equal(t, aggregate.OutcomeRaw, res.Report.Outcome)
	assert.Contains(t, res.Report.Content, "alpha")
}

func TestRunAllSearchFailedStillAnswers(t *testing.T) {
	pa, _ := provider("a", answering("alpha"))
	broken := &fakeEngine{name: "web", SearchFunc: func(context.Context, string, int) ([]search.Result, error) {
		return nil, errors.New("503")
	}}

	p, err := New(Settings{SearchEnabled: true, SynthesisEnabled: true}, Deps{
		Providers: []*llm.Provider{pa},
		Searchers: []*search.Searcher{search.NewSearcher(broken)},
	})
	require.NoError(t, err)

	res, err := p.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, res.Search.AllFailed)
	assert.Equal(t, "q", res.Prompt)
	assert.Equal(t, aggregate.OutcomeFallback, res.Report.Outcome)
	assert.Equal(t, "all search calls failed", res.Timings[0].Err)
}

func TestRunAllProvidersFailedReturnsReport(t *testing.T) {
	failing := func(context.Context, llm.Request) (llm.Completion, error) {
		return llm.Completion{}, errors.New("401 unauthorized")
	}
	pa, _ := provider("a", failing)
	pb, _ := provider("b", failing)
	p, err := New(Settings{SynthesisEnabled: true}, Deps{Providers: []*llm.Provider{pa, pb}})
	require.NoError(t, err)

	res, err := p.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, aggregate.OutcomeNoContent, res.Report.Outcome)
	assert.NotEmpty(t, res.Report.Content)
	assert.Len(t, res.Report.Comparison.Failures, 2)
}

func TestSearchOnly(t *testing.T) {
	pa, c := provider("a", answering("alpha"))
	engine := staticEngine("web", "https://a.example", "https://a.example/")
	p, err := New(Settings{Search: search.CollectSettings{MaxIterations: 1}}, Deps{
		Providers: []*llm.Provider{pa},
		Searchers: []*search.Searcher{search.NewSearcher(engine)},
	})
	require.NoError(t, err)

	out, err := p.Search(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, 1, out.Corpus.Len())
	assert.Equal(t, 1, out.Duplicates)
	assert.Equal(t, int32(0), atomic.LoadInt32(&c.calls))

	_, err = p.Search(context.Background(), "")
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestBuildPrompt(t *testing.T) {
	assert.Equal(t, "q", BuildPrompt(" q ", ""))
	assert.Equal(t, "q\n\nReference information:\n[From WEB]", BuildPrompt("q", "[From WEB]"))
	assert.Equal(t, "12345678", ShortID("12345678-aaaa"))
	assert.Equal(t, "abc", ShortID("abc"))
}
