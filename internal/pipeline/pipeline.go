// Package pipeline drives one question through search, the provider panel
// and aggregation, timing every stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kayz/quorum/internal/aggregate"
	"github.com/kayz/quorum/internal/llm"
	"github.com/kayz/quorum/internal/logger"
	"github.com/kayz/quorum/internal/search"
	"github.com/kayz/quorum/internal/timing"
)

// Stage names recorded in Result.Timings.
const (
	StageSearch    = "search"
	StageQuery     = "query"
	StageAggregate = "aggregate"
	StageReport    = "raw_report"
)

// DefaultContextPerSource is how many results per source go into the prompt.
const DefaultContextPerSource = 5

// Settings is the immutable run configuration.
type Settings struct {
	SearchEnabled    bool
	SynthesisEnabled bool
	// Parallel applies to both the search and the provider fan-out.
	Parallel         bool
	RunTimeout       time.Duration
	SystemPrompt     string
	ContextPerSource int
	Search           search.CollectSettings
}

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	Providers []*llm.Provider
	Searchers []*search.Searcher
	// Aggregator defaults to an engine without a synthesizer.
	Aggregator *aggregate.Engine
}

// Pipeline is safe for concurrent runs; it holds no per-run state.
type Pipeline struct {
	settings  Settings
	panel     *llm.Panel
	collector *search.Collector
	engine    *aggregate.Engine
	newID     func() string
	now       func() time.Time
}

// New validates the configuration. Every error it returns is a
// *ConfigError.
func New(settings Settings, deps Deps) (*Pipeline, error) {
	if len(deps.Providers) == 0 {
		return nil, configErr("no providers configured", llm.ErrNoProviders)
	}
	panel, err := llm.NewPanel(deps.Providers, settings.Parallel)
	if err != nil {
		return nil, configErr("bad provider set", err)
	}
	for i, s := range deps.Searchers {
		if s == nil {
			return nil, configErr("bad searcher set", fmt.Errorf("searcher %d is nil", i))
		}
	}

	if settings.ContextPerSource <= 0 {
		settings.ContextPerSource = DefaultContextPerSource
	}
	settings.Search.Parallel = settings.Parallel
	engine := deps.Aggregator
	if engine == nil {
		engine = aggregate.NewEngine(nil)
	}

	return &Pipeline{
		settings:  settings,
		panel:     panel,
		collector: search.NewCollector(deps.Searchers, settings.Search),
		engine:    engine,
		newID:     uuid.NewString,
		now:       time.Now,
	}, nil
}

// Settings returns the configuration the pipeline was built with.
func (p *Pipeline) Settings() Settings {
	return p.settings
}

// Providers returns the panel in request order.
func (p *Pipeline) Providers() []*llm.Provider {
	return p.panel.Providers()
}

// SearchActive reports whether runs will enter the Searching stage.
func (p *Pipeline) SearchActive() bool {
	return p.settings.SearchEnabled && len(p.collector.Searchers()) > 0
}

// Result is everything one run produced.
type Result struct {
	ID          string           `json:"id"`
	Question    string           `json:"question"`
	Prompt      string           `json:"prompt"`
	Search      *search.Outcome  `json:"search,omitempty"`
	Responses   *llm.Responses   `json:"-"`
	Report      aggregate.Report `json:"report"`
	Timings     []timing.Span    `json:"timings"`
	Transitions []Transition     `json:"transitions"`
	State       State            `json:"state"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
}

// Elapsed is the wall-clock duration of the run.
func (r *Result) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type run struct {
	p         *Pipeline
	result    *Result
	state     State
	observers []Observer
}

func (r *run) moveTo(to State, note string) {
	t := Transition{From: r.state, To: to, At: r.p.now(), Note: note}
	r.state = to
	r.result.State = to
	r.result.Transitions = append(r.result.Transitions, t)
	logger.Debug("[PIPELINE] %s: %s -> %s %s", ShortID(r.result.ID), t.From, t.To, note)
	for _, obs := range r.observers {
		if obs != nil {
			obs(Event{RunID: r.result.ID, Question: r.result.Question, Transition: t})
		}
	}
}

// RunOptions narrows a single run.
type RunOptions struct {
	// Providers limits the panel to these ids. Empty means all of them.
	Providers []string
}

// Run answers question. The only error it returns is a *ConfigError for a
// run that cannot start; every other failure is recorded in the Result.
func (p *Pipeline) Run(ctx context.Context, question string, observers ...Observer) (*Result, error) {
	return p.RunWith(ctx, question, RunOptions{}, observers...)
}

// RunWith is Run with per-run options. A provider selection that does not
// match the panel fails the run before any call is made.
func (p *Pipeline) RunWith(ctx context.Context, question string, opts RunOptions, observers ...Observer) (*Result, error) {
	r := &run{
		p:         p,
		state:     StateIdle,
		observers: observers,
		result: &Result{
			ID:        p.newID(),
			Question:  strings.TrimSpace(question),
			State:     StateIdle,
			StartedAt: p.now(),
		},
	}
	res := r.result

	if res.Question == "" {
		err := configErr("empty question", nil)
		r.moveTo(StateFailed, err.Error())
		res.FinishedAt = p.now()
		return res, err
	}

	panel := p.panel
	if len(opts.Providers) > 0 {
		sub, err := p.panel.Subset(opts.Providers)
		if err != nil {
			cerr := configErr("bad provider selection", err)
			r.moveTo(StateFailed, cerr.Error())
			res.FinishedAt = p.now()
			return res, cerr
		}
		panel = sub
	}

	if p.settings.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.settings.RunTimeout)
		defer cancel()
	}

	tracker := timing.New()
	logger.Info("[PIPELINE] run %s: %q", ShortID(res.ID), res.Question)

	refs := ""
	if p.SearchActive() {
		r.moveTo(StateSearching, "")
		_ = tracker.Measure(StageSearch, func() error {
			res.Search = p.collector.Collect(ctx, res.Question)
			if res.Search.AllFailed {
				return errors.New("all search calls failed")
			}
			return nil
		})
		refs = search.FormatContext(res.Search.Corpus, p.settings.ContextPerSource)
	} else {
		logger.Debug("[PIPELINE] search skipped")
	}

	res.Prompt = BuildPrompt(res.Question, refs)
	note := ""
	if !p.SearchActive() {
		note = "search skipped"
	}
	r.moveTo(StateQuerying, note)
	_ = tracker.Measure(StageQuery, func() error {
		res.Responses = panel.QueryAll(ctx, res.Prompt, p.settings.SystemPrompt)
		if len(res.Responses.Succeeded()) == 0 {
			return errors.New("no provider answered")
		}
		return nil
	})

	in := aggregate.Input{Question: res.Question, Context: refs, Responses: res.Responses}
	if p.settings.SynthesisEnabled {
		r.moveTo(StateAggregating, "")
		_ = tracker.Measure(StageAggregate, func() error {
			res.Report = p.engine.Aggregate(ctx, in)
			if !res.Report.SynthesisSucceeded && res.Report.SynthesisError != "" {
				return errors.New(res.Report.SynthesisError)
			}
			return nil
		})
	} else {
		_ = tracker.Measure(StageReport, func() error {
			res.Report = p.engine.Raw(in)
			return nil
		})
	}

	res.Timings = tracker.Spans()
	doneNote := string(res.Report.Outcome)
	if !p.settings.SynthesisEnabled {
		doneNote = "synthesis skipped"
	}
	r.moveTo(StateDone, doneNote)
	res.FinishedAt = p.now()
	logger.Info("[PIPELINE] run %s done in %s (%s)\n%s", ShortID(res.ID), timing.FormatDuration(res.Elapsed()), res.Report.Outcome, tracker.Summary())
	return res, nil
}

// Search runs only the Searching stage.
func (p *Pipeline) Search(ctx context.Context, query string) (*search.Outcome, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, configErr("empty query", nil)
	}
	if len(p.collector.Searchers()) == 0 {
		return nil, configErr("no search engines configured", nil)
	}
	if p.settings.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.settings.RunTimeout)
		defer cancel()
	}
	return p.collector.Collect(ctx, query), nil
}

// BuildPrompt appends the formatted search references to the question.
func BuildPrompt(question, refs string) string {
	question = strings.TrimSpace(question)
	if strings.TrimSpace(refs) == "" {
		return question
	}
	return question + "\n\nReference information:\n" + refs
}

// ShortID is the id prefix used in logs and directory names.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
