package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kayz/quorum/internal/aggregate"
	"github.com/kayz/quorum/internal/config"
	"github.com/kayz/quorum/internal/llm"
	"github.com/kayz/quorum/internal/logger"
	"github.com/kayz/quorum/internal/persist"
	"github.com/kayz/quorum/internal/pipeline"
	"github.com/kayz/quorum/internal/report"
	"github.com/kayz/quorum/internal/search"
)

// runOverrides are per-invocation changes on top of the config file.
type runOverrides struct {
	noSearch    bool
	noSynthesis bool
	sequential  bool
	iterations  int
	outDir      string
	noArchive   bool
	noFiles     bool
}

// app is everything a command needs to answer questions.
type app struct {
	cfg       *config.Config
	pipeline  *pipeline.Pipeline
	providers []*llm.Provider
	searchers []*search.Searcher
	writer    *report.Writer
	store     *persist.Store
}

func newApp(cfg *config.Config, o runOverrides) (*app, error) {
	reg := llm.NewRegistry()
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return nil, err
	}

	settings := pipelineSettings(cfg, o)

	var searchers []*search.Searcher
	if settings.SearchEnabled {
		searchers = buildSearchers(cfg.Search)
	}

	deps := pipeline.Deps{Providers: providers, Searchers: searchers}
	if settings.SynthesisEnabled {
		deps.Aggregator, err = buildAggregator(cfg, reg)
		if err != nil {
			return nil, err
		}
	}

	p, err := pipeline.New(settings, deps)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, pipeline: p, providers: providers, searchers: searchers}

	outDir := cfg.Output.Dir
	if o.outDir != "" {
		outDir = o.outDir
	}
	if cfg.Output.WriteFiles && !o.noFiles {
		a.writer = report.NewWriter(outDir)
	}
	if cfg.Output.ArchiveDB != "" && !o.noArchive {
		a.store, err = persist.NewStore(cfg.Output.ArchiveDB)
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

func pipelineSettings(cfg *config.Config, o runOverrides) pipeline.Settings {
	s := pipeline.Settings{
		SearchEnabled:    cfg.Search.Enabled && !o.noSearch,
		SynthesisEnabled: cfg.Aggregation.Synthesize && !o.noSynthesis,
		Parallel:         cfg.Aggregation.ParallelEnabled && !o.sequential,
		RunTimeout:       cfg.RunTimeout.Duration,
		SystemPrompt:     cfg.PanelSystemPrompt,
		ContextPerSource: cfg.Search.ContextPerSource,
		Search: search.CollectSettings{
			MaxIterations:       cfg.Search.MaxIterations,
			ResultsPerIteration: cfg.Search.ResultsPerIteration,
			Diversify:           cfg.Search.Diversify,
		},
	}
	if o.iterations > 0 {
		s.Search.MaxIterations = o.iterations
	}
	return s
}

// buildProviders creates one panel member per usable provider entry, in file
// order.
func buildProviders(cfg *config.Config, reg *llm.Registry) ([]*llm.Provider, error) {
	var providers []*llm.Provider
	for _, pc := range cfg.UsableProviders() {
		client, err := reg.CreateClient(llm.ClientConfig{
			Type:    pc.Type,
			APIKey:  pc.APIKey,
			BaseURL: pc.BaseURL,
			Model:   pc.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		providers = append(providers, llm.NewProvider(pc.Name, client, llm.Settings{
			Model:        pc.Model,
			Temperature:  pc.Temperature,
			MaxTokens:    pc.MaxTokens,
			Timeout:      pc.Timeout.Duration,
			SystemPrompt: cfg.PanelSystemPrompt,
		}))
	}
	for _, pc := range cfg.Providers {
		if pc.Enabled && !pc.Usable() {
			logger.Warn("[CONFIG] provider %s is enabled but has no API key, skipping", pc.Name)
		}
	}
	return providers, nil
}

// buildSearchers creates searchers for the enabled engines, lowest priority
// value first. Engines that fail to build are skipped.
func buildSearchers(sc config.SearchConfig) []*search.Searcher {
	engines := sc.EnabledEngines()
	sort.SliceStable(engines, func(i, j int) bool {
		return engines[i].Priority < engines[j].Priority
	})

	reg := search.NewRegistry()
	var searchers []*search.Searcher
	for _, ec := range engines {
		engine, err := reg.CreateEngine(search.EngineConfig{
			Name:     ec.Name,
			Type:     ec.Type,
			APIKey:   ec.APIKey,
			BaseURL:  ec.BaseURL,
			Priority: ec.Priority,
			Options:  ec.Options,
		})
		if err != nil {
			logger.Warn("[CONFIG] search engine %s disabled: %v", ec.Name, err)
			continue
		}
		searchers = append(searchers, search.NewSearcher(engine,
			search.WithTimeout(sc.Timeout.Duration),
			search.WithRateLimit(search.RateLimit{
				Requests: ec.RateLimit.Requests,
				Window:   ec.RateLimit.Window.Duration,
			}),
		))
	}
	return searchers
}

// buildAggregator returns nil when no provider can synthesize; the pipeline
// then falls back to concatenation.
func buildAggregator(cfg *config.Config, reg *llm.Registry) (*aggregate.Engine, error) {
	opts := []aggregate.Option{
		aggregate.WithMaxAnswerChars(cfg.Aggregation.MaxAnswerChars),
		aggregate.WithSystemPrompt(cfg.Aggregation.SystemPrompt),
	}

	pc, ok := cfg.SynthesizerProvider()
	if !ok {
		logger.Warn("[CONFIG] no usable synthesizer provider, answers will be concatenated")
		return aggregate.NewEngine(nil, opts...), nil
	}

	model := pc.Model
	if m := strings.TrimSpace(cfg.Aggregation.Model); m != "" {
		model = m
	}
	client, err := reg.CreateClient(llm.ClientConfig{
		Type:    pc.Type,
		APIKey:  pc.APIKey,
		BaseURL: pc.BaseURL,
		Model:   model,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesizer %s: %w", pc.Name, err)
	}
	synth := llm.NewProvider(pc.Name, client, llm.Settings{
		Model:       model,
		Temperature: cfg.Aggregation.Temperature,
		MaxTokens:   cfg.Aggregation.MaxTokens,
		Timeout:     cfg.Aggregation.Timeout.Duration,
	})
	return aggregate.NewEngine(synth, opts...), nil
}

// record writes and archives a finished run. Failures are logged; the run
// itself already succeeded.
func (a *app) record(res *pipeline.Result) string {
	var dir string
	if a.writer != nil {
		d, err := a.writer.Write(res)
		if err != nil {
			logger.Error("[REPORT] failed to write run %s: %v", pipeline.ShortID(res.ID), err)
		} else {
			dir = d
		}
	}
	if a.store != nil {
		if err := a.store.SaveRun(report.NewDocument(res), dir); err != nil {
			logger.Error("[PERSIST] failed to archive run %s: %v", pipeline.ShortID(res.ID), err)
		}
	}
	return dir
}

func (a *app) providerNames() []string {
	names := make([]string, len(a.providers))
	for i, p := range a.providers {
		names[i] = p.ID()
	}
	return names
}

func (a *app) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
