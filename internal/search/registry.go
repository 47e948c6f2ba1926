package search

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// builtinEngines are registered by NewRegistry. "web" is an alias of the
// DuckDuckGo scraper.
var builtinEngines = map[string]EngineFactory{
	"duckduckgo": NewDuckDuckGoEngine,
	"web":        NewDuckDuckGoEngine,
	"arxiv":      NewArxivEngine,
	"tavily":     NewTavilyEngine,
	"brave":      NewBraveEngine,
	"metaso":     NewMetasoEngine,
	"searxng":    NewSearxngEngine,
}

// Registry maps engine types to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]EngineFactory
}

func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]EngineFactory, len(builtinEngines))}
	for typ, f := range builtinEngines {
		r.factories[typ] = f
	}
	return r
}

// Register adds or replaces the factory for engineType.
func (r *Registry) Register(engineType string, factory EngineFactory) {
	r.mu.Lock()
	r.factories[strings.ToLower(engineType)] = factory
	r.mu.Unlock()
}

func (r *Registry) CreateEngine(config EngineConfig) (Engine, error) {
	typ := strings.ToLower(strings.TrimSpace(config.Type))
	r.mu.RLock()
	factory, ok := r.factories[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown engine type: %q", config.Type)
	}
	return factory(config)
}

// ListTypes returns the registered types, sorted.
func (r *Registry) ListTypes() []string {
	r.mu.RLock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	r.mu.RUnlock()
	sort.Strings(types)
	return types
}
