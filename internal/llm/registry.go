package llm

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// ClientConfig is the backend-level part of a provider entry.
type ClientConfig struct {
	Type       string
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// ClientFactory builds a Client from its config.
type ClientFactory func(cfg ClientConfig) (Client, error)

// Registry maps backend types to client factories.
type Registry struct {
	factories map[string]ClientFactory
	mu        sync.RWMutex
}

// NewRegistry returns a registry with every built-in backend.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]ClientFactory),
	}

	for name := range openAIFamily {
		r.Register(name, NewOpenAIClient)
	}
	r.Register("anthropic", NewAnthropicClient)
	r.Register("claude", NewAnthropicClient)
	r.Register("gemini", NewGeminiClient)
	r.Register("google", NewGeminiClient)

	return r
}

func (r *Registry) Register(clientType string, factory ClientFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(clientType)] = factory
}

func (r *Registry) CreateClient(cfg ClientConfig) (Client, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.ToLower(strings.TrimSpace(cfg.Type))]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
	return factory(cfg)
}

// ListTypes returns registered backend types, sorted.
func (r *Registry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
