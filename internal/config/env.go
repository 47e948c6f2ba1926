package config

import (
	"fmt"
	"strconv"
	"strings"
)

// providerKeyEnv maps a provider type to the environment variables that can
// supply its API key and model, in lookup order.
var providerKeyEnv = map[string]struct {
	keys  []string
	model string
}{
	"openai":    {keys: []string{"OPENAI_API_KEY"}, model: "OPENAI_MODEL"},
	"anthropic": {keys: []string{"ANTHROPIC_API_KEY"}, model: "ANTHROPIC_MODEL"},
	"claude":    {keys: []string{"ANTHROPIC_API_KEY"}, model: "ANTHROPIC_MODEL"},
	"gemini":    {keys: []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"}, model: "GEMINI_MODEL"},
	"google":    {keys: []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"}, model: "GEMINI_MODEL"},
	"deepseek":  {keys: []string{"DEEPSEEK_API_KEY"}, model: "DEEPSEEK_MODEL"},
	"kimi":      {keys: []string{"MOONSHOT_API_KEY", "KIMI_API_KEY"}, model: "KIMI_MODEL"},
	"moonshot":  {keys: []string{"MOONSHOT_API_KEY", "KIMI_API_KEY"}, model: "KIMI_MODEL"},
	"qwen":      {keys: []string{"DASHSCOPE_API_KEY", "QWEN_API_KEY"}, model: "QWEN_MODEL"},
}

var engineKeyEnv = map[string]string{
	"tavily":  "TAVILY_API_KEY",
	"brave":   "BRAVE_API_KEY",
	"metaso":  "METASO_API_KEY",
	"searxng": "SEARXNG_URL",
}

// ApplyEnv overlays values from the environment. Keys already present in the
// file win; model names and numeric knobs from the environment override the
// file. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	for i := range c.Providers {
		p := &c.Providers[i]
		env, ok := providerKeyEnv[strings.ToLower(p.Type)]
		if !ok {
			continue
		}
		if p.APIKey == "" {
			for _, k := range env.keys {
				if v := getenv(k); v != "" {
					p.APIKey = v
					break
				}
			}
		}
		if v := getenv(env.model); v != "" {
			p.Model = v
		}
	}

	for i := range c.Search.Engines {
		e := &c.Search.Engines[i]
		name, ok := engineKeyEnv[strings.ToLower(e.Type)]
		if !ok {
			continue
		}
		v := getenv(name)
		if v == "" {
			continue
		}
		if e.Type == "searxng" {
			if e.BaseURL == "" {
				e.BaseURL = v
			}
		} else if e.APIKey == "" {
			e.APIKey = v
		}
	}

	if err := envInt(getenv, "SEARCH_MAX_ITERATIONS", &c.Search.MaxIterations); err != nil {
		return err
	}
	if err := envInt(getenv, "SEARCH_RESULTS_PER_ITERATION", &c.Search.ResultsPerIteration); err != nil {
		return err
	}
	if err := envBool(getenv, "ENABLE_PARALLEL", &c.Aggregation.ParallelEnabled); err != nil {
		return err
	}
	if v := getenv("AGGREGATION_MODEL"); v != "" {
		c.Aggregation.Model = v
	}
	if v := getenv("AGGREGATION_PROVIDER"); v != "" {
		c.Aggregation.Provider = v
	}

	var llmTimeout, searchTimeout Duration
	if err := envDuration(getenv, "LLM_TIMEOUT", &llmTimeout); err != nil {
		return err
	}
	if !llmTimeout.IsZero() {
		for i := range c.Providers {
			c.Providers[i].Timeout = llmTimeout
		}
	}
	if err := envDuration(getenv, "SEARCH_TIMEOUT", &searchTimeout); err != nil {
		return err
	}
	if !searchTimeout.IsZero() {
		c.Search.Timeout = searchTimeout
	}
	if err := envDuration(getenv, "RUN_TIMEOUT", &c.RunTimeout); err != nil {
		return err
	}
	return nil
}

func envInt(getenv func(string) string, name string, dst *int) error {
	v := strings.TrimSpace(getenv(name))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, name, v)
	}
	*dst = n
	return nil
}

func envBool(getenv func(string) string, name string, dst *bool) error {
	v := strings.TrimSpace(getenv(name))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, name, v)
	}
	*dst = b
	return nil
}

// envDuration reads "90s" or plain seconds.
func envDuration(getenv func(string) string, name string, dst *Duration) error {
	v := strings.TrimSpace(getenv(name))
	if v == "" {
		return nil
	}
	var d Duration
	if err := d.UnmarshalText([]byte(v)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
	}
	if d.Duration < 0 {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalid, name)
	}
	*dst = d
	return nil
}

// EnvLookup builds a getenv func over a fixed map, for tests and embedding.
func EnvLookup(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}
