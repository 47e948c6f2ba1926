package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	exeDirCache string
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// getExecutableDir returns the directory where the executable is located
func getExecutableDir() string {
	if exeDirCache != "" {
		return exeDirCache
	}
	execPath, err := os.Executable()
	if err != nil {
		exeDirCache = "."
		return exeDirCache
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		exeDirCache = "."
		return exeDirCache
	}
	exeDirCache = filepath.Dir(execPath)
	return exeDirCache
}

type Config struct {
	Logging           LoggingConfig     `yaml:"logging"`
	Providers         []ProviderConfig  `yaml:"providers"`
	PanelSystemPrompt string            `yaml:"panel_system_prompt,omitempty"`
	Search            SearchConfig      `yaml:"search"`
	Aggregation       AggregationConfig `yaml:"aggregation"`
	RunTimeout        Duration          `yaml:"run_timeout"`
	Output            OutputConfig      `yaml:"output"`
	Server            ServerConfig      `yaml:"server,omitempty"`
	Schedules         []ScheduleConfig  `yaml:"schedules,omitempty"`
}

// ProviderConfig describes one LLM backend on the panel.
type ProviderConfig struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"` // openai, anthropic, gemini, deepseek, kimi, qwen, ollama, openai_compat
	APIKey      string   `yaml:"api_key,omitempty"`
	BaseURL     string   `yaml:"base_url,omitempty"`
	Model       string   `yaml:"model,omitempty"`
	Temperature float32  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	Timeout     Duration `yaml:"timeout"`
	Enabled     bool     `yaml:"enabled"`
}

// NeedsAPIKey reports whether the backend type requires credentials.
func (p ProviderConfig) NeedsAPIKey() bool {
	switch strings.ToLower(strings.TrimSpace(p.Type)) {
	case "ollama":
		return false
	case "openai_compat":
		return strings.TrimSpace(p.BaseURL) == ""
	default:
		return true
	}
}

// Usable reports whether the provider is enabled and has what it needs to
// be called.
func (p ProviderConfig) Usable() bool {
	if !p.Enabled {
		return false
	}
	return !p.NeedsAPIKey() || strings.TrimSpace(p.APIKey) != ""
}

// SearchEngineConfig 单个搜索引擎配置
type SearchEngineConfig struct {
	Name      string                 `yaml:"name"`
	Type      string                 `yaml:"type"`
	APIKey    string                 `yaml:"api_key,omitempty"`
	BaseURL   string                 `yaml:"base_url,omitempty"`
	Enabled   bool                   `yaml:"enabled"`
	Priority  int                    `yaml:"priority"`
	RateLimit RateLimitConfig        `yaml:"rate_limit,omitempty"`
	Options   map[string]interface{} `yaml:"options,omitempty"`
}

// RateLimitConfig allows Requests calls per Window for one engine.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// SearchConfig 搜索整体配置
type SearchConfig struct {
	Enabled             bool                 `yaml:"enabled"`
	MaxIterations       int                  `yaml:"max_iterations"`
	ResultsPerIteration int                  `yaml:"results_per_iteration"`
	Diversify           bool                 `yaml:"diversify"`
	Timeout             Duration             `yaml:"timeout"`
	ContextPerSource    int                  `yaml:"context_per_source"`
	Engines             []SearchEngineConfig `yaml:"engines"`
}

// EnabledEngines returns the engines that are switched on, in file order.
func (s SearchConfig) EnabledEngines() []SearchEngineConfig {
	out := make([]SearchEngineConfig, 0, len(s.Engines))
	for _, e := range s.Engines {
		if e.Enabled {
			out = append(out, e)
		}
	}
	return out
}

// AggregationConfig controls the synthesis step and panel scheduling.
type AggregationConfig struct {
	Synthesize      bool     `yaml:"synthesize"`
	Provider        string   `yaml:"provider,omitempty"` // provider entry whose backend synthesizes; defaults to the first usable one
	Model           string   `yaml:"model,omitempty"`
	Temperature     float32  `yaml:"temperature"`
	MaxTokens       int      `yaml:"max_tokens"`
	Timeout         Duration `yaml:"timeout"`
	ParallelEnabled bool     `yaml:"parallel_enabled"`
	SystemPrompt    string   `yaml:"system_prompt,omitempty"`
	MaxAnswerChars  int      `yaml:"max_answer_chars"`
}

type OutputConfig struct {
	Dir        string `yaml:"dir"`
	WriteFiles bool   `yaml:"write_files"`
	ArchiveDB  string `yaml:"archive_db,omitempty"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ScheduleConfig is a question asked on a cron schedule.
type ScheduleConfig struct {
	Name     string `yaml:"name"`
	Spec     string `yaml:"spec"`
	Question string `yaml:"question"`
	Enabled  bool   `yaml:"enabled"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Providers: []ProviderConfig{
			{Name: "openai", Type: "openai", Model: "gpt-4o", Temperature: 0.7, MaxTokens: 2000, Timeout: DurationFrom(60 * time.Second), Enabled: true},
			{Name: "gemini", Type: "gemini", Model: "gemini-2.0-flash", Temperature: 0.7, MaxTokens: 2000, Timeout: DurationFrom(60 * time.Second), Enabled: true},
			{Name: "anthropic", Type: "anthropic", Model: "claude-3-5-sonnet-latest", Temperature: 0.7, MaxTokens: 2000, Timeout: DurationFrom(60 * time.Second), Enabled: true},
		},
		Search: SearchConfig{
			Enabled:             true,
			MaxIterations:       3,
			ResultsPerIteration: 10,
			Diversify:           true,
			Timeout:             DurationFrom(30 * time.Second),
			ContextPerSource:    5,
			Engines: []SearchEngineConfig{
				{
					Name:      "web",
					Type:      "duckduckgo",
					Enabled:   true,
					Priority:  1,
					RateLimit: RateLimitConfig{Requests: 1, Window: DurationFrom(time.Second)},
				},
				{
					Name:      "arxiv",
					Type:      "arxiv",
					Enabled:   true,
					Priority:  2,
					RateLimit: RateLimitConfig{Requests: 1, Window: DurationFrom(3 * time.Second)},
				},
				{
					Name:     "tavily",
					Type:     "tavily",
					Enabled:  false,
					Priority: 3,
				},
			},
		},
		Aggregation: AggregationConfig{
			Synthesize:      true,
			Temperature:     0.3,
			MaxTokens:       4000,
			Timeout:         DurationFrom(120 * time.Second),
			ParallelEnabled: true,
			MaxAnswerChars:  12000,
		},
		RunTimeout: DurationFrom(5 * time.Minute),
		Output: OutputConfig{
			Dir:        "output",
			WriteFiles: true,
			ArchiveDB:  filepath.Join(".quorum", "runs.db"),
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8686",
		},
	}
}

func ConfigDir() string {
	exeDir := getExecutableDir()
	return filepath.Join(exeDir, ".quorum")
}

func ConfigPath() string {
	exeDir := getExecutableDir()
	return filepath.Join(exeDir, ".quorum.yaml")
}

func Load() (*Config, error) {
	return LoadFromPath(ConfigPath())
}

// LoadFromPath reads the yaml file at path over DefaultConfig. A missing
// file yields the defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// UsableProviders returns the enabled providers that have credentials, in
// file order.
func (c *Config) UsableProviders() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p.Usable() {
			out = append(out, p)
		}
	}
	return out
}

// SynthesizerProvider resolves the provider entry used for synthesis.
func (c *Config) SynthesizerProvider() (ProviderConfig, bool) {
	usable := c.UsableProviders()
	name := strings.TrimSpace(c.Aggregation.Provider)
	if name == "" {
		if len(usable) == 0 {
			return ProviderConfig{}, false
		}
		return usable[0], true
	}
	for _, p := range usable {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: providers[%d].name is empty", ErrInvalid, i)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate provider name %q", ErrInvalid, p.Name)
		}
		seen[p.Name] = true
		if strings.TrimSpace(p.Type) == "" {
			return fmt.Errorf("%w: provider %q has no type", ErrInvalid, p.Name)
		}
		if p.MaxTokens < 0 {
			return fmt.Errorf("%w: provider %q max_tokens must not be negative", ErrInvalid, p.Name)
		}
		if p.Temperature < 0 || p.Temperature > 2 {
			return fmt.Errorf("%w: provider %q temperature must be within [0, 2]", ErrInvalid, p.Name)
		}
		if p.Timeout.Duration < 0 {
			return fmt.Errorf("%w: provider %q timeout must not be negative", ErrInvalid, p.Name)
		}
	}

	if c.Search.MaxIterations < 0 {
		return fmt.Errorf("%w: search.max_iterations must not be negative", ErrInvalid)
	}
	if c.Search.ResultsPerIteration < 0 {
		return fmt.Errorf("%w: search.results_per_iteration must not be negative", ErrInvalid)
	}
	engineNames := make(map[string]bool, len(c.Search.Engines))
	for i, e := range c.Search.Engines {
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("%w: search.engines[%d].name is empty", ErrInvalid, i)
		}
		if engineNames[e.Name] {
			return fmt.Errorf("%w: duplicate search engine name %q", ErrInvalid, e.Name)
		}
		engineNames[e.Name] = true
	}

	if c.Aggregation.Timeout.Duration < 0 {
		return fmt.Errorf("%w: aggregation.timeout must not be negative", ErrInvalid)
	}
	if name := strings.TrimSpace(c.Aggregation.Provider); name != "" && !seen[name] {
		return fmt.Errorf("%w: aggregation.provider %q is not a configured provider", ErrInvalid, name)
	}
	if c.RunTimeout.Duration < 0 {
		return fmt.Errorf("%w: run_timeout must not be negative", ErrInvalid)
	}

	for i, s := range c.Schedules {
		if strings.TrimSpace(s.Spec) == "" || strings.TrimSpace(s.Question) == "" {
			return fmt.Errorf("%w: schedules[%d] needs spec and question", ErrInvalid, i)
		}
	}
	return nil
}
