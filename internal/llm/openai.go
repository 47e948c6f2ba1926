package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

type openAIDefaults struct {
	baseURL  string
	model    string
	needsKey bool
}

// openAIFamily lists backends that speak the OpenAI chat-completions
// protocol. An empty baseURL means the go-openai default.
var openAIFamily = map[string]openAIDefaults{
	"openai":        {model: "gpt-4o", needsKey: true},
	"deepseek":      {baseURL: "https://api.deepseek.com/v1", model: "deepseek-chat", needsKey: true},
	"kimi":          {baseURL: "https://api.moonshot.cn/v1", model: "moonshot-v1-8k", needsKey: true},
	"moonshot":      {baseURL: "https://api.moonshot.cn/v1", model: "moonshot-v1-8k", needsKey: true},
	"qwen":          {baseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1", model: "qwen-plus", needsKey: true},
	"ollama":        {baseURL: "http://localhost:11434/v1", model: "llama3.1"},
	"openai_compat": {},
}

// OpenAIClient talks to any OpenAI-compatible chat endpoint.
type OpenAIClient struct {
	client *openai.Client
	name   string
	model  string
}

// NewOpenAIClient creates a client for cfg.Type, filling base URL and model
// from the backend's defaults.
func NewOpenAIClient(cfg ClientConfig) (Client, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Type))
	if name == "" {
		name = "openai"
	}
	defaults, ok := openAIFamily[name]
	if !ok {
		defaults = openAIFamily["openai_compat"]
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaults.baseURL
	}
	if cfg.APIKey == "" && (defaults.needsKey || baseURL == "") {
		return nil, fmt.Errorf("%s: API key is required", name)
	}

	model := cfg.Model
	if model == "" {
		model = defaults.model
	}
	if model == "" {
		return nil, fmt.Errorf("%s: model is required", name)
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		name:   name,
		model:  model,
	}, nil
}

// Name returns the backend kind
func (c *OpenAIClient) Name() string {
	return c.name
}

func (c *OpenAIClient) DefaultModel() string {
	return c.model
}

// Complete sends one user turn, preceded by the system prompt when set.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	model := req.Model
	if model == "" {
		model = c.model
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return Completion{}, fmt.Errorf("%s API error: %w", c.name, err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("%s API returned no choices", c.name)
	}

	choice := resp.Choices[0]
	out := Completion{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: normalizeOpenAIFinish(choice.FinishReason),
	}
	if resp.Usage.TotalTokens > 0 {
		out.Usage = &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out, nil
}

func normalizeOpenAIFinish(r openai.FinishReason) string {
	switch r {
	case openai.FinishReasonLength:
		return FinishLength
	case "", openai.FinishReasonStop:
		return FinishStop
	default:
		return string(r)
	}
}
