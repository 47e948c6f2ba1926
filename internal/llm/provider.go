package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kayz/quorum/internal/fanout"
	"github.com/kayz/quorum/internal/logger"
)

// errEmptyContent marks a call that returned without error but said nothing.
var errEmptyContent = errors.New("empty response")

// Settings are the per-provider knobs applied to every request.
type Settings struct {
	Model        string
	Temperature  float32
	MaxTokens    int
	Timeout      time.Duration
	SystemPrompt string
}

// Provider is one panel member: a Client plus the settings it is called
// with. Generate never returns an error; failures are recorded on the
// Response.
type Provider struct {
	id       string
	client   Client
	settings Settings
}

// NewProvider wraps client under the given panel id.
func NewProvider(id string, client Client, settings Settings) *Provider {
	if id == "" && client != nil {
		id = client.Name()
	}
	return &Provider{id: id, client: client, settings: settings}
}

// ID returns the panel id, unique within a panel.
func (p *Provider) ID() string {
	return p.id
}

// Backend returns the client kind.
func (p *Provider) Backend() string {
	if p.client == nil {
		return ""
	}
	return p.client.Name()
}

// Model returns the configured model, or the client default.
func (p *Provider) Model() string {
	if p.settings.Model != "" {
		return p.settings.Model
	}
	if p.client == nil {
		return ""
	}
	return p.client.DefaultModel()
}

// Timeout returns the per-call timeout.
func (p *Provider) Timeout() time.Duration {
	return p.settings.Timeout
}

// Request builds the request Generate would send. An empty system prompt
// falls back to the provider's configured one.
func (p *Provider) Request(prompt, system string) Request {
	if system == "" {
		system = p.settings.SystemPrompt
	}
	return Request{
		ProviderID:   p.id,
		Prompt:       prompt,
		SystemPrompt: system,
		Model:        p.Model(),
		Temperature:  p.settings.Temperature,
		MaxTokens:    p.settings.MaxTokens,
		Timeout:      p.settings.Timeout,
	}
}

// Generate sends prompt with an optional system prompt.
func (p *Provider) Generate(ctx context.Context, prompt, system string) Response {
	return p.GenerateWith(ctx, p.Request(prompt, system))
}

// GenerateWith sends a prepared request. The request timeout bounds the call
// even if the client ignores its context.
func (p *Provider) GenerateWith(ctx context.Context, req Request) Response {
	if req.ProviderID == "" {
		req.ProviderID = p.id
	}
	if req.Model == "" {
		req.Model = p.Model()
	}

	resp := Response{ProviderID: p.id, Model: req.Model}
	if p.client == nil {
		resp.Err = &CallError{Provider: p.id, Kind: FailureBackend, Err: errors.New("no client")}
		resp.FinishReason = FinishError
		return resp
	}

	logger.Debug("[LLM] %s: calling %s (model=%s, timeout=%s)", p.id, p.client.Name(), req.Model, req.Timeout)

	out := fanout.Do(ctx, fanout.Task[Completion]{
		Name:    p.id,
		Timeout: req.Timeout,
		Run: func(ctx context.Context) (Completion, error) {
			return p.client.Complete(ctx, req)
		},
	})
	resp.Elapsed = out.Elapsed

	err := out.Err
	if err == nil && strings.TrimSpace(out.Value.Content) == "" {
		err = errEmptyContent
	}
	if err != nil {
		resp.Err = &CallError{Provider: p.id, Kind: classify(err), Err: err}
		resp.FinishReason = FinishError
		logger.Warn("[LLM] %s failed after %s: %v", p.id, out.Elapsed.Round(time.Millisecond), err)
		return resp
	}

	resp.Content = out.Value.Content
	resp.Usage = out.Value.Usage
	resp.FinishReason = out.Value.FinishReason
	if resp.FinishReason == "" {
		resp.FinishReason = FinishStop
	}
	if out.Value.Model != "" {
		resp.Model = out.Value.Model
	}
	if resp.Truncated() {
		logger.Warn("[LLM] %s: answer hit the token limit and may be truncated", p.id)
	}
	logger.Debug("[LLM] %s: %d chars in %s", p.id, resp.Chars(), out.Elapsed.Round(time.Millisecond))
	return resp
}

func classify(err error) FailureKind {
	var pe *fanout.PanicError
	switch {
	case errors.Is(err, fanout.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	case errors.As(err, &pe):
		return FailurePanic
	default:
		return FailureBackend
	}
}

// String is used in bench output and logs.
func (p *Provider) String() string {
	return fmt.Sprintf("%s (%s/%s)", p.id, p.Backend(), p.Model())
}
