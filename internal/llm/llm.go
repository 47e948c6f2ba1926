// Package llm talks to chat-completion backends. A Client speaks one
// vendor's protocol; a Provider wraps a Client with per-panel settings and
// turns every failure into data on the returned Response.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoProviders is returned when a panel is built with nothing to ask.
var ErrNoProviders = errors.New("no providers configured")

// Finish reasons normalized across backends.
const (
	FinishStop   = "stop"
	FinishLength = "length"
	FinishError  = "error"
)

// Request is what a Provider sends for one call.
type Request struct {
	ProviderID   string
	Prompt       string
	SystemPrompt string
	Model        string
	Temperature  float32
	MaxTokens    int
	Timeout      time.Duration
}

// Usage is token accounting as reported by the backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is a backend's raw answer.
type Completion struct {
	Content      string
	Model        string
	FinishReason string
	Usage        *Usage
}

// Client is one chat-completion backend.
type Client interface {
	// Name returns the backend kind, e.g. "openai".
	Name() string
	// DefaultModel is used when a request leaves Model empty.
	DefaultModel() string
	Complete(ctx context.Context, req Request) (Completion, error)
}

// FailureKind classifies why a call produced no content.
type FailureKind string

const (
	FailureTimeout  FailureKind = "timeout"
	FailureCanceled FailureKind = "canceled"
	FailureBackend  FailureKind = "backend"
	FailurePanic    FailureKind = "panic"
)

// CallError is attached to a Response whose call failed.
type CallError struct {
	Provider string
	Kind     FailureKind
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

// Cause describes the underlying error, or just the kind when there is none.
func (e *CallError) Cause() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Response is the settled result of one provider call. Exactly one of
// Content or Err is meaningful.
type Response struct {
	ProviderID   string
	Model        string
	Content      string
	Usage        *Usage
	FinishReason string
	Elapsed      time.Duration
	Err          *CallError
}

// OK reports whether the call succeeded.
func (r Response) OK() bool {
	return r.Err == nil
}

// Truncated reports whether the backend stopped at its token limit.
func (r Response) Truncated() bool {
	return r.FinishReason == FinishLength
}

// Chars is the content length in runes.
func (r Response) Chars() int {
	return len([]rune(r.Content))
}
