// Package aggregate turns a panel's answers into one report: a comparison of
// the providers, a synthesized answer, and a deterministic fallback when
// synthesis is not possible.
package aggregate

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/kayz/quorum/internal/llm"
	"github.com/kayz/quorum/internal/logger"
)

// DefaultMaxAnswerChars caps each answer embedded in the synthesis prompt.
const DefaultMaxAnswerChars = 12000

var errNoSynthesizer = errors.New("no synthesizer configured")

// Synthesizer produces the unified answer. *llm.Provider satisfies it.
type Synthesizer interface {
	ID() string
	Generate(ctx context.Context, prompt, system string) llm.Response
}

// Input is everything Aggregate needs.
type Input struct {
	Question  string
	Context   string
	Responses *llm.Responses
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxAnswerChars caps each answer in the prompt; n <= 0 disables the cap.
func WithMaxAnswerChars(n int) Option {
	return func(e *Engine) { e.maxAnswerChars = n }
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(s string) Option {
	return func(e *Engine) {
		if strings.TrimSpace(s) != "" {
			e.systemPrompt = s
		}
	}
}

// Engine aggregates panel answers. The zero synthesizer (nil) always takes
// the fallback path.
type Engine struct {
	synth          Synthesizer
	maxAnswerChars int
	systemPrompt   string
}

func NewEngine(synth Synthesizer, opts ...Option) *Engine {
	e := &Engine{
		synth:          synth,
		maxAnswerChars: DefaultMaxAnswerChars,
		systemPrompt:   DefaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Aggregate never fails: every error path still yields a report, and the
// content is non-empty whenever at least one provider answered.
func (e *Engine) Aggregate(ctx context.Context, in Input) Report {
	report := Report{
		Question:   in.Question,
		Comparison: Compare(in.Responses),
	}

	answers := in.Responses.Succeeded()
	if len(answers) == 0 {
		logger.Warn("[AGGREGATE] no provider produced an answer")
		report.Outcome = OutcomeNoContent
		report.Content = NoContentMessage(in.Responses)
		return report
	}

	if e.synth == nil {
		return e.fallback(report, in.Responses, errNoSynthesizer)
	}

	report.Synthesizer = e.synth.ID()
	prompt := BuildPrompt(in.Question, in.Context, answers, e.maxAnswerChars)
	logger.Info("[AGGREGATE] synthesizing %d answers with %s (prompt %d chars)", len(answers), report.Synthesizer, len([]rune(prompt)))

	resp := e.synth.Generate(ctx, prompt, e.systemPrompt)
	report.SynthesisElapsed = resp.Elapsed
	report.SynthesisModel = resp.Model
	if !resp.OK() {
		return e.fallback(report, in.Responses, resp.Err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return e.fallback(report, in.Responses, errors.New("synthesizer returned empty content"))
	}

	report.Content = resp.Content
	report.SynthesisSucceeded = true
	report.Outcome = OutcomeSynthesized
	report.SynthesisUsage = resp.Usage
	report.Contradictions = ParseContradictions(resp.Content)
	if resp.Truncated() {
		report.SynthesisTruncated = true
		tokens := "N/A"
		if resp.Usage != nil {
			tokens = strconv.Itoa(resp.Usage.CompletionTokens)
		}
		logger.Warn("[AGGREGATE] synthesized answer hit the max_tokens limit (%s completion tokens)", tokens)
	}
	logger.Info("[AGGREGATE] synthesis done in %s, %d contradictions noted", resp.Elapsed.Round(time.Millisecond), len(report.Contradictions))
	return report
}

// Raw builds a report without calling the synthesizer.
func (e *Engine) Raw(in Input) Report {
	report := Report{
		Question:   in.Question,
		Comparison: Compare(in.Responses),
	}
	if len(in.Responses.Succeeded()) == 0 {
		report.Outcome = OutcomeNoContent
		report.Content = NoContentMessage(in.Responses)
		return report
	}
	report.Outcome = OutcomeRaw
	report.Content = FormatResponses(in.Responses)
	return report
}

func (e *Engine) fallback(report Report, rs *llm.Responses, cause error) Report {
	logger.Warn("[AGGREGATE] synthesis unavailable, concatenating answers: %v", cause)
	report.Outcome = OutcomeFallback
	report.SynthesisSucceeded = false
	report.SynthesisError = cause.Error()
	report.Content = Concatenate(rs)
	return report
}
