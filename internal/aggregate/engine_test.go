package aggregate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kayz/quorum/internal/fanout"
	"github.com/kayz/quorum/internal/llm"
)

type mockSynth struct {
	GenerateFunc func(ctx context.Context, prompt, system string) llm.Response
	prompts      []string
}

func (m *mockSynth) ID() string { return "judge" }

func (m *mockSynth) Generate(ctx context.Context, prompt, system string) llm.Response {
	m.prompts = append(m.prompts, prompt)
	return m.GenerateFunc(ctx, prompt, system)
}

func ok(id, content string) llm.Response {
	return llm.Response{ProviderID: id, Model: id + "-m", Content: content, Elapsed: time.Second, FinishReason: llm.FinishStop}
}

func failed(id string, kind llm.FailureKind, err error) llm.Response {
	return llm.Response{ProviderID: id, Model: id + "-m", FinishReason: llm.FinishError,
		Err: &llm.CallError{Provider: id, Kind: kind, Err: err}}
}

// threeProviders mirrors a panel where B timed out.
func threeProviders() *llm.Responses {
	timeout := &fanout.TimeoutError{Task: "B", Timeout: time.Second}
	return llm.NewResponses(
		ok("A", strings.Repeat("a", 500)),
		failed("B", llm.FailureTimeout, timeout),
		ok("C", strings.Repeat("c", 700)),
	)
}

func TestAllProvidersFailed(t *testing.T) {
	rs := llm.NewResponses(
		failed("A", llm.FailureBackend, errors.New("401")),
		failed("B", llm.FailureTimeout, errors.New("slow")),
	)
	synth := &mockSynth{GenerateFunc: func(context.Context, string, string) llm.Response {
		t.Fatalf("synthesizer must not be called")
		return llm.Response{}
	}}

	report := NewEngine(synth).Aggregate(context.Background(), Input{Question: "q", Responses: rs})

	assert.False(t, report.SynthesisSucceeded)
	assert.Equal(t, OutcomeNoContent, report.Outcome)
	assert.NotEmpty(t, report.Content)
	assert.Contains(t, report.Content, "A (A-m): backend: 401")
	assert.Len(t, report.Comparison.Failures, 2)
	assert.Empty(t, report.Comparison.Rows)
}

func TestFailureWithoutCauseDoesNotPanic(t *testing.T) {
	rs := llm.NewResponses(
		ok("A", "alpha"),
		llm.Response{ProviderID: "B", Model: "B-m", Err: &llm.CallError{Provider: "B", Kind: llm.FailureBackend}},
	)

	var report Report
	require.NotPanics(t, func() {
		report = NewEngine(nil).Aggregate(context.Background(), Input{Question: "q", Responses: rs})
	})
	require.Len(t, report.Comparison.Failures, 1)
	assert.Equal(t, "backend", report.Comparison.Failures[0].Cause)
	assert.Contains(t, report.Content, "alpha")
	assert.NotContains(t, report.Content, "<nil>")
}

func TestSynthesisFailureFallsBackToConcatenation(t *testing.T) {
	rs := threeProviders()
	synth := &mockSynth{GenerateFunc: func(context.Context, string, string) llm.Response {
		return failed("judge", llm.FailureTimeout, fanout.ErrTimeout)
	}}

	report := NewEngine(synth).Aggregate(context.Background(), Input{Question: "q", Responses: rs})

	assert.False(t, report.SynthesisSucceeded)
	assert.Equal(t, OutcomeFallback, report.Outcome)
	assert.Equal(t, Concatenate(rs), report.Content)
	assert.NotEmpty(t, report.SynthesisError)

	a := strings.Index(report.Content, "### Answer from A (A-m)")
	c := strings.Index(report.Content, "### Answer from C (C-m)")
	require.True(t, a >= 0 && c > a, "answers must follow request order")
	assert.NotContains(t, report.Content, "Answer from B")
}

func TestNilSynthesizerFallsBack(t *testing.T) {
	rs := llm.NewResponses(ok("A", "only answer"))
	report := NewEngine(nil).Aggregate(context.Background(), Input{Question: "q", Responses: rs})
	assert.Equal(t, OutcomeFallback, report.Outcome)
	assert.Contains(t, report.Content, "only answer")
}

func TestThreeProviderTimeoutScenario(t *testing.T) {
	rs := threeProviders()
	require.Equal(t, 3, rs.Len())

	synth := &mockSynth{GenerateFunc: func(_ context.Context, prompt, _ string) llm.Response {
		return ok("judge", "Unified answer.\n\n## Contradictions\n\n- A says x, C says y\n")
	}}
	report := NewEngine(synth).Aggregate(context.Background(), Input{Question: "q", Responses: rs})

	require.Len(t, report.Comparison.Rows, 2)
	assert.Equal(t, "A", report.Comparison.Rows[0].Provider)
	assert.Equal(t, 500, report.Comparison.Rows[0].Chars)
	assert.Equal(t, "C", report.Comparison.Rows[1].Provider)
	assert.Equal(t, 700, report.Comparison.Rows[1].Chars)
	require.Len(t, report.Comparison.Failures, 1)
	assert.Equal(t, "B", report.Comparison.Failures[0].Provider)
	assert.Equal(t, llm.FailureTimeout, report.Comparison.Failures[0].Kind)
	assert.Contains(t, report.Comparison.Failures[0].Cause, "timed out")

	assert.True(t, report.SynthesisSucceeded)
	assert.Equal(t, OutcomeSynthesized, report.Outcome)
	assert.Equal(t, []string{"A says x, C says y"}, report.Contradictions)

	table := report.ComparisonTable()
	assert.Contains(t, table, "| A/A-m | 500 |")
	assert.Contains(t, table, "| C/C-m | 700 |")
	assert.Contains(t, table, "timeout")

	// The failed provider's absence from the prompt and the presence of both answers.
	require.Len(t, synth.prompts, 1)
	assert.Contains(t, synth.prompts[0], "Answer 1 - A (A-m)")
	assert.Contains(t, synth.prompts[0], "Answer 2 - C (C-m)")
	assert.NotContains(t, synth.prompts[0], "- B (")

	// Same panel, synthesis down: still non-empty.
	down := &mockSynth{GenerateFunc: func(context.Context, string, string) llm.Response {
		return failed("judge", llm.FailureBackend, errors.New("500"))
	}}
	assert.NotEmpty(t, NewEngine(down).Aggregate(context.Background(), Input{Question: "q", Responses: rs}).Content)
}

func TestSynthesisTruncationIsFlagged(t *testing.T) {
	synth := &mockSynth{GenerateFunc: func(context.Context, string, string) llm.Response {
		r := ok("judge", "partial")
		r.FinishReason = llm.FinishLength
		r.Usage = &llm.Usage{CompletionTokens: 4000}
		return r
	}}
	report := NewEngine(synth).Aggregate(context.Background(), Input{Question: "q", Responses: llm.NewResponses(ok("A", "x"))})
	assert.True(t, report.SynthesisTruncated)
	assert.True(t, report.SynthesisSucceeded)
}

func TestPromptCapsAnswersAndCarriesContext(t *testing.T) {
	prompt := BuildPrompt("why?", "[From WEB]\n1. t", []llm.Response{ok("A", strings.Repeat("z", 50))}, 10)
	assert.Contains(t, prompt, "### Question\n\nwhy?")
	assert.Contains(t, prompt, "### Reference information")
	assert.Contains(t, prompt, strings.Repeat("z", 10)+"\n\n[... answer truncated ...]")
	assert.NotContains(t, prompt, strings.Repeat("z", 11))
	assert.Contains(t, prompt, ContradictionsHeading)
	for i := 1; i <= 5; i++ {
		assert.Contains(t, prompt, string(rune('0'+i))+". ")
	}

	noCtx := BuildPrompt("why?", "  ", nil, 0)
	assert.NotContains(t, noCtx, "Reference information")
}

func TestRawReport(t *testing.T) {
	rs := threeProviders()
	report := NewEngine(nil).Raw(Input{Question: "q", Responses: rs})
	assert.Equal(t, OutcomeRaw, report.Outcome)
	assert.False(t, report.SynthesisSucceeded)
	assert.Contains(t, report.Content, "### Answer 2: B (B-m)")
	assert.Contains(t, report.Content, "error (timeout)")

	empty := NewEngine(nil).Raw(Input{Responses: llm.NewResponses()})
	assert.Equal(t, OutcomeNoContent, empty.Outcome)
	assert.NotEmpty(t, empty.Content)
}

func TestParseContradictions(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"none", "Answer\n\n## Contradictions\n- None\n", nil},
		{"missing", "Answer only", nil},
		{"bullets", "Answer\n## Contradictions\n* one\n1. two\n   continued\n## Sources\n- not me", []string{"one", "two continued"}},
		{"paragraph", "### Contradictions\nThe models disagree on dates.\n", []string{"The models disagree on dates."}},
		{"no contradictions", "## Contradictions\n\nNo contradictions were found.", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseContradictions(tc.in))
		})
	}
}
