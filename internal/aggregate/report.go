package aggregate

import (
	"fmt"
	"strings"
	"time"

	"github.com/kayz/quorum/internal/llm"
)

// Outcome says which path produced Report.Content.
type Outcome string

const (
	// OutcomeSynthesized: the synthesizer answered.
	OutcomeSynthesized Outcome = "synthesized"
	// OutcomeFallback: synthesis was unavailable or failed; Content is the
	// concatenation of the successful answers.
	OutcomeFallback Outcome = "fallback"
	// OutcomeNoContent: no provider produced an answer; Content is a
	// placeholder explaining why.
	OutcomeNoContent Outcome = "no_content"
	// OutcomeRaw: synthesis was disabled; Content lists the raw answers.
	OutcomeRaw Outcome = "raw"
)

// Row is one successful provider in the comparison.
type Row struct {
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Chars     int           `json:"chars"`
	Elapsed   time.Duration `json:"elapsed"`
	Usage     *llm.Usage    `json:"usage,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
}

// Failure is one failed provider in the comparison.
type Failure struct {
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	Kind     llm.FailureKind `json:"kind"`
	Cause    string          `json:"cause"`
	Elapsed  time.Duration   `json:"elapsed"`
}

// Comparison holds per-provider metrics, successes and failures apart.
type Comparison struct {
	Rows     []Row     `json:"rows"`
	Failures []Failure `json:"failures"`
}

// Compare builds the comparison for rs in request order.
func Compare(rs *llm.Responses) Comparison {
	var c Comparison
	for _, r := range rs.All() {
		if r.OK() {
			c.Rows = append(c.Rows, Row{
				Provider:  r.ProviderID,
				Model:     r.Model,
				Chars:     r.Chars(),
				Elapsed:   r.Elapsed,
				Usage:     r.Usage,
				Truncated: r.Truncated(),
			})
			continue
		}
		c.Failures = append(c.Failures, Failure{
			Provider: r.ProviderID,
			Model:    r.Model,
			Kind:     r.Err.Kind,
			Cause:    r.Err.Cause(),
			Elapsed:  r.Elapsed,
		})
	}
	return c
}

// Report is the result of aggregating one panel's answers.
type Report struct {
	Question           string        `json:"question"`
	Comparison         Comparison    `json:"comparison"`
	Contradictions     []string      `json:"contradictions,omitempty"`
	Content            string        `json:"content"`
	SynthesisSucceeded bool          `json:"synthesis_succeeded"`
	Outcome            Outcome       `json:"outcome"`
	Synthesizer        string        `json:"synthesizer,omitempty"`
	SynthesisModel     string        `json:"synthesis_model,omitempty"`
	SynthesisError     string        `json:"synthesis_error,omitempty"`
	SynthesisElapsed   time.Duration `json:"synthesis_elapsed,omitempty"`
	SynthesisTruncated bool          `json:"synthesis_truncated,omitempty"`
	SynthesisUsage     *llm.Usage    `json:"synthesis_usage,omitempty"`
}

// ComparisonTable renders the comparison as a markdown table. Failed
// providers appear with their cause in the status column.
func (r Report) ComparisonTable() string {
	var sb strings.Builder
	sb.WriteString("| Provider/Model | Chars | Time (s) | Tokens | Status |\n")
	sb.WriteString("|---|---:|---:|---:|---|\n")
	for _, row := range r.Comparison.Rows {
		tokens := "N/A"
		if row.Usage != nil && row.Usage.TotalTokens > 0 {
			tokens = fmt.Sprintf("%d", row.Usage.TotalTokens)
		}
		status := "ok"
		if row.Truncated {
			status = "ok (truncated)"
		}
		sb.WriteString(fmt.Sprintf("| %s/%s | %d | %.2f | %s | %s |\n",
			row.Provider, row.Model, row.Chars, row.Elapsed.Seconds(), tokens, status))
	}
	for _, f := range r.Comparison.Failures {
		sb.WriteString(fmt.Sprintf("| %s/%s | 0 | %.2f | N/A | %s: %s |\n",
			f.Provider, f.Model, f.Elapsed.Seconds(), f.Kind, escapeCell(f.Cause)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}
