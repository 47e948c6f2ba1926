// Package report turns a pipeline result into serializable documents and
// writes them to disk.
package report

import (
	"time"

	"github.com/kayz/quorum/internal/aggregate"
	"github.com/kayz/quorum/internal/llm"
	"github.com/kayz/quorum/internal/pipeline"
	"github.com/kayz/quorum/internal/search"
)

// Response is one provider's answer as stored in a document.
type Response struct {
	Provider       string     `json:"provider"`
	Model          string     `json:"model"`
	Content        string     `json:"content,omitempty"`
	FinishReason   string     `json:"finish_reason"`
	ElapsedSeconds float64    `json:"elapsed_seconds"`
	Usage          *llm.Usage `json:"usage,omitempty"`
	ErrorKind      string     `json:"error_kind,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// OK reports whether the provider answered.
func (r Response) OK() bool {
	return r.Error == "" && r.ErrorKind == ""
}

// Search is the search stage as stored in a document.
type Search struct {
	Query      string                  `json:"query"`
	Iterations []search.IterationStats `json:"iterations"`
	Duplicates int                     `json:"duplicates"`
	AllFailed  bool                    `json:"all_failed"`
	Results    []search.Result         `json:"results"`
}

// Timing is one stage duration.
type Timing struct {
	Stage   string  `json:"stage"`
	Seconds float64 `json:"seconds"`
	Error   string  `json:"error,omitempty"`
}

// Document is the stable, serializable record of one run.
type Document struct {
	ID                 string               `json:"id"`
	Question           string               `json:"question"`
	State              string               `json:"state"`
	StartedAt          time.Time            `json:"started_at"`
	FinishedAt         time.Time            `json:"finished_at"`
	ElapsedSeconds     float64              `json:"elapsed_seconds"`
	Outcome            string               `json:"outcome"`
	SynthesisSucceeded bool                 `json:"synthesis_succeeded"`
	Synthesizer        string               `json:"synthesizer,omitempty"`
	SynthesisModel     string               `json:"synthesis_model,omitempty"`
	SynthesisError     string               `json:"synthesis_error,omitempty"`
	SynthesisTruncated bool                 `json:"synthesis_truncated,omitempty"`
	Content            string               `json:"content"`
	Contradictions     []string             `json:"contradictions,omitempty"`
	Comparison         aggregate.Comparison `json:"comparison"`
	ComparisonTable    string               `json:"comparison_table"`
	Responses          []Response           `json:"responses"`
	Search             *Search              `json:"search,omitempty"`
	Timings            []Timing             `json:"timings"`
}

// NewDocument flattens a pipeline result.
func NewDocument(res *pipeline.Result) Document {
	rep := res.Report
	doc := Document{
		ID:                 res.ID,
		Question:           res.Question,
		State:              string(res.State),
		StartedAt:          res.StartedAt,
		FinishedAt:         res.FinishedAt,
		ElapsedSeconds:     res.Elapsed().Seconds(),
		Outcome:            string(rep.Outcome),
		SynthesisSucceeded: rep.SynthesisSucceeded,
		Synthesizer:        rep.Synthesizer,
		SynthesisModel:     rep.SynthesisModel,
		SynthesisError:     rep.SynthesisError,
		SynthesisTruncated: rep.SynthesisTruncated,
		Content:            rep.Content,
		Contradictions:     rep.Contradictions,
		Comparison:         rep.Comparison,
		ComparisonTable:    rep.ComparisonTable(),
	}

	for _, r := range res.Responses.All() {
		doc.Responses = append(doc.Responses, responseOf(r))
	}

	if s := res.Search; s != nil {
		doc.Search = &Search{
			Query:      s.Query,
			Iterations: s.Iterations,
			Duplicates: s.Duplicates,
			AllFailed:  s.AllFailed,
			Results:    s.Results(),
		}
	}

	for _, span := range res.Timings {
		doc.Timings = append(doc.Timings, Timing{
			Stage:   span.Stage,
			Seconds: span.Duration().Seconds(),
			Error:   span.Err,
		})
	}
	return doc
}

func responseOf(r llm.Response) Response {
	out := Response{
		Provider:       r.ProviderID,
		Model:          r.Model,
		Content:        r.Content,
		FinishReason:   r.FinishReason,
		ElapsedSeconds: r.Elapsed.Seconds(),
		Usage:          r.Usage,
	}
	if r.Err != nil {
		out.ErrorKind = string(r.Err.Kind)
		out.Error = r.Err.Cause()
	}
	return out
}
