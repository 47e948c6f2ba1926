package persist

import (
	"encoding/json"
	"time"

	"github.com/kayz/quorum/internal/report"
)

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID                 string
	Question           string
	Outcome            string
	State              string
	SynthesisSucceeded bool
	Providers          int
	Succeeded          int
	ElapsedSeconds     float64
	OutputDir          string
	StartedAt          time.Time
	CreatedAt          time.Time
}

// Run is a stored run with its full document.
type Run struct {
	RunSummary
	Document  report.Document
	Responses []ResponseRow
}

// ResponseRow is one provider's outcome within a run
type ResponseRow struct {
	RunID          string
	Provider       string
	Model          string
	Chars          int
	ElapsedSeconds float64
	TotalTokens    int
	ErrorKind      string
	Error          string
}

// OK reports whether the provider answered.
func (r ResponseRow) OK() bool {
	return r.ErrorKind == "" && r.Error == ""
}

// ProviderStats aggregates a provider's history across runs.
type ProviderStats struct {
	Provider       string
	Calls          int
	Failures       int
	AvgSeconds     float64
	LastModel      string
	FailureByKinds map[string]int
}

// SuccessRate is the share of calls that produced an answer.
func (p ProviderStats) SuccessRate() float64 {
	if p.Calls == 0 {
		return 0
	}
	return float64(p.Calls-p.Failures) / float64(p.Calls)
}

// scanner interface for both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// toJSON converts an object to JSON string
func toJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// fromJSON parses JSON string into an object
func fromJSON(data string, v interface{}) error {
	if data == "" || data == "{}" || data == "null" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}
