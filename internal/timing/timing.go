// Package timing keeps an append-only log of named stages for one run.
package timing

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Span is one completed stage.
type Span struct {
	Stage string    `json:"stage"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Err   string    `json:"error,omitempty"`
}

// Duration is End minus Start.
func (s Span) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Tracker records spans. It is safe for concurrent use; spans are appended
// when a stage ends, so the log only ever holds finished stages.
type Tracker struct {
	mu      sync.Mutex
	started time.Time
	spans   []Span
	now     func() time.Time
}

// New starts a tracker; the total clock begins now.
func New() *Tracker {
	t := &Tracker{now: time.Now}
	t.started = t.now()
	return t
}

// Start opens a stage. The returned func closes it, recording err (may be
// nil). Calling the stop func more than once records only the first call.
func (t *Tracker) Start(stage string) func(err error) {
	start := t.now()
	var once sync.Once
	return func(err error) {
		once.Do(func() {
			span := Span{Stage: stage, Start: start, End: t.now()}
			if err != nil {
				span.Err = err.Error()
			}
			t.mu.Lock()
			t.spans = append(t.spans, span)
			t.mu.Unlock()
		})
	}
}

// Measure runs fn as a stage. The span is recorded even if fn panics; the
// panic is then re-raised.
func (t *Tracker) Measure(stage string, fn func() error) (err error) {
	stop := t.Start(stage)
	defer func() {
		if r := recover(); r != nil {
			stop(fmt.Errorf("panic: %v", r))
			panic(r)
		}
		stop(err)
	}()
	return fn()
}

// Spans returns a copy of the recorded spans in completion order.
func (t *Tracker) Spans() []Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Span(nil), t.spans...)
}

// Sum adds up the recorded span durations.
func (t *Tracker) Sum() time.Duration {
	var total time.Duration
	for _, s := range t.Spans() {
		total += s.Duration()
	}
	return total
}

// Total is the wall-clock time since New.
func (t *Tracker) Total() time.Duration {
	return t.now().Sub(t.started)
}

// Summary renders the recorded spans with FormatSpans.
func (t *Tracker) Summary() string {
	return FormatSpans(t.Spans())
}

// FormatSpans renders spans as a numbered list with a total line.
func FormatSpans(spans []Span) string {
	if len(spans) == 0 {
		return "No timings recorded."
	}

	var (
		sb    strings.Builder
		total time.Duration
	)
	sb.WriteString("Timing summary\n")
	for i, s := range spans {
		total += s.Duration()
		sb.WriteString(fmt.Sprintf("%d. %s: %s", i+1, s.Stage, FormatDuration(s.Duration())))
		if s.Err != "" {
			sb.WriteString(" (failed: " + s.Err + ")")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("stages: %d, total: %s", len(spans), FormatDuration(total)))
	return sb.String()
}

// FormatDuration renders d in seconds, minutes or hours with two decimals.
func FormatDuration(d time.Duration) string {
	secs := d.Seconds()
	switch {
	case secs < 60:
		return fmt.Sprintf("%.2fs", secs)
	case secs < 3600:
		return fmt.Sprintf("%.2fm", secs/60)
	default:
		return fmt.Sprintf("%.2fh", secs/3600)
	}
}
