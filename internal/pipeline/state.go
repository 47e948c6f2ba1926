package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// State is a pipeline stage.
type State string

const (
	StateIdle        State = "idle"
	StateSearching   State = "searching"
	StateQuerying    State = "querying"
	StateAggregating State = "aggregating"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// ErrInvalidConfig is the root of every fatal, pre-flight error.
var ErrInvalidConfig = errors.New("invalid pipeline configuration")

// ConfigError is returned before any network call when a run cannot start.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", ErrInvalidConfig, e.Reason, e.Err)
	}
	return fmt.Sprintf("%v: %s", ErrInvalidConfig, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidConfig) hold for every ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErr(reason string, err error) *ConfigError {
	return &ConfigError{Reason: reason, Err: err}
}

// Transition is one state change of a run.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
	// Note explains skipped stages and failures.
	Note string `json:"note,omitempty"`
}

// Event is delivered to observers on every transition.
type Event struct {
	RunID    string
	Question string
	Transition
}

// Observer receives run events. Observers are called synchronously from
// the goroutine driving the run and must not block for long.
type Observer func(Event)
