// Package fanout runs independent units of work and collects one outcome per
// unit. A unit that fails, panics or times out never affects its siblings.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// ErrTimeout is matched by outcomes whose task exceeded its own timeout.
var ErrTimeout = errors.New("timed out")

// Mode selects how Run schedules tasks.
type Mode int

const (
	Parallel Mode = iota
	Sequential
)

func (m Mode) String() string {
	if m == Sequential {
		return "sequential"
	}
	return "parallel"
}

// ModeFor maps a "parallel enabled" switch to a Mode.
func ModeFor(parallel bool) Mode {
	if parallel {
		return Parallel
	}
	return Sequential
}

// Task is one unit of work. Timeout <= 0 means the task is bounded only by
// the parent context.
type Task[T any] struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) (T, error)
}

// Outcome is the settled result of a Task.
type Outcome[T any] struct {
	Name    string
	Value   T
	Err     error
	Elapsed time.Duration
}

// OK reports whether the task finished without error.
func (o Outcome[T]) OK() bool {
	return o.Err == nil
}

// TimeoutError is returned when a task exceeds its own timeout.
type TimeoutError struct {
	Task    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %v after %s", e.Task, ErrTimeout, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// PanicError carries a recovered panic value.
type PanicError struct {
	Task  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: panic: %v", e.Task, e.Value)
}

// Run executes every task and returns outcomes in input order.
func Run[T any](ctx context.Context, mode Mode, tasks []Task[T]) []Outcome[T] {
	outcomes := make([]Outcome[T], len(tasks))
	if len(tasks) == 0 {
		return outcomes
	}

	if mode == Sequential {
		for i, task := range tasks {
			outcomes[i] = Do(ctx, task)
		}
		return outcomes
	}

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task Task[T]) {
			defer wg.Done()
			outcomes[i] = Do(ctx, task)
		}(i, task)
	}
	wg.Wait()
	return outcomes
}

type settled[T any] struct {
	value T
	err   error
}

// Do runs a single task in isolation: panics are recovered, and the task's
// timeout is enforced even if the task body ignores its context.
func Do[T any](ctx context.Context, task Task[T]) Outcome[T] {
	start := time.Now()
	out := Outcome[T]{Name: task.Name}

	if task.Run == nil {
		out.Err = fmt.Errorf("%s: no work function", task.Name)
		return out
	}

	taskCtx := ctx
	cancel := func() {}
	if task.Timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, task.Timeout)
	}
	defer cancel()

	done := make(chan settled[T], 1)
	go func() {
		var s settled[T]
		defer func() {
			if r := recover(); r != nil {
				s.err = &PanicError{Task: task.Name, Value: r, Stack: debug.Stack()}
			}
			done <- s
		}()
		s.value, s.err = task.Run(taskCtx)
	}()

	select {
	case s := <-done:
		out.Value = s.value
		out.Err = s.err
		if out.Err != nil && isOwnTimeout(ctx, taskCtx) {
			out.Err = &TimeoutError{Task: task.Name, Timeout: task.Timeout}
		}
	case <-taskCtx.Done():
		if isOwnTimeout(ctx, taskCtx) {
			out.Err = &TimeoutError{Task: task.Name, Timeout: task.Timeout}
		} else {
			out.Err = fmt.Errorf("%s: %w", task.Name, taskCtx.Err())
		}
	}
	out.Elapsed = time.Since(start)
	return out
}

// isOwnTimeout distinguishes a task's deadline from parent cancellation.
func isOwnTimeout(parent, taskCtx context.Context) bool {
	return parent.Err() == nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded)
}
