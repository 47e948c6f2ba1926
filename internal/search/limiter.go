package search

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit allows Requests calls per Window.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// NewLimiter returns a token bucket for rl, or nil when rl is unset.
func NewLimiter(rl RateLimit) *rate.Limiter {
	if rl.Requests <= 0 || rl.Window <= 0 {
		return nil
	}
	interval := rl.Window / time.Duration(rl.Requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	return rate.NewLimiter(rate.Every(interval), rl.Requests)
}

func waitLimiter(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}
