package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

// RetryPolicy decides how often a failed attempt is repeated and how long to
// wait in between. Only retryable domain errors are repeated; each category
// may additionally carry a tighter attempt budget than MaxAttempts.
type RetryPolicy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64 // fraction of the delay, 0.0 to 1.0
	Multiplier   float64
	// CategoryLimits caps attempts per error category. A timeout usually
	// means the JVM is stuck in a safepoint, so it gets one retry.
	CategoryLimits map[core.ErrorCategory]int
}

// DefaultRetryPolicy returns a short backoff suited to local attach and SSH
// reconnects: 3 attempts, 200ms doubling up to 2s, timeouts tried twice.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		BaseDelay:    200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		JitterFactor: 0.1,
		Multiplier:   2,
		CategoryLimits: map[core.ErrorCategory]int{
			core.ErrCatTimeout: 2,
		},
	}
}

// RetryPolicyOption configures a retry policy.
type RetryPolicyOption func(*RetryPolicy)

// WithMaxAttempts sets the total attempt budget.
func WithMaxAttempts(n int) RetryPolicyOption {
	return func(p *RetryPolicy) { p.MaxAttempts = n }
}

// WithBaseDelay sets the delay before the first retry.
func WithBaseDelay(d time.Duration) RetryPolicyOption {
	return func(p *RetryPolicy) { p.BaseDelay = d }
}

// WithMaxDelay caps the backoff.
func WithMaxDelay(d time.Duration) RetryPolicyOption {
	return func(p *RetryPolicy) { p.MaxDelay = d }
}

// WithJitter sets the jitter factor.
func WithJitter(factor float64) RetryPolicyOption {
	return func(p *RetryPolicy) { p.JitterFactor = factor }
}

// WithCategoryLimit caps the attempts spent on errors of one category.
func WithCategoryLimit(cat core.ErrorCategory, attempts int) RetryPolicyOption {
	return func(p *RetryPolicy) {
		limits := make(map[core.ErrorCategory]int, len(p.CategoryLimits)+1)
		for k, v := range p.CategoryLimits {
			limits[k] = v
		}
		limits[cat] = attempts
		p.CategoryLimits = limits
	}
}

// NewRetryPolicy applies opts on top of DefaultRetryPolicy.
func NewRetryPolicy(opts ...RetryPolicyOption) *RetryPolicy {
	p := DefaultRetryPolicy()
	for _, opt := range opts {
		opt(p)
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

// RetryableFunc is one attempt.
type RetryableFunc func(ctx context.Context) error

// RetryNotifyFunc is called before sleeping ahead of the next attempt.
type RetryNotifyFunc func(attempt int, err error, delay time.Duration)

// Execute runs fn with retry logic.
func (p *RetryPolicy) Execute(ctx context.Context, fn RetryableFunc) error {
	return p.ExecuteWithNotify(ctx, fn, nil)
}

// ExecuteWithNotify runs fn until it succeeds, fails terminally, or the
// attempt budget for the failing category runs out. Running out of budget
// yields a *RetryExhaustedError wrapping the last error.
func (p *RetryPolicy) ExecuteWithNotify(ctx context.Context, fn RetryableFunc, notify RetryNotifyFunc) error {
	var lastErr error
	seen := make(map[core.ErrorCategory]int)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !core.IsRetryable(err) {
			return err
		}

		cat := core.GetCategory(err)
		seen[cat]++
		if attempt >= p.MaxAttempts || p.categorySpent(cat, seen[cat]) {
			return &RetryExhaustedError{Attempts: attempt, LastErr: lastErr}
		}

		delay := p.CalculateDelay(attempt)
		if notify != nil {
			notify(attempt, err, delay)
		}
		if !sleep(ctx, delay) {
			return lastErr
		}
	}
}

func (p *RetryPolicy) categorySpent(cat core.ErrorCategory, attempts int) bool {
	limit, ok := p.CategoryLimits[cat]
	return ok && attempts >= limit
}

// CalculateDelay returns the wait after the given (1-based) attempt:
// BaseDelay * Multiplier^(attempt-1), capped at MaxDelay, then jittered.
func (p *RetryPolicy) CalculateDelay(attempt int) time.Duration {
	delay := float64(p.BaseDelay)
	for i := 1; i < attempt && delay < float64(p.MaxDelay); i++ {
		delay *= p.Multiplier
	}
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.JitterFactor > 0 {
		delay += (rand.Float64()*2 - 1) * delay * p.JitterFactor
	}
	return time.Duration(delay)
}

// sleep waits for d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// RetryExhaustedError reports that every permitted attempt failed.
type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsRetryExhausted checks if an error is a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var re *RetryExhaustedError
	return errors.As(err, &re)
}
