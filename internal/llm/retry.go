package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/projectvak/contract-pipeline/internal/common"
)

// Decision tells Do what to do with a failed attempt.
type Decision int

const (
	// Retry sleeps Backoff and tries again while attempts remain.
	Retry Decision = iota
	// Abort stops immediately and returns the error to the caller.
	Abort
	// Fail stops immediately; callers treat it as a soft failure.
	Fail
)

// RetryPolicy makes the retry/abort split explicit instead of relying on
// error type hierarchies.
type RetryPolicy struct {
	Name        string
	MaxAttempts int
	Decide      func(err error) Decision
	Backoff     func(attempt int, err error) time.Duration
	Sleep       common.SleepFunc
	Logger      *slog.Logger
}

// Outcome reports how Do finished.
type Outcome struct {
	Attempts int
	Decision Decision // decision for the last error; Retry means attempts ran out
}

// Do runs fn until it succeeds, the policy aborts or fails, or attempts are
// exhausted. attempt is zero-based.
func Do[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context, attempt int) (T, error)) (T, Outcome, error) {
	var zero T
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Sleep == nil {
		p.Sleep = common.Sleep
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Decide == nil {
		p.Decide = func(error) Decision { return Retry }
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		v, err := fn(ctx, attempt)
		if err == nil {
			return v, Outcome{Attempts: attempt + 1}, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, Outcome{Attempts: attempt + 1, Decision: Abort}, ctx.Err()
		}

		d := p.Decide(err)
		if d != Retry {
			p.Logger.Warn("llm.retry.stop",
				"policy", p.Name, "attempt", attempt+1, "decision", d.String(), "error", err)
			return zero, Outcome{Attempts: attempt + 1, Decision: d}, err
		}
		if attempt+1 >= p.MaxAttempts {
			break
		}
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt, err)
		}
		p.Logger.Warn("llm.retry.wait",
			"policy", p.Name, "attempt", attempt+1, "max_attempts", p.MaxAttempts,
			"wait_ms", wait.Milliseconds(), "error", err)
		if err := p.Sleep(ctx, wait); err != nil {
			return zero, Outcome{Attempts: attempt + 1, Decision: Abort}, err
		}
	}
	return zero, Outcome{Attempts: p.MaxAttempts, Decision: Retry}, lastErr
}

func (d Decision) String() string {
	switch d {
	case Retry:
		return "retry"
	case Abort:
		return "abort"
	case Fail:
		return "fail"
	default:
		return "unknown"
	}
}

// Fixed returns a constant backoff.
func Fixed(d time.Duration) func(int, error) time.Duration {
	return func(int, error) time.Duration { return d }
}

// Linear returns base*(attempt+1).
func Linear(base time.Duration) func(int, error) time.Duration {
	return func(attempt int, _ error) time.Duration { return base * time.Duration(attempt+1) }
}
