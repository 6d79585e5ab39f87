package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingSleep struct{ waits []time.Duration }

func (r *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	sl := &recordingSleep{}
	calls := 0
	v, out, err := Do(context.Background(), RetryPolicy{
		MaxAttempts: 3,
		Backoff:     Linear(10 * time.Second),
		Sleep:       sl.Sleep,
	}, func(ctx context.Context, attempt int) (string, error) {
		calls++
		if attempt < 2 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("Do = (%q, %v)", v, err)
	}
	if calls != 3 || out.Attempts != 3 {
		t.Errorf("calls = %d attempts = %d, want 3", calls, out.Attempts)
	}
	want := []time.Duration{10 * time.Second, 20 * time.Second}
	if len(sl.waits) != len(want) || sl.waits[0] != want[0] || sl.waits[1] != want[1] {
		t.Errorf("waits = %v, want %v", sl.waits, want)
	}
}

func TestDoStopsOnAbort(t *testing.T) {
	abortErr := errors.New("quota")
	calls := 0
	_, out, err := Do(context.Background(), RetryPolicy{
		MaxAttempts: 5,
		Decide: func(err error) Decision {
			if err == abortErr {
				return Abort
			}
			return Retry
		},
		Sleep: (&recordingSleep{}).Sleep,
	}, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, abortErr
	})
	if !errors.Is(err, abortErr) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 || out.Decision != Abort {
		t.Errorf("calls = %d decision = %v, want 1 abort", calls, out.Decision)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	sl := &recordingSleep{}
	_, out, err := Do(context.Background(), RetryPolicy{
		MaxAttempts: 3,
		Backoff:     Fixed(time.Second),
		Sleep:       sl.Sleep,
	}, func(ctx context.Context, attempt int) (int, error) {
		return 0, errors.New("nope")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if out.Decision != Retry || out.Attempts != 3 {
		t.Errorf("outcome = %+v", out)
	}
	if len(sl.waits) != 2 {
		t.Errorf("sleeps = %d, want 2 (none after last attempt)", len(sl.waits))
	}
}

func TestDoHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, out, err := Do(ctx, RetryPolicy{MaxAttempts: 3}, func(ctx context.Context, attempt int) (int, error) {
		return 0, errors.New("x")
	})
	if !errors.Is(err, context.Canceled) || out.Attempts != 1 {
		t.Errorf("Do on canceled ctx = (%+v, %v)", out, err)
	}
}
