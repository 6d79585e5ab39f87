package keys

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultDailyLimit = 15
	DefaultWindow     = 24 * time.Hour
)

// Rotator hands out keys from a fixed pool, spreading calls evenly and
// refusing once every key has reached its ceiling for the current window.
type Rotator struct {
	keys   []string
	limit  int
	window time.Duration
	repo   Repository
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Rotator)

func WithLimit(n int) Option {
	return func(r *Rotator) {
		if n > 0 {
			r.limit = n
		}
	}
}

func WithWindow(d time.Duration) Option {
	return func(r *Rotator) {
		if d > 0 {
			r.window = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Rotator) { r.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Rotator) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRotator(keys []string, repo Repository, opts ...Option) *Rotator {
	r := &Rotator{
		keys:   keys,
		limit:  DefaultDailyLimit,
		window: DefaultWindow,
		repo:   repo,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Size is the number of keys in the pool.
func (r *Rotator) Size() int { return len(r.keys) }

// Allocate returns the least-used key and its index. When every key has
// hit the ceiling it returns ("", -1, nil); callers stop the batch.
// A non-nil error means the ledger could not be read or written.
func (r *Rotator) Allocate(ctx context.Context) (string, int, error) {
	if len(r.keys) == 0 {
		r.logger.Warn("keys.allocate.empty_pool")
		return "", -1, nil
	}
	st, err := r.current(ctx)
	if err != nil {
		return "", -1, err
	}

	best := 0
	for i := 1; i < len(st.Counts); i++ {
		if st.Counts[i] < st.Counts[best] {
			best = i
		}
	}
	if st.Counts[best] >= r.limit {
		r.logger.Warn("keys.allocate.exhausted",
			"pool", len(r.keys),
			"limit", r.limit,
			"next_reset_at", st.NextResetAt.Format(time.RFC3339),
		)
		return "", -1, nil
	}

	st.Counts[best]++
	if err := r.repo.Save(ctx, st); err != nil {
		r.logger.Error("keys.state.save_error", "error", err)
		return "", -1, err
	}
	r.logger.Debug("keys.allocate.ok", "index", best, "count", st.Counts[best], "limit", r.limit)
	return r.keys[best], best, nil
}

// Snapshot returns the state as Allocate would see it, applying any due
// reset without consuming a call.
func (r *Rotator) Snapshot(ctx context.Context) (*State, error) {
	return r.current(ctx)
}

// Limit is the per-key ceiling.
func (r *Rotator) Limit() int { return r.limit }

// current loads the ledger, aligns it with the pool and resets it when
// missing or expired. A reset is persisted immediately.
func (r *Rotator) current(ctx context.Context) (*State, error) {
	now := r.now()
	st, err := r.repo.Load(ctx)
	if err != nil {
		// An unreadable ledger is treated as absent; the reset below
		// overwrites it.
		r.logger.Warn("keys.state.load_error", "error", err)
		st = nil
	}

	if st == nil || !now.Before(st.NextResetAt) {
		st = &State{
			NextResetAt: now.Add(r.window),
			Counts:      make([]int, len(r.keys)),
		}
		r.logger.Info("keys.state.reset", "pool", len(r.keys), "next_reset_at", st.NextResetAt.Format(time.RFC3339))
		if err := r.repo.Save(ctx, st); err != nil {
			r.logger.Error("keys.state.save_error", "error", err)
			return nil, err
		}
		return st, nil
	}

	st.Counts = align(st.Counts, len(r.keys))
	return st, nil
}

func align(counts []int, n int) []int {
	if len(counts) >= n {
		return counts[:n]
	}
	return append(counts, make([]int, n-len(counts))...)
}
