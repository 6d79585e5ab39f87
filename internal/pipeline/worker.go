package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/projectvak/contract-pipeline/internal/common"
)

type OrganizePhase interface {
	RunBatch(ctx context.Context) (OrganizeResult, error)
}

type AnalyzePhase interface {
	RunBatch(ctx context.Context) (AnalyzeResult, error)
}

// State is what the worker is doing between cycles.
type State int

const (
	StateStarting State = iota
	StateIdle           // waiting for the next cycle
	StateCooldown       // quota exhausted, waiting for it to recover
	StateBackoff        // unexpected error
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCooldown:
		return "cooldown"
	case StateBackoff:
		return "backoff"
	default:
		return "starting"
	}
}

type WorkerConfig struct {
	CheckInterval time.Duration
	QuotaCooldown time.Duration
	ErrorBackoff  time.Duration
}

// Cycle is the result of one loop iteration. Analyze is nil when the
// organize phase had work.
type Cycle struct {
	RunID    string
	Organize OrganizeResult
	Analyze  *AnalyzeResult
}

// Worker alternates the two phases: organize first, analyze only when
// there was nothing to organize.
type Worker struct {
	organize OrganizePhase
	analyze  AnalyzePhase
	cfg      WorkerConfig
	wake     <-chan string
	onState  func(State)
	logger   *slog.Logger
}

type WorkerOption func(*Worker)

// WithWake shortens the idle wait whenever a value arrives on ch.
func WithWake(ch <-chan string) WorkerOption { return func(w *Worker) { w.wake = ch } }

// WithStateHook is called on every state change.
func WithStateHook(fn func(State)) WorkerOption { return func(w *Worker) { w.onState = fn } }

func NewWorker(org OrganizePhase, an AnalyzePhase, cfg WorkerConfig, logger *slog.Logger, opts ...WorkerOption) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 20 * time.Second
	}
	if cfg.QuotaCooldown <= 0 {
		cfg.QuotaCooldown = time.Hour
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 60 * time.Second
	}
	w := &Worker{organize: org, analyze: an, cfg: cfg, onState: func(State) {}, logger: logger}
	for _, o := range opts {
		o(w)
	}
	return w
}

// RunOnce runs one cycle.
func (w *Worker) RunOnce(ctx context.Context) (Cycle, error) {
	c := Cycle{RunID: uuid.NewString()}
	ctx = common.WithRunID(ctx, c.RunID)

	org, err := w.organize.RunBatch(ctx)
	c.Organize = org
	if err != nil {
		return c, err
	}
	if org.Attempted > 0 {
		return c, nil
	}

	an, err := w.analyze.RunBatch(ctx)
	c.Analyze = &an
	return c, err
}

// Run loops until ctx is done. Errors never end the loop; they back off.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("pipeline.worker.started",
		"check_interval", w.cfg.CheckInterval.String(), "quota_cooldown", w.cfg.QuotaCooldown.String())
	state := StateStarting
	setState := func(s State) {
		if s != state {
			state = s
			w.onState(s)
		}
	}

	for {
		start := time.Now()
		c, err := w.RunOnce(ctx)
		if ctx.Err() != nil {
			w.logger.Info("pipeline.worker.stopped")
			return nil
		}

		wait, wakeable := w.cfg.CheckInterval, true
		switch {
		case err != nil:
			w.logger.Error("pipeline.worker.cycle_failed",
				"run_id", c.RunID, "error", err, "backoff", w.cfg.ErrorBackoff.String())
			wait, wakeable = w.cfg.ErrorBackoff, false
			setState(StateBackoff)
		case c.Analyze != nil && c.Analyze.QuotaHit:
			w.logger.Warn("pipeline.worker.quota_cooldown",
				"run_id", c.RunID, "cooldown", w.cfg.QuotaCooldown.String())
			wait, wakeable = w.cfg.QuotaCooldown, false
			setState(StateCooldown)
		default:
			w.logger.Debug("pipeline.worker.cycle",
				"run_id", c.RunID,
				"organized", c.Organize.Moved,
				"analyzed", analyzed(c.Analyze),
				"elapsed_ms", time.Since(start).Milliseconds())
			setState(StateIdle)
		}

		if err := w.wait(ctx, wait, wakeable); err != nil {
			w.logger.Info("pipeline.worker.stopped")
			return nil
		}
	}
}

func analyzed(r *AnalyzeResult) int {
	if r == nil {
		return 0
	}
	return r.Analyzed
}

// wait sleeps for d. A wakeable wait ends early on a watcher event.
func (w *Worker) wait(ctx context.Context, d time.Duration, wakeable bool) error {
	t := time.NewTimer(d)
	defer t.Stop()
	wake := w.wake
	if !wakeable {
		wake = nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		case p, ok := <-wake:
			if !ok {
				w.wake, wake = nil, nil
				continue
			}
			w.logger.Debug("pipeline.worker.woken", "path", p)
			return nil
		}
	}
}
