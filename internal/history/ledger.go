package history

import (
	"context"
	"log/slog"
	"strings"
)

// Ledger records which source paths have been processed or are in flight.
// Membership is the only thing that prevents reprocessing, so callers Mark
// before doing work and Unmark only to requeue after a transient failure.
type Ledger struct {
	name   string
	store  Store
	seen   map[string]struct{}
	logger *slog.Logger
}

func NewLedger(name string, store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{name: name, store: store, seen: map[string]struct{}{}, logger: logger}
}

// Load replaces the in-memory set with the store contents.
func (l *Ledger) Load(ctx context.Context) error {
	entries, err := l.store.Load(ctx)
	if err != nil {
		l.logger.Error("history.load_error", "ledger", l.name, "error", err)
		return err
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		seen[e] = struct{}{}
	}
	l.seen = seen
	l.logger.Debug("history.loaded", "ledger", l.name, "entries", len(seen))
	return nil
}

func (l *Ledger) Contains(path string) bool {
	_, ok := l.seen[strings.TrimSpace(path)]
	return ok
}

func (l *Ledger) Len() int { return len(l.seen) }

// Entries returns the persisted lines in file order.
func (l *Ledger) Entries(ctx context.Context) ([]string, error) {
	return l.store.Load(ctx)
}

// Mark appends path to the store and the in-memory set.
func (l *Ledger) Mark(ctx context.Context, path string) error {
	path = strings.TrimSpace(path)
	if err := l.store.Append(ctx, path); err != nil {
		l.logger.Error("history.mark_error", "ledger", l.name, "path", path, "error", err)
		return err
	}
	l.seen[path] = struct{}{}
	return nil
}

// Unmark removes every occurrence of path so the next pass retries it.
func (l *Ledger) Unmark(ctx context.Context, path string) error {
	path = strings.TrimSpace(path)
	entries, err := l.store.Load(ctx)
	if err != nil {
		return err
	}
	kept := entries[:0]
	removed := 0
	for _, e := range entries {
		if e == path {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if err := l.store.Rewrite(ctx, kept); err != nil {
		l.logger.Error("history.unmark_error", "ledger", l.name, "path", path, "error", err)
		return err
	}
	delete(l.seen, path)
	l.logger.Info("history.unmarked", "ledger", l.name, "path", path, "removed", removed)
	return nil
}
