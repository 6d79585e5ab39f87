package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/projectvak/contract-pipeline/constants"
)

type WatchConfig struct {
	Root     string        // directory to watch (recursive)
	Skip     []string      // directory names never watched, e.g. ".dropbox"
	Debounce time.Duration // coalesce rapid create/write/rename bursts
}

// StartWatcher emits the path of every new or changed document under
// cfg.Root. Bursts are coalesced by cfg.Debounce; a full channel drops
// events because one wake-up is enough for the worker to rescan.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Root == "" {
		logger.Error("watcher.start.failed", "error", "no root provided")
		return nil, nil, errors.New("no root provided")
	}
	evCh := make(chan string, 64)
	errCh := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("watcher.create.failed", "error", err)
		return nil, nil, err
	}

	skip := map[string]struct{}{}
	for _, s := range cfg.Skip {
		skip[strings.ToLower(strings.Trim(s, "/"))] = struct{}{}
	}
	addTree := func(root string) error {
		return filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if !d.IsDir() {
				return nil
			}
			if _, ok := skip[strings.ToLower(d.Name())]; ok && p != root {
				return filepath.SkipDir
			}
			return w.Add(p)
		})
	}
	if err := addTree(cfg.Root); err != nil {
		logger.Error("watcher.add_root.failed", "root", cfg.Root, "error", err)
		_ = w.Close()
		return nil, nil, err
	}
	logger.Info("watcher.started", "root", cfg.Root, "debounce_ms", cfg.Debounce.Milliseconds())

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("watcher.close.failed", "error", err)
			}
		}()

		var (
			timer   *time.Timer
			fire    <-chan time.Time
			pending = map[string]struct{}{}
		)
		flush := func() {
			for p := range pending {
				select {
				case evCh <- p:
				default:
				}
				delete(pending, p)
			}
		}

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Has(fsnotify.Create) {
					// New directories are watched too; files fail Add and are ignored.
					if err := addTree(e.Name); err != nil {
						logger.Debug("watcher.add_dir.skipped", "path", e.Name, "error", err)
					}
				}
				if !constants.IsAllowed(e.Name) || !(e.Has(fsnotify.Create) || e.Has(fsnotify.Write) || e.Has(fsnotify.Rename)) {
					continue
				}
				pending[e.Name] = struct{}{}
				if cfg.Debounce <= 0 {
					flush()
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(cfg.Debounce)
				fire = timer.C
			case <-fire:
				fire = nil
				flush()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher.error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}
