package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/projectvak/contract-pipeline/constants"
	"github.com/projectvak/contract-pipeline/internal/storage"
)

// Result is the per-file import outcome.
type Result struct {
	SourcePath   string
	Destination  string
	Deduplicated bool
	HashHex      string
	Err          string
}

// DirStats summarizes a directory import.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Importer copies local documents into the scan folder of the document
// store, where the organize phase picks them up.
type Importer struct {
	store  storage.Storage
	dest   string
	logger *slog.Logger
}

func NewImporter(store storage.Storage, dest string, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, dest: storage.Clean(dest), logger: logger}
}

// ImportPath uploads one file. A file whose content already sits at the
// destination name is reported as deduplicated; a different file with the
// same name gets a " (n)" suffix.
func (i *Importer) ImportPath(ctx context.Context, p string) (Result, error) {
	out := Result{SourcePath: p}
	if !constants.IsAllowed(p) {
		return out, fmt.Errorf("unsupported or missing extension: %q", filepath.Ext(p))
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return out, fmt.Errorf("read %s: %w", p, err)
	}
	sum := sha256.Sum256(data)
	out.HashHex = hex.EncodeToString(sum[:])

	target := path.Join(i.dest, filepath.Base(p))
	for n := 1; ; n++ {
		existing, err := i.store.Download(ctx, target)
		if err != nil {
			break
		}
		if sha256.Sum256(existing) == sum {
			out.Destination, out.Deduplicated = target, true
			i.logger.Debug("ingest.import.dedup", "path", p, "destination", target)
			return out, nil
		}
		target = storage.AutorenameCandidate(path.Join(i.dest, filepath.Base(p)), n)
	}

	if err := i.store.Upload(ctx, target, data, false); err != nil {
		return out, fmt.Errorf("upload %s: %w", target, err)
	}
	out.Destination = target
	i.logger.Info("ingest.import.ok", "path", p, "destination", target, "bytes", len(data))
	return out, nil
}

// ImportDirectory walks root, skips hidden entries if requested and
// imports every allowed file. Returns per-file results + aggregate stats.
func (i *Importer) ImportDirectory(ctx context.Context, root string, skipHidden bool) ([]Result, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []Result
	var stats DirStats

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, Result{SourcePath: p, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && p != root && isHidden(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !constants.IsAllowed(p) {
			return nil
		}
		stats.Matched++

		r, err := i.ImportPath(ctx, p)
		if err != nil {
			r.Err = err.Error()
			results = append(results, r)
			stats.Failed++
			return nil
		}
		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	i.logger.Info("ingest.import.done",
		"root", root, "matched", stats.Matched, "succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated, "failed", stats.Failed)
	return results, stats, nil
}

func isHidden(p string) bool {
	return strings.HasPrefix(filepath.Base(p), ".")
}
