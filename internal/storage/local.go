package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/projectvak/contract-pipeline/internal/common"
)

// LocalStorage keeps documents under a root directory on disk.
type LocalStorage struct {
	root     string
	pageSize int
	logger   *slog.Logger
}

func NewLocalStorage(root string, pageSize int, logger *slog.Logger) (*LocalStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStorage{root: abs, pageSize: pageSize, logger: logger}, nil
}

// Root is the directory backing the store.
func (s *LocalStorage) Root() string { return s.root }

// Abs maps a storage path onto the filesystem.
func (s *LocalStorage) Abs(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(Clean(p)))
}

// Rel maps a filesystem path back onto a storage path.
func (s *LocalStorage) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", err
	}
	return Clean(filepath.ToSlash(rel)), nil
}

func (s *LocalStorage) List(ctx context.Context, folder string, recursive bool, cursor string) (Page, error) {
	dir := s.Abs(folder)
	info, err := os.Stat(dir)
	if err != nil {
		return Page{}, s.mapErr(err, folder)
	}
	if !info.IsDir() {
		return Page{}, fmt.Errorf("%w: not a folder: %s", common.ErrInvalidInput, folder)
	}

	var entries []Entry
	add := func(abs string, d fs.DirEntry) error {
		fi, err := d.Info()
		if err != nil {
			return err
		}
		p, err := s.Rel(abs)
		if err != nil {
			return err
		}
		e := Entry{Path: p, Name: d.Name(), IsDir: d.IsDir(), ModTime: fi.ModTime()}
		if !d.IsDir() {
			e.Size = fi.Size()
		}
		entries = append(entries, e)
		return nil
	}

	if recursive {
		err = filepath.WalkDir(dir, func(abs string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if abs == dir {
				return nil
			}
			return add(abs, d)
		})
	} else {
		var des []fs.DirEntry
		des, err = os.ReadDir(dir)
		for _, d := range des {
			if err != nil {
				break
			}
			err = add(filepath.Join(dir, d.Name()), d)
		}
	}
	if err != nil {
		return Page{}, fmt.Errorf("list %s: %w", folder, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return paginate(entries, cursor, s.pageSize)
}

func (s *LocalStorage) Download(_ context.Context, p string) ([]byte, error) {
	b, err := os.ReadFile(s.Abs(p))
	if err != nil {
		return nil, s.mapErr(err, p)
	}
	return b, nil
}

func (s *LocalStorage) Upload(ctx context.Context, p string, data []byte, overwrite bool) error {
	dst := s.Abs(p)
	if !overwrite {
		if ok, err := s.Exists(ctx, p); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: %s", ErrConflict, p)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return err
	}
	s.logger.Debug("storage.upload", "path", Clean(p), "bytes", len(data))
	return nil
}

func (s *LocalStorage) Move(ctx context.Context, from, to string, autorename bool) (string, error) {
	if ok, err := s.Exists(ctx, from); err != nil {
		return "", err
	} else if !ok {
		return "", fmt.Errorf("%w: %s", common.ErrNotFound, from)
	}

	final := Clean(to)
	if autorename {
		var err error
		if final, err = freeName(ctx, final, s.Exists); err != nil {
			return "", err
		}
	} else if ok, err := s.Exists(ctx, final); err != nil {
		return "", err
	} else if ok {
		return "", fmt.Errorf("%w: %s", ErrConflict, final)
	}

	if err := os.MkdirAll(filepath.Dir(s.Abs(final)), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(s.Abs(from), s.Abs(final)); err != nil {
		return "", s.mapErr(err, from)
	}
	s.logger.Info("storage.move", "from", Clean(from), "to", final)
	return final, nil
}

func (s *LocalStorage) Exists(_ context.Context, p string) (bool, error) {
	_, err := os.Stat(s.Abs(p))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *LocalStorage) CreateFolder(_ context.Context, p string) error {
	if err := os.MkdirAll(s.Abs(p), 0o755); err != nil {
		return fmt.Errorf("create folder %s: %w", path.Clean(p), err)
	}
	return nil
}

func (s *LocalStorage) mapErr(err error, p string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", common.ErrNotFound, Clean(p))
	}
	return err
}
