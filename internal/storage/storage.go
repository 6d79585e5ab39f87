package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

// ErrConflict is returned when a write would replace an existing path.
var ErrConflict = errors.New("path already exists")

// Entry is one file or folder in a listing. Paths are slash separated and
// rooted at "/".
type Entry struct {
	Path    string
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Page is one page of a listing. Cursor continues the listing while HasMore.
type Page struct {
	Entries []Entry
	Cursor  string
	HasMore bool
}

// Storage is the remote file store both pipeline phases read from and write to.
type Storage interface {
	List(ctx context.Context, folder string, recursive bool, cursor string) (Page, error)
	Download(ctx context.Context, p string) ([]byte, error)
	Upload(ctx context.Context, p string, data []byte, overwrite bool) error
	// Move returns the final destination, which differs from to when
	// autorename picked a free name.
	Move(ctx context.Context, from, to string, autorename bool) (string, error)
	Exists(ctx context.Context, p string) (bool, error)
	CreateFolder(ctx context.Context, p string) error
}

// ListAll follows cursors until the listing is complete.
func ListAll(ctx context.Context, s Storage, folder string, recursive bool) ([]Entry, error) {
	var all []Entry
	cursor := ""
	for {
		page, err := s.List(ctx, folder, recursive, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Entries...)
		if !page.HasMore {
			return all, nil
		}
		cursor = page.Cursor
	}
}

// Clean returns the canonical "/a/b" form of p.
func Clean(p string) string {
	return path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
}

// AutorenameCandidate returns p with " (n)" inserted before the extension.
func AutorenameCandidate(p string, n int) string {
	ext := path.Ext(p)
	return fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(p, ext), n, ext)
}

const maxAutorename = 1000

// freeName finds the first name that does not exist yet, starting with p itself.
func freeName(ctx context.Context, p string, exists func(context.Context, string) (bool, error)) (string, error) {
	candidate := p
	for n := 1; n <= maxAutorename; n++ {
		ok, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !ok {
			return candidate, nil
		}
		candidate = AutorenameCandidate(p, n)
	}
	return "", fmt.Errorf("%w: no free name for %s", ErrConflict, p)
}

// paginate slices a fully materialized listing. The cursor is the offset
// of the next entry.
func paginate(entries []Entry, cursor string, pageSize int) (Page, error) {
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return Page{}, fmt.Errorf("invalid cursor %q", cursor)
		}
		offset = n
	}
	if offset > len(entries) {
		offset = len(entries)
	}
	if pageSize <= 0 {
		pageSize = len(entries) - offset
	}
	end := min(offset+pageSize, len(entries))
	page := Page{Entries: entries[offset:end]}
	if end < len(entries) {
		page.HasMore = true
		page.Cursor = strconv.Itoa(end)
	}
	return page, nil
}
