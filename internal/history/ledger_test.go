package history

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newFileLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.txt")
	return NewLedger("test", NewFileStore(path), nil), path
}

func TestMarkTwiceUnmarkOnce(t *testing.T) {
	ctx := context.Background()
	l, path := newFileLedger(t)

	for i := 0; i < 2; i++ {
		if err := l.Mark(ctx, "/inbox/a.pdf"); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Mark(ctx, "/inbox/b.pdf"); err != nil {
		t.Fatal(err)
	}
	if err := l.Unmark(ctx, "/inbox/a.pdf"); err != nil {
		t.Fatal(err)
	}
	if l.Contains("/inbox/a.pdf") {
		t.Error("a.pdf still contained after unmark")
	}

	reloaded := NewLedger("test", NewFileStore(path), nil)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if reloaded.Contains("/inbox/a.pdf") {
		t.Error("a.pdf still on disk after unmark")
	}
	if !reloaded.Contains("/inbox/b.pdf") {
		t.Error("b.pdf lost by unmark rewrite")
	}
}

func TestMarkIsVisibleToAnotherProcess(t *testing.T) {
	ctx := context.Background()
	l, path := newFileLedger(t)
	if err := l.Mark(ctx, "/x.pdf"); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "/x.pdf\n" {
		t.Errorf("file = %q", data)
	}
}

func TestLoadMissingFile(t *testing.T) {
	l, _ := newFileLedger(t)
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("Len = %d, want 0", l.Len())
	}
}

func TestLoadSkipsBlankLinesAndTrims(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.txt")
	content := strings.Join([]string{"/a.pdf", "", "  /b.pdf  ", ""}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewLedger("test", NewFileStore(path), nil)
	if err := l.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		path string
		want bool
	}{
		{"/a.pdf", true},
		{"/b.pdf", true},
		{" /b.pdf", true},
		{"/c.pdf", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := l.Contains(tt.path); got != tt.want {
				t.Errorf("Contains(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestUnmarkUnknownPathIsNoop(t *testing.T) {
	ctx := context.Background()
	l, _ := newFileLedger(t)
	_ = l.Mark(ctx, "/keep.pdf")
	if err := l.Unmark(ctx, "/other.pdf"); err != nil {
		t.Fatal(err)
	}
	entries, err := l.Entries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0] != "/keep.pdf" {
		t.Errorf("entries = %v", entries)
	}
}
