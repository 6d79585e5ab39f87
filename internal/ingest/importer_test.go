package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/projectvak/contract-pipeline/internal/storage"
)

func write(t *testing.T, p string, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestImportDirectory(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewLocalStorage(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	src := t.TempDir()
	write(t, filepath.Join(src, "a.pdf"), "one")
	write(t, filepath.Join(src, "sub", "b.PDF"), "two")
	write(t, filepath.Join(src, "notes.txt"), "skip")
	write(t, filepath.Join(src, ".hidden", "c.pdf"), "hidden")

	imp := NewImporter(st, "/", nil)
	results, stats, err := imp.ImportDirectory(ctx, src, true)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Matched != 2 || stats.Succeeded != 2 || stats.Failed != 0 {
		t.Fatalf("stats = %+v, results = %+v", stats, results)
	}
	if ok, _ := st.Exists(ctx, "/a.pdf"); !ok {
		t.Fatal("a.pdf not imported")
	}
	if ok, _ := st.Exists(ctx, "/c.pdf"); ok {
		t.Fatal("hidden directory was imported")
	}

	// Same content again is deduplicated, different content is renamed.
	_, stats, err = imp.ImportDirectory(ctx, src, true)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Deduplicated != 2 {
		t.Fatalf("second run stats = %+v", stats)
	}

	other := t.TempDir()
	write(t, filepath.Join(other, "a.pdf"), "changed")
	r, err := imp.ImportPath(ctx, filepath.Join(other, "a.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	if r.Destination != "/a (1).pdf" || r.Deduplicated {
		t.Fatalf("result = %+v", r)
	}
}

func TestImportPathRejectsExtension(t *testing.T) {
	st, _ := storage.NewLocalStorage(t.TempDir(), 0, nil)
	p := filepath.Join(t.TempDir(), "x.docx")
	write(t, p, "x")
	if _, err := NewImporter(st, "/", nil).ImportPath(context.Background(), p); err == nil {
		t.Fatal("expected extension error")
	}
}
