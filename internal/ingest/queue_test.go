package ingest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

type fakeImporter struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeImporter) ImportPath(_ context.Context, p string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, p)
	if p == "/inbox/bad.pdf" {
		return Result{SourcePath: p}, errors.New("unreadable")
	}
	return Result{SourcePath: p, Destination: "/" + p[len("/inbox/"):]}, nil
}

func TestQueueImportsAndReports(t *testing.T) {
	imp := &fakeImporter{}
	var mu sync.Mutex
	var imported []string
	q := NewQueue(imp, nil, WithWorkers(3), WithQueueSize(1), OnImported(func(r Result) {
		mu.Lock()
		imported = append(imported, r.Destination)
		mu.Unlock()
	}))

	for _, p := range []string{"/inbox/a.pdf", "/inbox/bad.pdf", "/inbox/b.pdf"} {
		q.Enqueue(context.Background(), p)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	if len(imp.paths) != 3 {
		t.Errorf("imported %v, want all three attempted", imp.paths)
	}
	sort.Strings(imported)
	if len(imported) != 2 || imported[0] != "/a.pdf" || imported[1] != "/b.pdf" {
		t.Errorf("reported %v, want only successful imports", imported)
	}

	q.Enqueue(context.Background(), "/inbox/late.pdf")
	if len(imp.paths) != 3 {
		t.Error("enqueue after shutdown must be dropped")
	}
}

func TestQueueFeed(t *testing.T) {
	imp := &fakeImporter{}
	q := NewQueue(imp, nil, WithWorkers(1))
	events := make(chan string, 2)
	events <- "/inbox/a.pdf"
	events <- "/inbox/b.pdf"
	close(events)

	q.Feed(context.Background(), events)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	if len(imp.paths) != 2 {
		t.Errorf("imported %v", imp.paths)
	}
}
