package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStartWatcherRequiresRoot(t *testing.T) {
	if _, _, err := StartWatcher(context.Background(), WatchConfig{}, nil); err == nil {
		t.Fatal("expected error without root")
	}
}

func TestStartWatcherEmitsDocuments(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := StartWatcher(ctx, WatchConfig{Root: root, Debounce: 50 * time.Millisecond}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, "contract.pdf")
	if err := os.WriteFile(want, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-events:
		if got != want {
			t.Fatalf("event for %s, want %s", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event for new pdf")
	}

	cancel()
	for range events {
	}
}

func TestStartWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := StartWatcher(ctx, WatchConfig{Root: root}, nil)
	if err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "Scans")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to register the new directory.
	time.Sleep(200 * time.Millisecond)
	want := filepath.Join(sub, "a.pdf")
	if err := os.WriteFile(want, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-events:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatal("no event from new subdirectory")
		}
	}
}
