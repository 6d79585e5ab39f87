package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/projectvak/contract-pipeline/constants"
	"github.com/projectvak/contract-pipeline/internal/common"
	"github.com/projectvak/contract-pipeline/internal/history"
	"github.com/projectvak/contract-pipeline/internal/ocr"
	"github.com/projectvak/contract-pipeline/internal/storage"
)

// fakeText maps document content to extracted text.
type fakeText map[string]string

func (f fakeText) Extract(_ context.Context, data []byte) (string, ocr.Metadata) {
	text := f[string(data)]
	return text, ocr.Metadata{TotalPages: 1, PagesScanned: 1, TextLength: common.CharLen(text), Method: constants.MethodText}
}

func newStore(t *testing.T) *storage.LocalStorage {
	t.Helper()
	st, err := storage.NewLocalStorage(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func put(t *testing.T, st storage.Storage, p, content string) {
	t.Helper()
	if err := st.Upload(context.Background(), p, []byte(content), true); err != nil {
		t.Fatalf("upload %s: %v", p, err)
	}
}

func exists(t *testing.T, st storage.Storage, p string) bool {
	t.Helper()
	ok, err := st.Exists(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	return ok
}

func newLedger(t *testing.T, name string) *history.Ledger {
	t.Helper()
	l := history.NewLedger(name, history.NewFileStore(filepath.Join(t.TempDir(), name+".txt")), nil)
	if err := l.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return l
}

type sentMessage struct{ subject, body string }

type recordingNotifier struct{ sent []sentMessage }

func (n *recordingNotifier) Send(_ context.Context, subject, body string) error {
	n.sent = append(n.sent, sentMessage{subject, body})
	return nil
}

func (n *recordingNotifier) subjects() string {
	var s []string
	for _, m := range n.sent {
		s = append(s, m.subject)
	}
	return strings.Join(s, " | ")
}
