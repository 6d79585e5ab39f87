package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := `
storage:
  backend: local
  local_root: ` + filepath.Join(dir, "docs") + `
pipeline:
  analyzed_history: ` + filepath.Join(dir, "analyzed.txt") + `
  organized_history: ` + filepath.Join(dir, "organized.txt") + `
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path, dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestImportAndHistoryCommands(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	src := filepath.Join(dir, "inbox")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "huur.pdf"), []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "--config", cfgPath, "import", src)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "matched 1, imported 1, duplicates 0, failed 0") {
		t.Errorf("import output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "docs", "huur.pdf")); err != nil {
		t.Errorf("document not in scan root: %v", err)
	}

	out, err = run(t, "--config", cfgPath, "import", src)
	if err != nil || !strings.Contains(out, "duplicates 1") {
		t.Errorf("second import = %q, %v", out, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "analyzed.txt"), []byte("/Georganiseerd/Huur/a.pdf\n/Georganiseerd/Huur/b.pdf\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "--config", cfgPath, "history", "unmark", "/Georganiseerd/Huur/a.pdf"); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, "--config", cfgPath, "history", "list")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "/Georganiseerd/Huur/b.pdf" {
		t.Errorf("history after unmark = %q", out)
	}
	if _, err := run(t, "--config", cfgPath, "history", "unmark", "/nope.pdf"); err == nil {
		t.Error("unmarking an unknown path should fail")
	}
	if _, err := run(t, "--config", cfgPath, "history", "list", "--ledger", "other"); err == nil {
		t.Error("unknown ledger should fail")
	}
}

func TestMaskKey(t *testing.T) {
	tests := map[string]string{
		"short":                   "*****",
		"AIzaSyA1234567890abcdef": "AIza...cdef",
	}
	for in, want := range tests {
		if got := maskKey(in); got != want {
			t.Errorf("maskKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDBHealthInMemory(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	out, err := run(t, "--config", cfgPath, "--inmem", "dbhealth")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "DB health: OK (sqlite3, 0 contract records)") {
		t.Errorf("dbhealth output = %q", out)
	}
}
