package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Authorization") != "Bearer t" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		b, _ := io.ReadAll(r.Body)
		if string(b) != `{"a":1}` {
			t.Errorf("body = %s", b)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	raw, status, err := SendJSON(context.Background(), srv.Client(), srv.URL, map[string]int{"a": 1},
		map[string]string{"Authorization": "Bearer t"}, nil)
	if err != nil || status != 200 || string(raw) != `{"ok":true}` {
		t.Fatalf("SendJSON = (%s, %d, %v)", raw, status, err)
	}
}

func TestSendJSONStatusErrorCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	_, status, err := SendJSON(context.Background(), srv.Client(), srv.URL, struct{}{}, nil, nil)
	if status != http.StatusTooManyRequests {
		t.Errorf("status = %d", status)
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %T %v, want *StatusError", err, err)
	}
	if !IsQuota(err) {
		t.Errorf("quota signature not detected in %q", err)
	}
}

func TestRedactKey(t *testing.T) {
	tests := map[string]string{
		"https://x/models?key=SECRET":     "https://x/models?key=REDACTED",
		"https://x/models?key=SECRET&a=b": "https://x/models?key=REDACTED&a=b",
		"https://x/models?pageSize=10":    "https://x/models?pageSize=10",
	}
	for in, want := range tests {
		if got := redactKey(in); got != want {
			t.Errorf("redactKey(%q) = %q, want %q", in, got, want)
		}
	}
}
