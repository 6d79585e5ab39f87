package llm

import (
	"errors"
	"testing"

	"github.com/projectvak/contract-pipeline/internal/common"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantKey string
		wantErr bool
	}{
		{"bare", `{"action":"new"}`, "action", false},
		{"fenced", "Here you go:\n```json\n{\"action\": \"existing\"}\n```\nthanks", "action", false},
		{"fenced without lang", "```\n{\"a\": 1}\n```", "a", false},
		{"prose around", `Sure! {"folder_path": "/X", "nested": {"k": 1}} hope this helps`, "folder_path", false},
		{"no json", "I cannot help with that", "", true},
		{"array only", `[1,2,3]`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.in)
			if tt.wantErr {
				if !errors.Is(err, common.ErrMalformedJSON) {
					t.Fatalf("err = %v, want ErrMalformedJSON", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if _, ok := got[tt.wantKey]; !ok {
				t.Errorf("result %v missing key %q", got, tt.wantKey)
			}
		})
	}
}

func TestStripFences(t *testing.T) {
	tests := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{}\n```":            `{}`,
		`  {"b":2}  `:             `{"b":2}`,
	}
	for in, want := range tests {
		if got := StripFences(in); got != want {
			t.Errorf("StripFences(%q) = %q, want %q", in, got, want)
		}
	}
}
