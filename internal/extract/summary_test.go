package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/projectvak/contract-pipeline/internal/common"
	"github.com/projectvak/contract-pipeline/internal/llm"
)

func scripted(replies ...any) (llm.Generator, *[]llm.Request) {
	var reqs []llm.Request
	gen := llm.GeneratorFunc(func(_ context.Context, req llm.Request) (string, error) {
		r := replies[min(len(reqs), len(replies)-1)]
		reqs = append(reqs, req)
		if err, ok := r.(error); ok {
			return "", err
		}
		return r.(string), nil
	})
	return gen, &reqs
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name      string
		replies   []any
		wantText  string
		wantErr   error
		wantCalls int
		wantWaits int
	}{
		{
			name:      "first answer",
			replies:   []any{"  Een huurcontract voor een appartement.  "},
			wantText:  "Een huurcontract voor een appartement.",
			wantCalls: 1,
		},
		{
			name:      "transient error then answer",
			replies:   []any{errors.New("503 unavailable"), "Samenvatting"},
			wantText:  "Samenvatting",
			wantCalls: 2,
			wantWaits: 1,
		},
		{
			name:      "quota is returned",
			replies:   []any{errors.New("429 RESOURCE_EXHAUSTED")},
			wantErr:   common.ErrQuotaExceeded,
			wantCalls: 1,
		},
		{
			name:      "api key is returned",
			replies:   []any{errors.New("API key not valid")},
			wantErr:   common.ErrAPIKey,
			wantCalls: 1,
		},
		{
			name:      "persistent failure falls back",
			replies:   []any{errors.New("boom")},
			wantText:  "Error generating summary: boom",
			wantCalls: 3,
			wantWaits: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, reqs := scripted(tt.replies...)
			var waits []time.Duration
			s := NewSummarizer(gen, SummaryConfig{Model: "m", RetryWait: 15 * time.Second},
				func(ctx context.Context, d time.Duration) error { waits = append(waits, d); return nil }, nil)

			got, err := s.Summarize(context.Background(), "huurovereenkomst", "tekst")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if got != tt.wantText {
				t.Errorf("summary = %q, want %q", got, tt.wantText)
			}
			if len(*reqs) != tt.wantCalls {
				t.Errorf("calls = %d, want %d", len(*reqs), tt.wantCalls)
			}
			if len(waits) != tt.wantWaits {
				t.Errorf("waits = %v, want %d", waits, tt.wantWaits)
			}
		})
	}
}

func TestSummarizeRequestShape(t *testing.T) {
	gen, reqs := scripted("ok")
	s := NewSummarizer(gen, SummaryConfig{Model: "gemini-2.5-flash"}, common.NoSleep, nil)
	text := strings.Repeat("a", 2990) + strings.Repeat("b", 100)

	if _, err := s.Summarize(context.Background(), "huurovereenkomst", text); err != nil {
		t.Fatal(err)
	}
	req := (*reqs)[0]
	if req.Model != "gemini-2.5-flash" || req.MaxOutputTokens != 3000 {
		t.Fatalf("request = %+v", req)
	}
	if req.Temperature == nil || *req.Temperature != 0.3 {
		t.Fatalf("temperature = %v", req.Temperature)
	}
	if strings.Contains(req.Prompt, strings.Repeat("b", 11)) {
		t.Fatal("prompt exceeds the 3000 character sample")
	}
	if !strings.Contains(req.Prompt, "dit huurovereenkomst") {
		t.Fatal("prompt misses the document type")
	}
}
