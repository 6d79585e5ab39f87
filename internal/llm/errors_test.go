package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/projectvak/contract-pipeline/internal/common"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindOther},
		{"http 429", errors.New("non-2xx status: 429: Too Many Requests"), KindQuota},
		{"quota text", errors.New("You exceeded your current QUOTA"), KindQuota},
		{"resource exhausted", errors.New("RESOURCE_EXHAUSTED"), KindQuota},
		{"invalid key", errors.New("API_KEY_INVALID: API key not valid"), KindAuth},
		{"403", errors.New("non-2xx status: 403: forbidden"), KindAuth},
		{"permission", errors.New("Permission denied on resource"), KindAuth},
		{"rate limit phrase", errors.New("rate limit hit"), KindRateLimit},
		{"canceled", context.Canceled, KindCanceled},
		{"sentinel quota", fmt.Errorf("stage: %w", common.ErrQuotaExceeded), KindQuota},
		{"other", errors.New("connection reset by peer"), KindOther},
		{"status 429", &StatusError{Status: 429, Body: "slow down"}, KindQuota},
		{"status 401", fmt.Errorf("call: %w", &StatusError{Status: 401}), KindAuth},
		{"status 400 invalid key", &StatusError{Status: 400, Body: "API key not valid"}, KindAuth},
		{"digits inside a token", errors.New(`dial tcp 10.0.4291.1: secret4290abc: connection refused`), KindOther},
		{"port 4030", errors.New("dial tcp 127.0.0.1:4030: connection refused"), KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyWrapsSentinels(t *testing.T) {
	err := Classify(errors.New("status 429: resource exhausted"))
	if !errors.Is(err, common.ErrQuotaExceeded) {
		t.Errorf("expected ErrQuotaExceeded, got %v", err)
	}
	err = Classify(errors.New("api key not valid"))
	if !errors.Is(err, common.ErrAPIKey) {
		t.Errorf("expected ErrAPIKey, got %v", err)
	}
	plain := errors.New("boom")
	if got := Classify(plain); got != plain {
		t.Errorf("unclassified error should pass through, got %v", got)
	}
	already := fmt.Errorf("x: %w", common.ErrQuotaExceeded)
	if got := Classify(already); got != already {
		t.Errorf("already tagged error should not be rewrapped")
	}
}
