package ocr

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/projectvak/contract-pipeline/internal/common"
	"github.com/projectvak/contract-pipeline/internal/llm"
)

// Transcriber turns page images into text.
type Transcriber interface {
	Transcribe(ctx context.Context, images [][]byte) (string, error)
}

// VisionTranscriber asks a vision-capable model for a verbatim transcript.
// Rate limit responses are retried after RateLimitWait; anything else is
// returned to the caller.
type VisionTranscriber struct {
	Generator     llm.Generator
	Model         string
	MaxAttempts   int
	RateLimitWait time.Duration
	Sleep         common.SleepFunc
	Logger        *slog.Logger
}

func (v *VisionTranscriber) Transcribe(ctx context.Context, images [][]byte) (string, error) {
	req := llm.Request{Model: v.Model, Prompt: llm.VisionOCRPrompt}
	for _, img := range images {
		req.Images = append(req.Images, llm.Image{MimeType: "image/png", Data: img})
	}

	policy := llm.RetryPolicy{
		Name:        "vision_ocr",
		MaxAttempts: v.MaxAttempts,
		Decide: func(err error) llm.Decision {
			if strings.Contains(err.Error(), "429") {
				return llm.Retry
			}
			return llm.Abort
		},
		Backoff: llm.Fixed(v.RateLimitWait),
		Sleep:   v.Sleep,
		Logger:  v.Logger,
	}
	text, _, err := llm.Do(ctx, policy, func(ctx context.Context, _ int) (string, error) {
		return v.Generator.Generate(ctx, req)
	})
	return text, err
}
