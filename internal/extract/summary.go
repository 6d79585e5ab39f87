package extract

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/projectvak/contract-pipeline/internal/common"
	"github.com/projectvak/contract-pipeline/internal/llm"
)

type SummaryConfig struct {
	Model       string
	SampleSize  int
	MaxAttempts int
	RetryWait   time.Duration
}

// Summarizer writes the short prose summary that goes into the report.
type Summarizer struct {
	gen    llm.Generator
	cfg    SummaryConfig
	sleep  common.SleepFunc
	logger *slog.Logger
}

func NewSummarizer(gen llm.Generator, cfg SummaryConfig, sleep common.SleepFunc, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	if sleep == nil {
		sleep = common.Sleep
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 3000
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Summarizer{gen: gen, cfg: cfg, sleep: sleep, logger: logger}
}

// Summarize returns a summary of text. Quota and API key errors are
// returned so the caller can requeue; any other failure yields a fallback
// text and a nil error.
func (s *Summarizer) Summarize(ctx context.Context, docType, text string) (string, error) {
	start := time.Now()
	prompt := llm.BuildSummaryPrompt(docType, common.Truncate(text, s.cfg.SampleSize))

	policy := llm.RetryPolicy{
		Name:        "summary",
		MaxAttempts: s.cfg.MaxAttempts,
		Decide: func(err error) llm.Decision {
			if llm.IsQuota(err) || llm.IsAuth(err) {
				return llm.Abort
			}
			return llm.Retry
		},
		Backoff: llm.Fixed(s.cfg.RetryWait),
		Sleep:   s.sleep,
		Logger:  s.logger,
	}
	summary, out, err := llm.Do(ctx, policy, func(ctx context.Context, _ int) (string, error) {
		raw, err := s.gen.Generate(ctx, llm.Request{
			Model:           s.cfg.Model,
			Prompt:          prompt,
			Temperature:     llm.Float(0.3),
			MaxOutputTokens: 3000,
		})
		if err != nil {
			return "", llm.Classify(err)
		}
		return strings.TrimSpace(raw), nil
	})
	if err != nil {
		if out.Decision == llm.Abort {
			return "", err
		}
		s.logger.Warn("summary.fallback", "attempts", out.Attempts, "error", err)
		return "Error generating summary: " + common.Truncate(err.Error(), 200), nil
	}
	s.logger.Debug("summary.done", "chars", common.CharLen(summary), "elapsed_ms", time.Since(start).Milliseconds())
	return summary, nil
}
