package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/projectvak/contract-pipeline/constants"
	"github.com/projectvak/contract-pipeline/internal/common"
	"github.com/projectvak/contract-pipeline/internal/llm"
)

type Config struct {
	Model         string
	Chunk1Size    int // characters of the main text window
	Chunk2Start   int // secondary window, used when the text is longer than this
	Chunk2End     int
	MaxAttempts   int
	Temperature   float64
	JSONRetryWait time.Duration // after an unparseable answer
	RateLimitWait time.Duration // after a rate limit that is not a quota error
	StageDelay    time.Duration // after every stage, keeps under the RPM ceiling
}

func DefaultConfig() Config {
	return Config{
		Chunk1Size:    20000,
		Chunk2Start:   15000,
		Chunk2End:     35000,
		MaxAttempts:   3,
		Temperature:   0.1,
		JSONRetryWait: 3 * time.Second,
		RateLimitWait: 15 * time.Second,
		StageDelay:    12 * time.Second,
	}
}

// MultiStageExtractor issues one narrow prompt per contract section and
// merges the answers. Sections fail independently; a quota or API key
// error aborts the whole extraction so the caller can requeue.
type MultiStageExtractor struct {
	gen    llm.Generator
	cfg    Config
	stages []string
	sleep  common.SleepFunc
	logger *slog.Logger
}

type Option func(*MultiStageExtractor)

func WithSleep(s common.SleepFunc) Option { return func(m *MultiStageExtractor) { m.sleep = s } }
func WithStages(s []string) Option        { return func(m *MultiStageExtractor) { m.stages = s } }

func NewMultiStageExtractor(gen llm.Generator, cfg Config, logger *slog.Logger, opts ...Option) *MultiStageExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Chunk1Size <= 0 {
		cfg.Chunk1Size = def.Chunk1Size
	}
	if cfg.Chunk2End <= 0 {
		cfg.Chunk2Start, cfg.Chunk2End = def.Chunk2Start, def.Chunk2End
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	m := &MultiStageExtractor{
		gen:    gen,
		cfg:    cfg,
		stages: llm.Stages,
		sleep:  common.Sleep,
		logger: logger,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *MultiStageExtractor) Extract(ctx context.Context, text string) (Record, error) {
	rec, _, err := m.ExtractWithReport(ctx, text)
	return rec, err
}

// ExtractWithReport runs every stage in order. On a quota or API key error
// it returns a nil Record and the classified error; stages after the
// failing one never run.
func (m *MultiStageExtractor) ExtractWithReport(ctx context.Context, text string) (Record, []StageReport, error) {
	start := time.Now()
	chunk1 := common.Truncate(text, m.cfg.Chunk1Size)
	chunk2 := ""
	if common.CharLen(text) > m.cfg.Chunk2Start {
		chunk2 = common.Window(text, m.cfg.Chunk2Start, m.cfg.Chunk2End)
	}

	sections := make(map[string]map[string]any, len(m.stages))
	reports := make([]StageReport, 0, len(m.stages))
	for _, stage := range m.stages {
		section, rep, err := m.runStage(ctx, stage, chunk1, chunk2)
		reports = append(reports, rep)
		if err != nil {
			m.logger.Error("extract.abort",
				"stage", stage, "kind", llm.KindOf(err).String(), "error", err,
				"elapsed_ms", time.Since(start).Milliseconds())
			return nil, reports, err
		}
		sections[stage] = section

		if err := m.sleep(ctx, m.cfg.StageDelay); err != nil {
			return nil, reports, err
		}
	}

	rec := Merge(sections)
	m.logger.Info("extract.done",
		"stages", len(reports),
		"filled_fields", CountFilled(rec),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rec, reports, nil
}

func (m *MultiStageExtractor) runStage(ctx context.Context, stage, chunk1, chunk2 string) (map[string]any, StageReport, error) {
	rep := StageReport{Stage: stage}
	prompt, err := llm.BuildStagePrompt(stage, chunk1, chunk2)
	if err != nil {
		rep.Failed = true
		return map[string]any{}, rep, nil
	}

	policy := llm.RetryPolicy{
		Name:        "extract." + stage,
		MaxAttempts: m.cfg.MaxAttempts,
		Decide: func(err error) llm.Decision {
			switch {
			case errors.Is(err, common.ErrMalformedJSON):
				return llm.Retry
			case errors.Is(err, common.ErrQuotaExceeded), errors.Is(err, common.ErrAPIKey):
				return llm.Abort
			case errors.Is(err, common.ErrRateLimited):
				return llm.Retry
			}
			return llm.Fail
		},
		Backoff: func(_ int, err error) time.Duration {
			if errors.Is(err, common.ErrMalformedJSON) {
				return m.cfg.JSONRetryWait
			}
			return m.cfg.RateLimitWait
		},
		Sleep:  m.sleep,
		Logger: m.logger,
	}
	req := llm.Request{
		Model:       m.cfg.Model,
		Prompt:      prompt,
		Temperature: llm.Float(m.cfg.Temperature),
		JSON:        true,
	}
	section, out, err := llm.Do(ctx, policy, func(ctx context.Context, _ int) (map[string]any, error) {
		raw, err := m.gen.Generate(ctx, req)
		if err != nil {
			return nil, llm.Classify(err)
		}
		return parseSection(raw)
	})
	rep.Attempts = out.Attempts
	if err != nil {
		if out.Decision == llm.Abort {
			return nil, rep, err
		}
		m.logger.Warn("extract.stage.failed", "stage", stage, "attempts", out.Attempts, "error", err)
		rep.Failed = true
		return map[string]any{}, rep, nil
	}
	rep.Fields = CountFilled(section)
	m.logger.Info("extract.stage.ok", "stage", stage, "fields", rep.Fields, "attempts", out.Attempts)
	return section, rep, nil
}

func parseSection(raw string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(llm.StripFences(raw)), &v); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrMalformedJSON, err)
	}
	if err := llm.ValidateValue(llm.StageSchema(), v); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrMalformedJSON, err)
	}
	return v.(map[string]any), nil
}

// Merge assembles the stage answers into one Record. Missing sections are
// empty maps; contract_type defaults to huurovereenkomst.
func Merge(sections map[string]map[string]any) Record {
	section := func(name string) map[string]any {
		if s, ok := sections[name]; ok && s != nil {
			return s
		}
		return map[string]any{}
	}
	meta := section(llm.StageMetadata)
	contractType, ok := meta["contract_type"]
	if !ok {
		contractType = constants.DocumentType
	}
	return Record{
		"contract_type":      contractType,
		"datum_contract":     meta["datum_contract"],
		llm.StagePartijen:    section(llm.StagePartijen),
		llm.StagePand:        section(llm.StagePand),
		llm.StageFinancieel:  section(llm.StageFinancieel),
		llm.StagePeriodes:    section(llm.StagePeriodes),
		llm.StageVoorwaarden: section(llm.StageVoorwaarden),
		llm.StageJuridisch:   section(llm.StageJuridisch),
	}
}

// CountFilled counts leaf values that carry data. nil, "", empty lists and
// the missing sentinel do not count.
func CountFilled(v any) int {
	switch t := v.(type) {
	case Record:
		return CountFilled(map[string]any(t))
	case map[string]any:
		n := 0
		for _, c := range t {
			n += CountFilled(c)
		}
		return n
	case []any:
		n := 0
		for _, c := range t {
			n += CountFilled(c)
		}
		return n
	case nil:
		return 0
	case string:
		if t == "" || t == constants.MissingSentinel {
			return 0
		}
		return 1
	default:
		return 1
	}
}
