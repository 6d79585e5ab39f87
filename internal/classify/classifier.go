package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/projectvak/contract-pipeline/constants"
	"github.com/projectvak/contract-pipeline/internal/common"
	"github.com/projectvak/contract-pipeline/internal/llm"
	"github.com/projectvak/contract-pipeline/internal/ocr"
)

// Decision is the routing answer for one document.
type Decision struct {
	Action            constants.Action `json:"action"`
	FolderPath        string           `json:"folder_path"`
	Confidence        float64          `json:"confidence"`
	Reasoning         string           `json:"reasoning"`
	Description       string           `json:"description,omitempty"`
	SuggestedFilename string           `json:"suggested_filename,omitempty"`
}

type Config struct {
	Model         string
	SampleSize    int // characters of text embedded in the prompt
	MaxAttempts   int
	RetryWait     time.Duration // after parse or validation failures and other errors
	RateLimitWait time.Duration // multiplied by the attempt number on quota errors
}

// Input is one document to classify.
type Input struct {
	Text        string
	Filename    string
	Location    string
	KnownGroups string // rendered folder summary
	Meta        ocr.Metadata
}

// Classifier routes documents into address folders with one LLM call per
// attempt followed by the rule-based correction pass.
type Classifier struct {
	gen         llm.Generator
	cfg         Config
	corrections []Correction
	sleep       common.SleepFunc
	logger      *slog.Logger
}

type Option func(*Classifier)

func WithSleep(s common.SleepFunc) Option    { return func(c *Classifier) { c.sleep = s } }
func WithCorrections(cs []Correction) Option { return func(c *Classifier) { c.corrections = cs } }

func NewClassifier(gen llm.Generator, cfg Config, logger *slog.Logger, opts ...Option) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 3500
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	c := &Classifier{
		gen:         gen,
		cfg:         cfg,
		corrections: DefaultCorrections,
		sleep:       common.Sleep,
		logger:      logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Using returns a copy of c that calls gen. The organize phase switches
// generators per document as API keys rotate.
func (c *Classifier) Using(gen llm.Generator) *Classifier {
	cp := *c
	cp.gen = gen
	return &cp
}

// Classify returns nil once every attempt has failed; err then holds the
// last failure. Callers leave the document where it is.
func (c *Classifier) Classify(ctx context.Context, in Input) (*Decision, error) {
	start := time.Now()
	prompt := llm.BuildClassifyPrompt(llm.ClassifyInput{
		TextSample:      common.Truncate(in.Text, c.cfg.SampleSize),
		Filename:        in.Filename,
		Location:        in.Location,
		ExistingFolders: in.KnownGroups,
		PagesScanned:    in.Meta.PagesScanned,
		TotalPages:      in.Meta.TotalPages,
		Method:          in.Meta.Method,
	})

	rateWait := llm.Linear(c.cfg.RateLimitWait)
	policy := llm.RetryPolicy{
		Name:        "classify",
		MaxAttempts: c.cfg.MaxAttempts,
		Decide:      func(error) llm.Decision { return llm.Retry },
		Backoff: func(attempt int, err error) time.Duration {
			if llm.IsQuota(err) {
				return rateWait(attempt, err)
			}
			return c.cfg.RetryWait
		},
		Sleep:  c.sleep,
		Logger: c.logger,
	}
	d, out, err := llm.Do(ctx, policy, func(ctx context.Context, attempt int) (*Decision, error) {
		raw, err := c.gen.Generate(ctx, llm.Request{Model: c.cfg.Model, Prompt: prompt})
		if err != nil {
			return nil, llm.Classify(err)
		}
		return ParseDecision(raw, c.logger)
	})
	if err != nil {
		c.logger.Error("classify.failed",
			"file", in.Filename, "attempts", out.Attempts, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	if name := Correct(d, in.Filename, c.corrections); name != "" {
		c.logger.Info("classify.corrected", "file", in.Filename, "rule", name, "folder", d.FolderPath)
	}
	c.logger.Info("classify.done",
		"file", in.Filename,
		"action", d.Action,
		"folder", d.FolderPath,
		"confidence", d.Confidence,
		"attempts", out.Attempts,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return d, nil
}

// ParseDecision locates the JSON object in a model answer, repairs common
// deviations, validates it and returns the decision with a rooted folder.
func ParseDecision(raw string, logger *slog.Logger) (*Decision, error) {
	m, err := llm.ExtractJSONObject(raw)
	if err != nil {
		return nil, err
	}
	llm.NormalizeDecision(m, logger)
	if err := llm.ValidateValue(llm.DecisionSchema(), m); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrValidation, err)
	}

	d := &Decision{
		Action:            constants.Action(stringField(m, "action")),
		FolderPath:        stringField(m, "folder_path"),
		Reasoning:         stringField(m, "reasoning"),
		Description:       stringField(m, "description"),
		SuggestedFilename: stringField(m, "suggested_filename"),
	}
	if !d.Action.Valid() {
		return nil, fmt.Errorf("%w: invalid action %q", common.ErrValidation, d.Action)
	}
	switch v := m["confidence"].(type) {
	case float64:
		d.Confidence = v
	case string:
		d.Confidence, _ = strconv.ParseFloat(v, 64)
	}
	if !strings.HasPrefix(d.FolderPath, "/") {
		d.FolderPath = "/" + d.FolderPath
	}
	return d, nil
}

func stringField(m map[string]any, k string) string {
	s, _ := m[k].(string)
	return s
}
