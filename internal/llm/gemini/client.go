package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/projectvak/contract-pipeline/internal/llm"
)

const (
	defaultBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	defaultTimeout      = 120 * time.Second
	defaultMaxRetries   = 2
	initialBackoff      = 500 * time.Millisecond
	maxBackoff          = 30 * time.Second
	maxIdleConns        = 100
	idleConnTimeout     = 90 * time.Second
	tlsHandshakeTimeout = 10 * time.Second
)

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string // resolved lazily via SelectModel when empty
	Timeout    time.Duration
	MaxRetries int // transport errors and 5xx only
}

// Client is a Gemini REST client. HTTP 429 is never retried here; quota
// handling belongs to the caller's retry policy.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
	sleep  func(time.Duration)

	usageMu           sync.Mutex
	totalPromptTokens int64
	totalOutputTokens int64
	generateCalls     int64
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	transport := &http.Transport{
		MaxIdleConns:        maxIdleConns,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Transport: transport, Timeout: cfg.Timeout},
		logger: logger,
		sleep:  time.Sleep,
	}
}

// WithAPIKey returns a client sharing the transport but using key.
func (c *Client) WithAPIKey(key string) *Client {
	cfg := c.cfg
	cfg.APIKey = key
	return &Client{cfg: cfg, http: c.http, logger: c.logger, sleep: c.sleep}
}

// WithModel returns a client whose default model is model.
func (c *Client) WithModel(model string) *Client {
	cfg := c.cfg
	cfg.Model = model
	return &Client{cfg: cfg, http: c.http, logger: c.logger, sleep: c.sleep}
}

func (c *Client) Model() string { return c.cfg.Model }

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + path
}

// headers carries the key out of the URL, so transport errors (which
// quote the URL) never contain it.
func (c *Client) headers() map[string]string {
	if c.cfg.APIKey == "" {
		return nil
	}
	return map[string]string{"x-goog-api-key": c.cfg.APIKey}
}

// Generate implements llm.Generator.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	if model == "" {
		return "", errors.New("gemini: no model configured")
	}

	parts := []Part{{Text: req.Prompt}}
	for _, img := range req.Images {
		parts = append(parts, Part{InlineData: &InlineData{MimeType: img.MimeType, Data: img.Data}})
	}
	body := &GenerateContentRequest{Contents: []Content{{Role: "user", Parts: parts}}}
	if req.Temperature != nil || req.MaxOutputTokens > 0 || req.JSON {
		gc := &GenerationConfig{Temperature: req.Temperature, MaxOutputTokens: req.MaxOutputTokens}
		if req.JSON {
			gc.ResponseMimeType = "application/json"
		}
		body.GenerationConfig = gc
	}

	resp, err := c.GenerateContent(ctx, model, body)
	if err != nil {
		return "", err
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	return resp.Text(), nil
}

// GenerateContent calls the Gemini generateContent API
func (c *Client) GenerateContent(ctx context.Context, model string, req *GenerateContentRequest) (*GenerateContentResponse, error) {
	rid := uuid.New().String()
	start := time.Now()
	model = strings.TrimPrefix(model, "models/")
	endpoint := c.endpoint(fmt.Sprintf("models/%s:generateContent", model))

	c.logger.Info("llm.gemini.generate.start",
		"req_id", rid,
		"model", model,
		"parts", len(req.Contents[0].Parts),
	)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.sleep(calculateBackoff(attempt))
		}

		raw, status, err := llm.SendJSON(ctx, c.http, endpoint, req, c.headers(), c.logger)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if isRetryable(status) {
				continue
			}
			c.logger.Error("llm.gemini.generate.error",
				"req_id", rid, "status", status, "error", err,
				"elapsed_ms", time.Since(start).Milliseconds())
			return nil, err
		}

		var result GenerateContentResponse
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		if result.Error != nil {
			if isRetryable(result.Error.Code) {
				lastErr = result.Error
				continue
			}
			return nil, result.Error
		}

		c.recordUsage(result.UsageMetadata)
		c.logger.Info("llm.gemini.generate.ok",
			"req_id", rid,
			"model", model,
			"attempts", attempt+1,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return &result, nil
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// ListModels returns every model visible to the key, following page tokens.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var out []Model
	token := ""
	for {
		path := "models?pageSize=100"
		if token != "" {
			path += "&pageToken=" + url.QueryEscape(token)
		}
		raw, _, err := llm.GetJSON(ctx, c.http, c.endpoint(path), c.headers(), c.logger)
		if err != nil {
			return nil, err
		}
		var page listModelsResponse
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("unmarshal models: %w", err)
		}
		if page.Error != nil {
			return nil, page.Error
		}
		out = append(out, page.Models...)
		if page.NextPageToken == "" {
			return out, nil
		}
		token = page.NextPageToken
	}
}

// UsageStats contains accumulated usage statistics
type UsageStats struct {
	PromptTokens  int64 `json:"prompt_tokens"`
	OutputTokens  int64 `json:"output_tokens"`
	GenerateCalls int64 `json:"generate_calls"`
}

func (c *Client) UsageStats() UsageStats {
	c.usageMu.Lock()
	defer c.usageMu.Unlock()
	return UsageStats{
		PromptTokens:  c.totalPromptTokens,
		OutputTokens:  c.totalOutputTokens,
		GenerateCalls: c.generateCalls,
	}
}

func (c *Client) recordUsage(usage *UsageMetadata) {
	c.usageMu.Lock()
	defer c.usageMu.Unlock()
	c.generateCalls++
	if usage == nil {
		return
	}
	c.totalPromptTokens += int64(usage.PromptTokenCount)
	c.totalOutputTokens += int64(usage.CandidatesTokenCount)
}

// 429 is left to the caller.
func isRetryable(code int) bool {
	return code == 0 || code >= 500
}

func calculateBackoff(attempt int) time.Duration {
	backoff := float64(initialBackoff) * math.Pow(2, float64(attempt-1))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	return time.Duration(backoff + jitter)
}
