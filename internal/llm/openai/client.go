package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/projectvak/contract-pipeline/internal/llm"
)

// Generate implements llm.Generator using chat/completions. Images are sent
// as data URLs in image_url content parts.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	model := req.Model
	if model == "" || strings.HasPrefix(model, "gemini") {
		model = c.cfg.Model
	}

	c.logger.Info("llm.openai.generate.start",
		"req_id", rid,
		"model", model,
		"prompt_len", len(req.Prompt),
		"images", len(req.Images),
		"json", req.JSON,
	)

	body := map[string]any{
		"model":    model,
		"messages": []map[string]any{{"role": "user", "content": userContent(req)}},
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.MaxOutputTokens > 0 {
		body["max_tokens"] = req.MaxOutputTokens
	}
	if req.JSON {
		body["response_format"] = map[string]any{"type": "json_object"}
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body,
		map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}, c.logger)
	if err != nil {
		c.logger.Error("llm.openai.generate.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.openai.generate.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.openai.generate.no_choices",
			"req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("no choices in openai response")
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	c.logger.Info("llm.openai.generate.ok",
		"req_id", rid,
		"content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

func userContent(req llm.Request) any {
	if len(req.Images) == 0 {
		return req.Prompt
	}
	parts := []map[string]any{{"type": "text", "text": req.Prompt}}
	for _, img := range req.Images {
		parts = append(parts, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": dataURL(img)},
		})
	}
	return parts
}

func dataURL(img llm.Image) string {
	mt := img.MimeType
	if mt == "" {
		mt = "application/octet-stream"
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
