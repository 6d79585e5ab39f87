package gemini

import (
	"context"
	"slices"
	"strings"

	"github.com/projectvak/contract-pipeline/constants"
)

// SelectModel picks the first preferred model the key can see, then the
// first model supporting generateContent, and falls back to the default
// when the listing fails or is empty.
func (c *Client) SelectModel(ctx context.Context) string {
	models, err := c.ListModels(ctx)
	if err != nil {
		c.logger.Warn("llm.gemini.models.list_error", "error", err, "fallback", constants.DefaultModel)
		return constants.DefaultModel
	}
	m := ChooseModel(models, constants.PreferredModels)
	c.logger.Info("llm.gemini.models.selected", "model", m, "available", len(models))
	return m
}

// ChooseModel is the pure part of SelectModel.
func ChooseModel(models []Model, preferred []string) string {
	names := make([]string, 0, len(models))
	for _, m := range models {
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	for _, p := range preferred {
		if slices.Contains(names, p) {
			return p
		}
	}
	for i, m := range models {
		if len(m.SupportedGenerationMethods) == 0 || slices.Contains(m.SupportedGenerationMethods, "generateContent") {
			return names[i]
		}
	}
	return constants.DefaultModel
}
