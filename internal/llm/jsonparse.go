package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/projectvak/contract-pipeline/internal/common"
)

var (
	reFenced     = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	reFirstBrace = regexp.MustCompile(`(?s)\{.*\}`)
)

// ExtractJSONObject locates a JSON object in model output. It tries the
// whole response, then a fenced code block, then the span from the first
// '{' to the last '}'.
func ExtractJSONObject(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)

	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err == nil && out != nil {
		return out, nil
	}
	if m := reFenced.FindStringSubmatch(text); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &out); err == nil && out != nil {
			return out, nil
		}
	}
	if m := reFirstBrace.FindString(text); m != "" {
		if err := json.Unmarshal([]byte(m), &out); err == nil && out != nil {
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: no json object in %d chars of output", common.ErrMalformedJSON, len(text))
}

// StripFences removes a surrounding ```json fence if present.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
