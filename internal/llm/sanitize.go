package llm

import (
	"log/slog"
	"strconv"
	"strings"
)

// NormalizeDecision rewrites common deviations in a classifier answer
// before validation:
//   - renames synonyms (folder, destination, map -> folder_path; filename -> suggested_filename)
//   - lowercases and trims action
//   - coerces a numeric confidence string ("95", "95%") to a number
//   - trims string values
//
// It returns the keys it touched.
func NormalizeDecision(m map[string]any, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}
	touched := make([]string, 0, 4)

	rename := func(from, to string) {
		v, ok := m[from]
		if !ok {
			return
		}
		if _, exists := m[to]; !exists {
			m[to] = v
		}
		delete(m, from)
		touched = append(touched, from+"->"+to)
	}
	rename("folder", "folder_path")
	rename("destination", "folder_path")
	rename("map", "folder_path")
	rename("filename", "suggested_filename")

	for k, v := range m {
		if s, ok := v.(string); ok {
			if t := strings.TrimSpace(s); t != s {
				m[k] = t
			}
		}
	}

	if a, ok := m["action"].(string); ok {
		if l := strings.ToLower(a); l != a {
			m["action"] = l
			touched = append(touched, "action(case)")
		}
	}

	if c, ok := m["confidence"].(string); ok {
		s := strings.TrimSuffix(strings.TrimSpace(c), "%")
		if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64); err == nil {
			m["confidence"] = f
			touched = append(touched, "confidence(string)")
		}
	}

	if len(touched) > 0 {
		logger.Debug("llm.decision.sanitize", "touched", touched)
	}
	return touched
}
