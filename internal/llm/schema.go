package llm

// DecisionSchema constrains the classifier answer. Only the keys routing
// depends on are required; extra keys such as description pass through.
func DecisionSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action":             map[string]any{"type": "string", "enum": []string{"existing", "new"}},
			"folder_path":        map[string]any{"type": "string", "minLength": 1},
			"confidence":         map[string]any{"type": []string{"number", "string"}},
			"reasoning":          map[string]any{"type": "string"},
			"description":        map[string]any{"type": "string"},
			"suggested_filename": map[string]any{"type": "string"},
		},
		"required": []string{"action", "folder_path", "confidence", "reasoning"},
	}
}

// StageSchema accepts any JSON object; a stage answer only has to be an
// object for the merge step to place it.
func StageSchema() map[string]any {
	return map[string]any{"type": "object"}
}
