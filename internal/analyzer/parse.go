package analyzer

import (
	"encoding/json"
	"strings"
)

// modelAnswer is the JSON shape every answerer requests.
type modelAnswer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// parseAnswer extracts the structured answer from a model response. Models
// occasionally wrap JSON in code fences or prose; parsing falls back to
// treating the whole response as the answer text rather than failing the
// question.
func parseAnswer(text string) modelAnswer {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var parsed modelAnswer
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Answer != "" {
		return parsed
	}

	// Salvage an embedded JSON object from surrounding prose.
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			if err := json.Unmarshal([]byte(trimmed[start:end+1]), &parsed); err == nil && parsed.Answer != "" {
				return parsed
			}
		}
	}

	return modelAnswer{Answer: trimmed}
}
