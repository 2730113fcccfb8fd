package budget

import "unicode"

// EstimateTokens approximates the token count of text for pre-flight
// budgeting. Four characters per token is conservative for English prose;
// the result only needs to avoid bursting the provider's real limit, not
// match it.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// EstimateEmbeddingTokens approximates tokens for chunk sizing against
// embedding model limits. Statute text is dense with numbering and
// punctuation, which tokenize worse than prose, so this uses three
// characters per token plus padding for digit and punctuation runs.
func EstimateEmbeddingTokens(text string) int {
	if text == "" {
		return 0
	}
	base := (len(text) + 2) / 3
	padded := 0
	for _, r := range text {
		if unicode.IsDigit(r) || unicode.IsPunct(r) {
			padded++
		}
	}
	return base + padded/8
}
