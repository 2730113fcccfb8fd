package model

import (
	"regexp"
	"strings"
)

// SentinelAnswer is the fixed response recorded when no relevant information
// is found in the document. It is a terminal, non-erroring outcome: score
// floor, not a failure.
const SentinelAnswer = "not specified"

// IsSentinel reports whether an answer is the "not specified" sentinel
// (possibly with surrounding punctuation or casing from the model).
func IsSentinel(answer string) bool {
	trimmed := strings.ToLower(strings.Trim(strings.TrimSpace(answer), `."'`))
	return trimmed == SentinelAnswer || trimmed == "not specified in the document"
}

// sectionRef matches structural references to statute text: section symbols,
// numbered sections like "Section 12-3" or "Sec. 4.2", articles, chapters,
// and bare dotted clause numbers such as "§ 240-5.1(B)".
var sectionRef = regexp.MustCompile(`(?i)(§\s*[\d\-.]+|\b(section|sec\.?|article|art\.?|chapter|ch\.?)\s+[\dIVXLC][\dIVXLC\-.()]*)`)

// ReferencesSection reports whether the answer cites a structural marker
// from the source document. Answers that cite sections earn a higher
// confidence baseline in direct mode.
func ReferencesSection(answer string) bool {
	return sectionRef.MatchString(answer)
}

// ExtractSectionRefs returns the distinct structural references cited in the
// answer, in order of first appearance.
func ExtractSectionRefs(answer string) []string {
	matches := sectionRef.FindAllString(answer, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var refs []string
	for _, m := range matches {
		key := strings.ToLower(strings.Join(strings.Fields(m), " "))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		refs = append(refs, strings.TrimSpace(m))
	}
	return refs
}

// stateCodePhrases are the text patterns that indicate a jurisdiction defers
// to state-level law instead of regulating locally.
var stateCodePhrases = []string{
	"state code",
	"state law",
	"state statute",
	"state regulation",
	"defers to the state",
	"environmental conservation law",
	"general municipal law",
	"state building code",
	"adopted by reference",
}

// DefersToStateCode reports whether the answer indicates the jurisdiction
// relies on state-level law rather than its own provision.
func DefersToStateCode(answer string) bool {
	lower := strings.ToLower(answer)
	for _, phrase := range stateCodePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// LetterGrade converts a normalized 0-1 score into a letter grade for the
// comparison views.
func LetterGrade(score float64) string {
	switch {
	case score >= 0.9:
		return "A"
	case score >= 0.8:
		return "B"
	case score >= 0.65:
		return "C"
	case score >= 0.5:
		return "D"
	default:
		return "F"
	}
}
