package model

import "sort"

// Question is a single entry in a domain's question catalog. Catalogs are
// immutable per domain; a question's identity is its ID. The analyzed text is
// stored alongside each answer so that later edits to the catalog text
// invalidate the cached answer.
type Question struct {
	ID              string  `yaml:"id" json:"id"`
	Text            string  `yaml:"text" json:"text"`
	Category        string  `yaml:"category" json:"category"`
	Weight          float64 `yaml:"weight" json:"weight"`
	Order           int     `yaml:"order" json:"order"`
	ScoringGuidance string  `yaml:"scoring_guidance,omitempty" json:"scoring_guidance,omitempty"`
}

// EffectiveWeight returns the question's weight, defaulting to 1 when unset
// or negative.
func (q Question) EffectiveWeight() float64 {
	if q.Weight <= 0 {
		return 1
	}
	return q.Weight
}

// SortByOrder sorts questions in place by their catalog order, falling back
// to ID for stable output when orders collide.
func SortByOrder(questions []Question) {
	sort.SliceStable(questions, func(i, j int) bool {
		if questions[i].Order != questions[j].Order {
			return questions[i].Order < questions[j].Order
		}
		return questions[i].ID < questions[j].ID
	})
}

// QuestionsByID builds a lookup map keyed by question ID.
func QuestionsByID(questions []Question) map[string]Question {
	m := make(map[string]Question, len(questions))
	for _, q := range questions {
		m[q.ID] = q
	}
	return m
}
