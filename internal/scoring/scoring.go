// Package scoring converts raw answer/confidence pairs into normalized 0-1
// scores and weighted per-document aggregates.
package scoring

import (
	"fmt"
	"math"

	"github.com/JGarfunkel/ordinizer-sub000/internal/model"
)

// NearPerfectThreshold is the score at or above which a question carries no
// gap commentary.
const NearPerfectThreshold = 1.0

// Policy maps an answer and its confidence to a 0-1 score. The exact mapping
// is deliberately replaceable; the engine only guarantees clamping and the
// sentinel floor.
type Policy interface {
	Score(answerText string, confidence float64, guidance string) float64
}

// Heuristic is the default scoring policy: confidence carried into [0,1]
// with a small bonus for answers that cite statute structure. Sentinel
// answers always score zero.
type Heuristic struct {
	// SectionBonus is added when the answer cites a structural reference.
	SectionBonus float64
}

// NewHeuristic returns the default policy.
func NewHeuristic() Heuristic {
	return Heuristic{SectionBonus: 0.05}
}

func (h Heuristic) Score(answerText string, confidence float64, guidance string) float64 {
	if model.IsSentinel(answerText) {
		return 0
	}
	score := confidence / 100
	if model.ReferencesSection(answerText) {
		score += h.SectionBonus
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Summary holds the normalized aggregate over a record's answers.
type Summary struct {
	AggregateScore    float64
	AverageConfidence float64
	QuestionsAnswered int
	TotalQuestions    int
}

// Normalize computes the weighted aggregate score over catalog questions
// present in the answer set. Weight defaults to 1. QuestionsAnswered counts
// answers that found something: non-sentinel and non-errored.
func Normalize(answers []model.AnswerRecord, catalog []model.Question) Summary {
	questions := model.QuestionsByID(catalog)

	s := Summary{TotalQuestions: len(catalog)}
	var weightedSum, weightTotal, confidenceSum float64
	scored := 0
	for _, a := range answers {
		q, ok := questions[a.QuestionID]
		if !ok {
			continue
		}
		w := q.EffectiveWeight()
		weightedSum += clamp01(a.Score) * w
		weightTotal += w
		confidenceSum += a.Confidence
		scored++
		if a.Error == "" && !model.IsSentinel(a.AnswerText) {
			s.QuestionsAnswered++
		}
	}

	if weightTotal > 0 {
		s.AggregateScore = weightedSum / weightTotal
	}
	if scored > 0 {
		s.AverageConfidence = confidenceSum / float64(scored)
	}
	return s
}

// ApplyGaps sets or clears gap commentary so that a gap is present exactly
// when the score is below the near-perfect threshold. Returns new records;
// the input is not mutated.
func ApplyGaps(answers []model.AnswerRecord, catalog []model.Question) []model.AnswerRecord {
	questions := model.QuestionsByID(catalog)

	out := make([]model.AnswerRecord, len(answers))
	for i, a := range answers {
		if a.Score >= NearPerfectThreshold {
			a.Gap = ""
		} else {
			a.Gap = gapComment(questions[a.QuestionID], a)
		}
		out[i] = a
	}
	return out
}

// gapComment produces deterministic operator-facing commentary for a
// below-threshold answer.
func gapComment(q model.Question, a model.AnswerRecord) string {
	switch {
	case a.Error != "":
		return fmt.Sprintf("analysis failed: %s", a.Error)
	case model.IsSentinel(a.AnswerText):
		return fmt.Sprintf("no provision found addressing: %s", q.Text)
	case a.DefersToState:
		return fmt.Sprintf("defers to state law (score %.2f): %s", a.Score, q.Text)
	default:
		return fmt.Sprintf("partial coverage (score %.2f): %s", a.Score, q.Text)
	}
}

// ComputeGrades derives letter grades from the answer set: one overall grade
// from the weighted aggregate, plus one per question category.
func ComputeGrades(answers []model.AnswerRecord, catalog []model.Question) *model.Grades {
	if len(answers) == 0 {
		return nil
	}
	overall := Normalize(answers, catalog)
	grades := &model.Grades{Overall: model.LetterGrade(overall.AggregateScore)}

	categories := make(map[string][]model.Question)
	for _, q := range catalog {
		if q.Category == "" {
			continue
		}
		categories[q.Category] = append(categories[q.Category], q)
	}
	if len(categories) == 0 {
		return grades
	}

	answered := model.AnswersByID(answers)
	grades.ByCategory = make(map[string]string, len(categories))
	for cat, qs := range categories {
		present := false
		for _, q := range qs {
			if _, ok := answered[q.ID]; ok {
				present = true
				break
			}
		}
		if !present {
			continue
		}
		sub := Normalize(answers, qs)
		grades.ByCategory[cat] = model.LetterGrade(sub.AggregateScore)
	}
	if len(grades.ByCategory) == 0 {
		grades.ByCategory = nil
	}
	return grades
}
