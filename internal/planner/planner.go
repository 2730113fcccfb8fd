// Package planner decides which catalog questions need (re-)analysis for a
// jurisdiction by diffing the current catalog against previously stored
// answers. It is a pure function of its inputs; file-level freshness checks
// live upstream in the orchestrator.
package planner

import (
	"github.com/JGarfunkel/ordinizer-sub000/internal/model"
)

// Options adjusts plan construction. Force re-analyzes every question unless
// a single target is set; TargetQuestionID narrows analysis to one question
// and keeps every other existing answer untouched, even under Force.
type Options struct {
	Force            bool
	TargetQuestionID string
}

// Plan partitions the catalog into work and non-work. ToRemove holds
// existing answers whose question no longer exists in the catalog; they are
// never retained in the persisted record.
type Plan struct {
	ToAnalyze []model.Question
	ToKeep    []model.AnswerRecord
	ToRemove  []model.AnswerRecord
}

// Empty reports whether the plan requires no analysis and no removals.
func (p Plan) Empty() bool {
	return len(p.ToAnalyze) == 0 && len(p.ToRemove) == 0
}

// Build diffs catalog questions against existing answers.
//
// A question lands in ToAnalyze when it has no existing answer, when its
// text drifted from the text recorded at analysis time, when it is the
// explicit target, or when Force is set without a target. Everything else
// keeps its existing answer.
func Build(catalog []model.Question, existing []model.AnswerRecord, opts Options) Plan {
	answers := model.AnswersByID(existing)
	questions := model.QuestionsByID(catalog)

	var plan Plan
	for _, q := range catalog {
		if opts.TargetQuestionID != "" && q.ID != opts.TargetQuestionID {
			if a, ok := answers[q.ID]; ok {
				plan.ToKeep = append(plan.ToKeep, a)
			}
			continue
		}

		a, ok := answers[q.ID]
		switch {
		case !ok:
			plan.ToAnalyze = append(plan.ToAnalyze, q)
		case a.QuestionText != q.Text:
			// Text drift invalidates a cached answer even without Force.
			plan.ToAnalyze = append(plan.ToAnalyze, q)
		case q.ID == opts.TargetQuestionID:
			plan.ToAnalyze = append(plan.ToAnalyze, q)
		case opts.Force:
			plan.ToAnalyze = append(plan.ToAnalyze, q)
		default:
			plan.ToKeep = append(plan.ToKeep, a)
		}
	}

	for _, a := range existing {
		if _, ok := questions[a.QuestionID]; !ok {
			plan.ToRemove = append(plan.ToRemove, a)
		}
	}

	return plan
}
