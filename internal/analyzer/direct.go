package analyzer

import (
	"context"
	"fmt"

	"github.com/JGarfunkel/ordinizer-sub000/internal/model"
	"github.com/JGarfunkel/ordinizer-sub000/pkg/anthropic"
)

// analyzeDirect answers each question with its own model call carrying the
// entire document as context. Chosen for short documents, where re-sending
// the text per question is cheaper than the bookkeeping of the other modes.
func (a *Analyzer) analyzeDirect(ctx context.Context, doc Document, pending []model.Question) ([]model.AnswerRecord, error) {
	answers := make([]model.AnswerRecord, 0, len(pending))
	for _, q := range pending {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		prompt := fmt.Sprintf(directPrompt, doc.Type, doc.JurisdictionID, doc.Text, q.Text, guidanceLine(q))
		resp, err := a.call(ctx, anthropic.MessageRequest{
			Model:     a.cfg.Model,
			MaxTokens: a.cfg.MaxTokens,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		}, "direct")
		if err != nil {
			answers = append(answers, a.failedAnswer(q, err))
			continue
		}

		answers = append(answers, a.buildAnswer(q, parseAnswer(resp.FirstText())))
	}
	return answers, nil
}
