package analyzer

import (
	"context"
	"fmt"

	"github.com/JGarfunkel/ordinizer-sub000/internal/model"
	"github.com/JGarfunkel/ordinizer-sub000/pkg/anthropic"
)

// analyzeConversation runs one multi-turn exchange: the document goes into a
// cached system block once, then every pending question is asked in sequence
// within that context, amortizing the document's token cost across
// questions. A failed turn records its question and the conversation moves
// on without the failed exchange in the transcript.
func (a *Analyzer) analyzeConversation(ctx context.Context, doc Document, pending []model.Question) ([]model.AnswerRecord, error) {
	system := anthropic.BuildCachedSystemBlocks(
		fmt.Sprintf(conversationSystem, doc.Type, doc.JurisdictionID, doc.Text))

	var transcript []anthropic.Message
	answers := make([]model.AnswerRecord, 0, len(pending))
	for _, q := range pending {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		turn := anthropic.Message{
			Role:    "user",
			Content: fmt.Sprintf(conversationTurn, q.Text, guidanceLine(q)),
		}
		resp, err := a.call(ctx, anthropic.MessageRequest{
			Model:     a.cfg.Model,
			MaxTokens: a.cfg.MaxTokens,
			System:    system,
			Messages:  append(append([]anthropic.Message{}, transcript...), turn),
		}, "conversation")
		if err != nil {
			answers = append(answers, a.failedAnswer(q, err))
			continue
		}

		raw := resp.FirstText()
		transcript = append(transcript, turn, anthropic.Message{Role: "assistant", Content: raw})
		answers = append(answers, a.buildAnswer(q, parseAnswer(raw)))
	}
	return answers, nil
}
