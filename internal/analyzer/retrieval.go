package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JGarfunkel/ordinizer-sub000/internal/budget"
	"github.com/JGarfunkel/ordinizer-sub000/internal/model"
	"github.com/JGarfunkel/ordinizer-sub000/internal/resilience"
	"github.com/JGarfunkel/ordinizer-sub000/internal/vecstore"
	"github.com/JGarfunkel/ordinizer-sub000/pkg/anthropic"
	"github.com/JGarfunkel/ordinizer-sub000/pkg/jina"
)

// keptSummaryChars bounds each "do not repeat" hint injected into retrieval
// prompts.
const keptSummaryChars = 160

// analyzeRetrieval indexes the document when its chunks are missing or
// stale, then answers each question independently from its nearest chunks.
// When indexing itself fails, every pending question is recorded as failed
// and the batch still completes.
func (a *Analyzer) analyzeRetrieval(ctx context.Context, doc Document, pending []model.Question, kept []model.AnswerRecord) ([]model.AnswerRecord, error) {
	count, err := a.vec.CountDocument(ctx, doc.JurisdictionID, doc.DomainID, doc.Type)
	if err == nil && (count == 0 || doc.Changed) {
		// A changed document must be re-chunked before retrieval, or the
		// search would surface text the document no longer contains.
		_, err = a.indexer.Index(ctx, doc.Text, doc.JurisdictionID, doc.DomainID, doc.Type)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		answers := make([]model.AnswerRecord, 0, len(pending))
		for _, q := range pending {
			answers = append(answers, a.failedAnswer(q, err))
		}
		return answers, nil
	}

	hints := keptHints(kept)
	answers := make([]model.AnswerRecord, 0, len(pending))
	for _, q := range pending {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		excerpts, err := a.retrieveContext(ctx, doc, q)
		if err != nil {
			answers = append(answers, a.failedAnswer(q, err))
			continue
		}

		prompt := fmt.Sprintf(retrievalPrompt, doc.Type, doc.JurisdictionID, excerpts, hints, q.Text, guidanceLine(q))
		resp, err := a.call(ctx, anthropic.MessageRequest{
			Model:     a.cfg.Model,
			MaxTokens: a.cfg.MaxTokens,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		}, "retrieval")
		if err != nil {
			answers = append(answers, a.failedAnswer(q, err))
			continue
		}

		answers = append(answers, a.buildAnswer(q, parseAnswer(resp.FirstText())))
	}
	return answers, nil
}

// retrieveContext embeds the question and formats its nearest chunks.
func (a *Analyzer) retrieveContext(ctx context.Context, doc Document, q model.Question) (string, error) {
	est := budget.EstimateTokens(q.Text)
	if err := a.budget.Reserve(ctx, a.cfg.EmbedModel, est); err != nil {
		return "", err
	}
	var resp *jina.EmbedResponse
	err := a.breakers.Get(embeddingService).Execute(ctx, func(ctx context.Context) error {
		var embedErr error
		resp, embedErr = a.embedder.Embed(ctx, []string{q.Text})
		return embedErr
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			a.budget.Record(a.cfg.EmbedModel, est)
		}
		return "", err
	}
	actual := resp.Usage.TotalTokens
	if actual == 0 {
		actual = est
	}
	a.budget.Record(a.cfg.EmbedModel, actual)

	chunks, err := a.vec.Search(ctx, resp.Data[0].Embedding, vecstore.Filter{
		JurisdictionID: doc.JurisdictionID,
		DomainID:       doc.DomainID,
		DocumentType:   doc.Type,
	}, a.cfg.RetrievalTopK)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		zap.L().Warn("analyzer: no chunks retrieved",
			zap.String("jurisdiction", doc.JurisdictionID),
			zap.String("question_id", q.ID),
		)
	}

	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&b, "--- excerpt %d (similarity %.2f) ---\n%s\n\n", c.ChunkIndex, c.Similarity, c.Text)
	}
	return b.String(), nil
}

// keptHints summarizes already-kept answers as advisory "do not repeat"
// text. Best effort only: there is no enforced uniqueness across answers.
func keptHints(kept []model.AnswerRecord) string {
	var lines []string
	for _, k := range kept {
		if k.Error != "" || model.IsSentinel(k.AnswerText) {
			continue
		}
		summary := k.AnswerText
		if len(summary) > keptSummaryChars {
			cut := keptSummaryChars
			for cut > 0 && !utf8.RuneStart(summary[cut]) {
				cut--
			}
			summary = summary[:cut] + "…"
		}
		lines = append(lines, "- "+summary)
	}
	if len(lines) == 0 {
		return ""
	}
	return doNotRepeatHeader + strings.Join(lines, "\n") + "\n"
}
