// Package analyzer selects an analysis strategy per document and executes
// it: direct one-call-per-question for short documents, a multi-turn
// conversation amortizing the document's tokens for mid-size ones, and
// retrieval-augmented per-question lookup for everything else.
package analyzer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/JGarfunkel/ordinizer-sub000/internal/budget"
	"github.com/JGarfunkel/ordinizer-sub000/internal/indexer"
	"github.com/JGarfunkel/ordinizer-sub000/internal/model"
	"github.com/JGarfunkel/ordinizer-sub000/internal/resilience"
	"github.com/JGarfunkel/ordinizer-sub000/internal/scoring"
	"github.com/JGarfunkel/ordinizer-sub000/internal/vecstore"
	"github.com/JGarfunkel/ordinizer-sub000/pkg/anthropic"
	"github.com/JGarfunkel/ordinizer-sub000/pkg/jina"
)

// Config holds strategy thresholds and model settings.
type Config struct {
	Model                string                       `yaml:"model" mapstructure:"model"`
	EmbedModel           string                       `yaml:"embed_model" mapstructure:"embed_model"`
	MaxTokens            int64                        `yaml:"max_tokens" mapstructure:"max_tokens"`
	ShortDocWords        int                          `yaml:"short_doc_words" mapstructure:"short_doc_words"`
	ConversationMaxChars int                          `yaml:"conversation_max_chars" mapstructure:"conversation_max_chars"`
	RetrievalTopK        int                          `yaml:"retrieval_top_k" mapstructure:"retrieval_top_k"`
	FoundConfidence      float64                      `yaml:"found_confidence" mapstructure:"found_confidence"`
	CitedConfidence      float64                      `yaml:"cited_confidence" mapstructure:"cited_confidence"`
	Pricing              map[string]anthropic.Pricing `yaml:"pricing" mapstructure:"pricing"`
}

func (c Config) withDefaults() Config {
	if c.EmbedModel == "" {
		c.EmbedModel = "jina-embeddings-v3"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.ShortDocWords == 0 {
		c.ShortDocWords = 1000
	}
	if c.ConversationMaxChars == 0 {
		c.ConversationMaxChars = 50_000
	}
	if c.RetrievalTopK == 0 {
		c.RetrievalTopK = 4
	}
	if c.FoundConfidence == 0 {
		c.FoundConfidence = 80
	}
	if c.CitedConfidence == 0 {
		c.CitedConfidence = 90
	}
	return c
}

// Document is the source text under analysis. Changed marks a document
// whose text is newer than the last analysis record, so any stored chunks
// for it are stale.
type Document struct {
	JurisdictionID string
	DomainID       string
	Type           model.DocumentType
	Text           string
	Changed        bool
}

// Breaker names: completion and embedding outages are tracked separately
// so one provider going down never blocks the other.
const (
	completionService = "completion"
	embeddingService  = "embedding"
)

// Analyzer runs the selected strategy against the LLM and embedding
// collaborators, consulting the rate budget before every model call.
type Analyzer struct {
	llm      anthropic.Client
	embedder jina.Client
	vec      vecstore.Store
	indexer  *indexer.Indexer
	budget   *budget.Manager
	policy   scoring.Policy
	breakers *resilience.ServiceBreakers
	cfg      Config

	now func() time.Time
}

// New creates an Analyzer. A nil policy falls back to the default heuristic.
func New(llm anthropic.Client, embedder jina.Client, vec vecstore.Store, ix *indexer.Indexer, bm *budget.Manager, policy scoring.Policy, cfg Config) *Analyzer {
	if policy == nil {
		policy = scoring.NewHeuristic()
	}
	return &Analyzer{
		llm:      llm,
		embedder: embedder,
		vec:      vec,
		indexer:  ix,
		budget:   bm,
		policy:   policy,
		breakers: resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// SelectMethod applies the strategy selection rule in order: word count
// below the short-document threshold wins, then serialized size under the
// conversation ceiling with more than one pending question, then retrieval.
func (a *Analyzer) SelectMethod(doc Document, pendingCount int) model.ProcessingMethod {
	if len(strings.Fields(doc.Text)) < a.cfg.ShortDocWords {
		return model.MethodDirect
	}
	if len(doc.Text) < a.cfg.ConversationMaxChars && pendingCount > 1 {
		return model.MethodConversation
	}
	return model.MethodRetrieval
}

// Analyze answers the pending questions against the document. Per-question
// provider failures are recorded on the answer, never propagated; the only
// error returns are context cancellation and empty input.
func (a *Analyzer) Analyze(ctx context.Context, doc Document, pending []model.Question, kept []model.AnswerRecord) ([]model.AnswerRecord, model.ProcessingMethod, error) {
	if len(pending) == 0 {
		return nil, "", eris.New("analyzer: no questions to analyze")
	}

	method := a.SelectMethod(doc, len(pending))
	zap.L().Info("analyzer: strategy selected",
		zap.String("jurisdiction", doc.JurisdictionID),
		zap.String("domain", doc.DomainID),
		zap.String("method", string(method)),
		zap.Int("pending", len(pending)),
		zap.Int("document_chars", len(doc.Text)),
	)

	var (
		answers []model.AnswerRecord
		err     error
	)
	switch method {
	case model.MethodDirect:
		answers, err = a.analyzeDirect(ctx, doc, pending)
	case model.MethodConversation:
		answers, err = a.analyzeConversation(ctx, doc, pending)
	default:
		answers, err = a.analyzeRetrieval(ctx, doc, pending, kept)
	}
	if err != nil {
		return nil, method, err
	}
	return answers, method, nil
}

// call reserves budget, executes one model call with retries on transient
// provider errors, and records actual token usage.
func (a *Analyzer) call(ctx context.Context, req anthropic.MessageRequest, phase string) (*anthropic.MessageResponse, error) {
	est := a.estimateRequest(req)
	if err := a.budget.Reserve(ctx, req.Model, est); err != nil {
		return nil, err
	}

	// Repeated provider outages open the breaker, failing remaining
	// questions fast instead of retrying each one.
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", phase)
	var resp *anthropic.MessageResponse
	err := a.breakers.Get(completionService).Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, retry, func(ctx context.Context) error {
			var callErr error
			resp, callErr = a.llm.CreateMessage(ctx, req)
			return callErr
		})
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			// The failed attempt still consumed the wire; count the
			// estimate. A rejected call never left the process, so it
			// must not count toward pacing.
			a.budget.Record(req.Model, est)
		}
		return nil, err
	}

	actual := resp.Usage.Total()
	if actual == 0 {
		actual = est
	}
	a.budget.Record(req.Model, actual)
	resp.Usage.LogCost(req.Model, phase, a.cfg.Pricing)
	return resp, nil
}

// estimateRequest sums a conservative token estimate over every block of
// the request plus the response allowance.
func (a *Analyzer) estimateRequest(req anthropic.MessageRequest) int {
	est := int(req.MaxTokens)
	for _, b := range req.System {
		est += budget.EstimateTokens(b.Text)
	}
	for _, m := range req.Messages {
		est += budget.EstimateTokens(m.Content)
	}
	return est
}

// buildAnswer converts a parsed model response into an AnswerRecord with
// heuristic confidence: a found answer starts at the base confidence and is
// raised when it cites document structure; the sentinel floors at zero.
func (a *Analyzer) buildAnswer(q model.Question, parsed modelAnswer) model.AnswerRecord {
	answer := strings.TrimSpace(parsed.Answer)
	if answer == "" {
		answer = model.SentinelAnswer
	}

	var confidence float64
	switch {
	case model.IsSentinel(answer):
		confidence = 0
		answer = model.SentinelAnswer
	case model.ReferencesSection(answer) || len(parsed.Sources) > 0:
		confidence = a.cfg.CitedConfidence
	default:
		confidence = a.cfg.FoundConfidence
	}

	refs := parsed.Sources
	if len(refs) == 0 {
		refs = model.ExtractSectionRefs(answer)
	}

	return model.AnswerRecord{
		QuestionID:    q.ID,
		QuestionText:  q.Text,
		AnswerText:    answer,
		Confidence:    confidence,
		SourceRefs:    refs,
		Score:         a.policy.Score(answer, confidence, q.ScoringGuidance),
		AnalyzedAt:    a.now(),
		DefersToState: model.DefersToStateCode(answer),
	}
}

// failedAnswer records a per-question provider failure as a sentinel answer
// with the error attached. Failure never aborts the batch.
func (a *Analyzer) failedAnswer(q model.Question, err error) model.AnswerRecord {
	zap.L().Warn("analyzer: question failed",
		zap.String("question_id", q.ID),
		zap.Error(err),
	)
	return model.AnswerRecord{
		QuestionID:   q.ID,
		QuestionText: q.Text,
		AnswerText:   model.SentinelAnswer,
		Confidence:   0,
		Score:        0,
		AnalyzedAt:   a.now(),
		Error:        err.Error(),
	}
}

// guidanceLine formats per-question scoring guidance for prompt injection.
func guidanceLine(q model.Question) string {
	if q.ScoringGuidance == "" {
		return ""
	}
	return "Guidance: " + q.ScoringGuidance + "\n"
}
