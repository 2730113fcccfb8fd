// Package orchestrator drives a full analysis run: for every domain and
// jurisdiction it loads the document, catalog and existing record, plans
// the work, executes the selected strategy, scores the merged answers and
// persists a new record version. Jurisdictions are processed strictly
// sequentially; the rate budget manager is the only shared state.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/JGarfunkel/ordinizer-sub000/internal/analyzer"
	"github.com/JGarfunkel/ordinizer-sub000/internal/budget"
	"github.com/JGarfunkel/ordinizer-sub000/internal/docstore"
	"github.com/JGarfunkel/ordinizer-sub000/internal/model"
	"github.com/JGarfunkel/ordinizer-sub000/internal/planner"
	"github.com/JGarfunkel/ordinizer-sub000/internal/scoring"
)

// Analyzer answers pending questions against one document.
type Analyzer interface {
	Analyze(ctx context.Context, doc analyzer.Document, pending []model.Question, kept []model.AnswerRecord) ([]model.AnswerRecord, model.ProcessingMethod, error)
}

// Indexer rebuilds a document's similarity index on demand.
type Indexer interface {
	Index(ctx context.Context, documentText, jurisdictionID, domainID string, docType model.DocumentType) (int, error)
}

// Config holds run-level tunables.
type Config struct {
	// JurisdictionPause is the fixed pause between jurisdictions,
	// applied only after at least one model call was made.
	JurisdictionPause time.Duration `yaml:"jurisdiction_pause" mapstructure:"jurisdiction_pause"`
}

// Options narrows and adjusts one run.
type Options struct {
	DomainID       string
	JurisdictionID string
	Force          bool
	QuestionID     string
	Reindex        bool
}

// Summary reports what a run did.
type Summary struct {
	RunID      string
	Analyzed   int
	Skipped    int
	Failed     int
	ModelCalls int
	Duration   time.Duration
}

// Orchestrator wires the pipeline together.
type Orchestrator struct {
	store    *docstore.Store
	analyzer Analyzer
	indexer  Indexer
	budget   *budget.Manager
	cfg      Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(store *docstore.Store, az Analyzer, ix Indexer, bm *budget.Manager, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:    store,
		analyzer: az,
		indexer:  ix,
		budget:   bm,
		cfg:      cfg,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run walks every selected domain and jurisdiction. Per-jurisdiction
// failures are logged and counted, never fatal; only context
// cancellation aborts the run.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Summary, error) {
	start := o.now()
	summary := &Summary{RunID: uuid.NewString()}
	zap.L().Info("orchestrator: run starting",
		zap.String("run_id", summary.RunID),
		zap.String("domain", opts.DomainID),
		zap.String("jurisdiction", opts.JurisdictionID),
		zap.Bool("force", opts.Force),
	)

	domains, err := o.selectDomains(opts)
	if err != nil {
		return nil, err
	}

	for _, domainID := range domains {
		catalog, err := o.store.Catalog(domainID)
		if err != nil {
			zap.L().Error("orchestrator: catalog unavailable, skipping domain",
				zap.String("domain", domainID), zap.Error(err))
			summary.Failed++
			continue
		}

		jurisdictions, err := o.selectJurisdictions(domainID, opts)
		if err != nil {
			zap.L().Error("orchestrator: jurisdiction listing failed, skipping domain",
				zap.String("domain", domainID), zap.Error(err))
			summary.Failed++
			continue
		}

		for _, jurisdictionID := range jurisdictions {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}

			o.budget.ResetCalls()
			analyzed, err := o.processJurisdiction(ctx, domainID, jurisdictionID, catalog, opts)
			calls := o.budget.Calls()
			summary.ModelCalls += calls

			switch {
			case err != nil && ctx.Err() != nil:
				return summary, ctx.Err()
			case err != nil:
				summary.Failed++
				zap.L().Error("orchestrator: jurisdiction failed",
					zap.String("domain", domainID),
					zap.String("jurisdiction", jurisdictionID),
					zap.Error(err))
			case analyzed:
				summary.Analyzed++
			default:
				summary.Skipped++
			}

			// Pure skips must not incur the pacing delay.
			if calls > 0 {
				if err := o.sleep(ctx, o.cfg.JurisdictionPause); err != nil {
					return summary, err
				}
			}
		}
	}

	summary.Duration = o.now().Sub(start)
	zap.L().Info("orchestrator: run complete",
		zap.String("run_id", summary.RunID),
		zap.Int("analyzed", summary.Analyzed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("model_calls", summary.ModelCalls),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (o *Orchestrator) selectDomains(opts Options) ([]string, error) {
	if opts.DomainID != "" {
		return []string{opts.DomainID}, nil
	}
	return o.store.Domains()
}

func (o *Orchestrator) selectJurisdictions(domainID string, opts Options) ([]string, error) {
	if opts.JurisdictionID != "" {
		return []string{opts.JurisdictionID}, nil
	}
	return o.store.Jurisdictions(domainID)
}

// processJurisdiction runs the pipeline for one jurisdiction. Returns
// true when a new record was written.
func (o *Orchestrator) processJurisdiction(ctx context.Context, domainID, jurisdictionID string, catalog []model.Question, opts Options) (bool, error) {
	doc, err := o.store.FindDocument(domainID, jurisdictionID)
	if err != nil {
		return false, err
	}
	if doc == nil {
		zap.L().Warn("orchestrator: no document, skipping",
			zap.String("domain", domainID),
			zap.String("jurisdiction", jurisdictionID))
		return false, nil
	}

	existing, prior := o.freshAnswers(domainID, jurisdictionID, doc)
	plan := planner.Build(catalog, existing, planner.Options{
		Force:            opts.Force,
		TargetQuestionID: opts.QuestionID,
	})

	if plan.Empty() && !opts.Reindex {
		zap.L().Debug("orchestrator: nothing to do",
			zap.String("domain", domainID),
			zap.String("jurisdiction", jurisdictionID))
		return false, nil
	}

	if opts.Reindex {
		if _, err := o.indexer.Index(ctx, doc.Text, jurisdictionID, domainID, doc.Type); err != nil {
			return false, eris.Wrap(err, "orchestrator: reindex")
		}
		if plan.Empty() {
			// Index refresh only; the record is untouched.
			return false, nil
		}
	}

	answers := plan.ToKeep
	method := priorMethod(prior)
	if len(plan.ToAnalyze) > 0 {
		fresh, m, err := o.analyzer.Analyze(ctx, analyzer.Document{
			JurisdictionID: jurisdictionID,
			DomainID:       domainID,
			Type:           doc.Type,
			Text:           doc.Text,
			// No usable prior answers means the document text may have
			// moved under any stored chunks.
			Changed: existing == nil,
		}, plan.ToAnalyze, plan.ToKeep)
		if err != nil {
			return false, err
		}
		answers = mergeAnswers(catalog, plan.ToKeep, fresh)
		method = m
	}

	rec := o.assembleRecord(domainID, jurisdictionID, catalog, answers, method)
	if err := o.store.WriteRecord(domainID, jurisdictionID, rec); err != nil {
		return false, err
	}

	zap.L().Info("orchestrator: record written",
		zap.String("domain", domainID),
		zap.String("jurisdiction", jurisdictionID),
		zap.Int("analyzed", len(plan.ToAnalyze)),
		zap.Int("kept", len(plan.ToKeep)),
		zap.Int("removed", len(plan.ToRemove)),
		zap.Float64("aggregate_score", rec.AggregateScore),
	)
	return true, nil
}

// freshAnswers returns the existing answers usable as plan input. A
// missing or unreadable record, or a document newer than the record,
// invalidates everything: every question is treated as new.
func (o *Orchestrator) freshAnswers(domainID, jurisdictionID string, doc *docstore.Document) ([]model.AnswerRecord, *model.AnalysisRecord) {
	rec, err := o.store.Record(domainID, jurisdictionID)
	if err != nil {
		zap.L().Warn("orchestrator: unreadable record treated as absent",
			zap.String("domain", domainID),
			zap.String("jurisdiction", jurisdictionID),
			zap.Error(err))
		return nil, nil
	}
	if rec == nil {
		return nil, nil
	}

	recMT, err := o.store.RecordModTime(domainID, jurisdictionID)
	if err == nil && doc.ModTime.After(recMT) {
		zap.L().Info("orchestrator: document newer than record, full re-analysis",
			zap.String("domain", domainID),
			zap.String("jurisdiction", jurisdictionID),
			zap.Time("document", doc.ModTime),
			zap.Time("record", recMT))
		return nil, rec
	}
	return rec.Questions, rec
}

func (o *Orchestrator) assembleRecord(domainID, jurisdictionID string, catalog []model.Question, answers []model.AnswerRecord, method model.ProcessingMethod) *model.AnalysisRecord {
	answers = scoring.ApplyGaps(answers, catalog)
	sum := scoring.Normalize(answers, catalog)

	return &model.AnalysisRecord{
		JurisdictionID:    jurisdictionID,
		DomainID:          domainID,
		Questions:         answers,
		AggregateScore:    sum.AggregateScore,
		AverageConfidence: sum.AverageConfidence,
		QuestionsAnswered: sum.QuestionsAnswered,
		TotalQuestions:    sum.TotalQuestions,
		ProcessingMethod:  method,
		LastUpdated:       o.now(),
		Grades:            scoring.ComputeGrades(answers, catalog),
	}
}

// mergeAnswers combines kept and fresh answers in catalog order. Answers
// for questions no longer in the catalog fall away here.
func mergeAnswers(catalog []model.Question, kept, fresh []model.AnswerRecord) []model.AnswerRecord {
	byID := model.AnswersByID(kept)
	for _, a := range fresh {
		byID[a.QuestionID] = a
	}

	out := make([]model.AnswerRecord, 0, len(catalog))
	for _, q := range catalog {
		if a, ok := byID[q.ID]; ok {
			out = append(out, a)
		}
	}
	return out
}

func priorMethod(rec *model.AnalysisRecord) model.ProcessingMethod {
	if rec == nil {
		return ""
	}
	return rec.ProcessingMethod
}
