package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/JGarfunkel/ordinizer-sub000/internal/analyzer"
	"github.com/JGarfunkel/ordinizer-sub000/internal/budget"
	"github.com/JGarfunkel/ordinizer-sub000/internal/docstore"
	"github.com/JGarfunkel/ordinizer-sub000/internal/indexer"
	"github.com/JGarfunkel/ordinizer-sub000/internal/orchestrator"
	"github.com/JGarfunkel/ordinizer-sub000/internal/vecstore"
	"github.com/JGarfunkel/ordinizer-sub000/pkg/anthropic"
	"github.com/JGarfunkel/ordinizer-sub000/pkg/jina"
)

// env holds the wired pipeline collaborators for one command invocation.
type env struct {
	store        *docstore.Store
	vec          vecstore.Store
	indexer      *indexer.Indexer
	orchestrator *orchestrator.Orchestrator
}

func (e *env) Close() {
	if e.vec != nil {
		_ = e.vec.Close()
	}
}

// initEnv builds the full pipeline from configuration.
func initEnv(ctx context.Context) (*env, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic.key is required (ORDINIZER_ANTHROPIC_KEY)")
	}
	if cfg.Jina.Key == "" {
		return nil, eris.New("jina.key is required (ORDINIZER_JINA_KEY)")
	}

	vec, err := vecstore.Open(ctx, cfg.Vecstore.Driver, cfg.Vecstore.DSN)
	if err != nil {
		return nil, err
	}

	llm := anthropic.NewClient(cfg.Anthropic.Key)
	embedder := jina.NewClient(cfg.Jina.Key,
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithModel(cfg.Jina.Model),
		jina.WithRequestsPerSecond(cfg.Jina.RequestsPerSecond),
	)

	bm := budget.NewManager(cfg.Budget)
	ix := indexer.New(embedder, vec, bm, cfg.Indexer)
	az := analyzer.New(llm, embedder, vec, ix, bm, nil, cfg.Analyzer)
	store := docstore.New(cfg.Data.Root)

	return &env{
		store:        store,
		vec:          vec,
		indexer:      ix,
		orchestrator: orchestrator.New(store, az, ix, bm, cfg.Orchestrator),
	}, nil
}
