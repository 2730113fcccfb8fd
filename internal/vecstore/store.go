// Package vecstore provides the similarity index for retrieval-mode
// analysis: keyed upsert of embedded document chunks and metadata-filtered
// nearest-neighbor search. Two backends exist, SQLite (default, brute-force
// cosine over the filtered rows) and Postgres, selected by config.
package vecstore

import (
	"context"

	"github.com/JGarfunkel/ordinizer-sub000/internal/model"
)

// Filter restricts a search to one document's chunks.
type Filter struct {
	JurisdictionID string
	DomainID       string
	DocumentType   model.DocumentType
}

// ScoredChunk is a stored chunk with its cosine similarity to the query.
type ScoredChunk struct {
	model.DocumentChunk
	Similarity float32
}

// Store is the similarity index. Upserts are last-write-wins per
// {jurisdiction, domain, document type, chunk index}; re-indexing a document
// deletes its previous chunks first so counts can shrink.
type Store interface {
	Upsert(ctx context.Context, chunks []model.DocumentChunk) error
	DeleteDocument(ctx context.Context, jurisdictionID, domainID string, docType model.DocumentType) error
	Search(ctx context.Context, vector []float32, filter Filter, topK int) ([]ScoredChunk, error)
	CountDocument(ctx context.Context, jurisdictionID, domainID string, docType model.DocumentType) (int, error)
	Migrate(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Open selects a backend by driver name ("sqlite" or "postgres") and runs
// migrations.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case "postgres":
		s, err = NewPostgres(ctx, dsn)
	default:
		s, err = NewSQLite(dsn)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
