package vecstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/JGarfunkel/ordinizer-sub000/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses, so unit tests can
// substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool. Embeddings are stored as
// bytea and similarity is computed in-process, same as the SQLite backend.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "vecstore: parse postgres config")
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "vecstore: connect postgres")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS document_chunks (
	jurisdiction_id TEXT NOT NULL,
	domain_id       TEXT NOT NULL,
	document_type   TEXT NOT NULL,
	chunk_index     INTEGER NOT NULL,
	text            TEXT NOT NULL,
	embedding       BYTEA NOT NULL,
	indexed_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (jurisdiction_id, domain_id, document_type, chunk_index)
)`

// Migrate creates the chunk table if needed. Idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "vecstore: postgres migrate")
	}
	return nil
}

// Upsert writes chunks keyed by {jurisdiction, domain, type, index} in a
// single transaction.
func (s *PostgresStore) Upsert(ctx context.Context, chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "vecstore: begin upsert")
	}
	defer tx.Rollback(ctx)

	const upsert = `
		INSERT INTO document_chunks (jurisdiction_id, domain_id, document_type, chunk_index, text, embedding, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (jurisdiction_id, domain_id, document_type, chunk_index)
		DO UPDATE SET text = EXCLUDED.text, embedding = EXCLUDED.embedding, indexed_at = now()`
	for _, c := range chunks {
		blob := encodeFloat32s(c.Embedding)
		if _, err := tx.Exec(ctx, upsert, c.JurisdictionID, c.DomainID, string(c.DocumentType), c.ChunkIndex, c.Text, blob); err != nil {
			return eris.Wrapf(err, "vecstore: upsert chunk %s/%s/%s[%d]", c.JurisdictionID, c.DomainID, c.DocumentType, c.ChunkIndex)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "vecstore: commit upsert")
	}
	return nil
}

// DeleteDocument removes every chunk for one document key.
func (s *PostgresStore) DeleteDocument(ctx context.Context, jurisdictionID, domainID string, docType model.DocumentType) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM document_chunks WHERE jurisdiction_id = $1 AND domain_id = $2 AND document_type = $3`,
		jurisdictionID, domainID, string(docType))
	if err != nil {
		return eris.Wrapf(err, "vecstore: delete document %s/%s/%s", jurisdictionID, domainID, docType)
	}
	return nil
}

// Search scans the filtered chunks and returns the topK most similar.
func (s *PostgresStore) Search(ctx context.Context, vector []float32, filter Filter, topK int) ([]ScoredChunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT jurisdiction_id, domain_id, document_type, chunk_index, text, embedding
		FROM document_chunks
		WHERE jurisdiction_id = $1 AND domain_id = $2 AND document_type = $3`,
		filter.JurisdictionID, filter.DomainID, string(filter.DocumentType))
	if err != nil {
		return nil, eris.Wrap(err, "vecstore: search query")
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		var c model.DocumentChunk
		var docType string
		var blob []byte
		if err := rows.Scan(&c.JurisdictionID, &c.DomainID, &docType, &c.ChunkIndex, &c.Text, &blob); err != nil {
			return nil, eris.Wrap(err, "vecstore: scan chunk")
		}
		c.DocumentType = model.DocumentType(docType)
		embedding, err := decodeFloat32s(blob)
		if err != nil {
			return nil, eris.Wrapf(err, "vecstore: chunk %d", c.ChunkIndex)
		}
		c.Embedding = embedding
		results = insertTopK(results, ScoredChunk{DocumentChunk: c, Similarity: cosine(vector, embedding)}, topK)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "vecstore: iterate chunks")
	}
	return results, nil
}

// CountDocument returns the number of stored chunks for one document key.
func (s *PostgresStore) CountDocument(ctx context.Context, jurisdictionID, domainID string, docType model.DocumentType) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE jurisdiction_id = $1 AND domain_id = $2 AND document_type = $3`,
		jurisdictionID, domainID, string(docType)).Scan(&count)
	if err != nil {
		return 0, eris.Wrap(err, "vecstore: count document")
	}
	return count, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
