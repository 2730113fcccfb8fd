package vecstore

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/JGarfunkel/ordinizer-sub000/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite with brute-force
// cosine similarity over the metadata-filtered rows. Document corpora here
// are a few hundred chunks per jurisdiction at most, so a sequential scan of
// the filtered set is plenty.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite similarity index at the given path and configures
// WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "vecstore: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "vecstore: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS document_chunks (
	jurisdiction_id TEXT NOT NULL,
	domain_id       TEXT NOT NULL,
	document_type   TEXT NOT NULL,
	chunk_index     INTEGER NOT NULL,
	text            TEXT NOT NULL,
	embedding       BLOB NOT NULL,
	indexed_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (jurisdiction_id, domain_id, document_type, chunk_index)
);
`

// Migrate creates the chunk table if needed. Idempotent.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "vecstore: sqlite migrate")
	}
	return nil
}

// Upsert writes chunks keyed by {jurisdiction, domain, type, index},
// overwriting any prior chunk at the same key.
func (s *SQLiteStore) Upsert(ctx context.Context, chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "vecstore: begin upsert")
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_chunks (jurisdiction_id, domain_id, document_type, chunk_index, text, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (jurisdiction_id, domain_id, document_type, chunk_index)
		DO UPDATE SET text = excluded.text, embedding = excluded.embedding, indexed_at = datetime('now')`)
	if err != nil {
		tx.Rollback()
		return eris.Wrap(err, "vecstore: prepare upsert")
	}
	defer stmt.Close()

	for _, c := range chunks {
		blob := encodeFloat32s(c.Embedding)
		if _, err := stmt.ExecContext(ctx, c.JurisdictionID, c.DomainID, string(c.DocumentType), c.ChunkIndex, c.Text, blob); err != nil {
			tx.Rollback()
			return eris.Wrapf(err, "vecstore: upsert chunk %s/%s/%s[%d]", c.JurisdictionID, c.DomainID, c.DocumentType, c.ChunkIndex)
		}
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "vecstore: commit upsert")
	}
	return nil
}

// DeleteDocument removes every chunk for one document key.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, jurisdictionID, domainID string, docType model.DocumentType) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE jurisdiction_id = ? AND domain_id = ? AND document_type = ?`,
		jurisdictionID, domainID, string(docType))
	if err != nil {
		return eris.Wrapf(err, "vecstore: delete document %s/%s/%s", jurisdictionID, domainID, docType)
	}
	return nil
}

// Search scans the filtered chunks and returns the topK most similar.
func (s *SQLiteStore) Search(ctx context.Context, vector []float32, filter Filter, topK int) ([]ScoredChunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT jurisdiction_id, domain_id, document_type, chunk_index, text, embedding
		FROM document_chunks
		WHERE jurisdiction_id = ? AND domain_id = ? AND document_type = ?`,
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
func (s *SQLiteStore) CountDocument(ctx context.Context, jurisdictionID, domainID string, docType model.DocumentType) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE jurisdiction_id = ? AND domain_id = ? AND document_type = ?`,
		jurisdictionID, domainID, string(docType)).Scan(&count)
	if err != nil {
		return 0, eris.Wrap(err, "vecstore: count document")
	}
	return count, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
