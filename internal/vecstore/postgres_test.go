package vecstore

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JGarfunkel/ordinizer-sub000/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return &PostgresStore{pool: mock}, mock
}

func TestPostgres_UpsertTransaction(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO document_chunks`).
		WithArgs("rye", "trees", "statute", 0, "text", encodeFloat32s([]float32{1, 0})).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	err := s.Upsert(context.Background(), []model.DocumentChunk{{
		JurisdictionID: "rye",
		DomainID:       "trees",
		DocumentType:   model.DocumentStatute,
		ChunkIndex:     0,
		Text:           "text",
		Embedding:      []float32{1, 0},
	}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteDocument(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM document_chunks WHERE jurisdiction_id = \$1`).
		WithArgs("rye", "trees", "statute").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	err := s.DeleteDocument(context.Background(), "rye", "trees", model.DocumentStatute)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SearchRanksByCosine(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"jurisdiction_id", "domain_id", "document_type", "chunk_index", "text", "embedding"}).
		AddRow("rye", "trees", "statute", 0, "far", encodeFloat32s([]float32{0, 1})).
		AddRow("rye", "trees", "statute", 1, "near", encodeFloat32s([]float32{1, 0}))
	mock.ExpectQuery(`SELECT jurisdiction_id, domain_id, document_type, chunk_index, text, embedding`).
		WithArgs("rye", "trees", "statute").
		WillReturnRows(rows)

	results, err := s.Search(context.Background(), []float32{1, 0}, Filter{
		JurisdictionID: "rye", DomainID: "trees", DocumentType: model.DocumentStatute,
	}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "near", results[0].Text)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CountDocument(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM document_chunks`).
		WithArgs("rye", "trees", "statute").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.CountDocument(context.Background(), "rye", "trees", model.DocumentStatute)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
