package vectorstore

import (
	"encoding/json"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holocron/internal/model"
)

// formatVector and scanResults are the pieces of the Postgres/pgvector
// backend testable without a live database: the former is pure, and
// the latter only needs a *sql.Rows, which go-sqlmock (already in the
// retrieved pack's jordigilh-kubernaut go.mod) can fake without a real
// connection, the same way the teacher stubs Qdrant with
// MockQdrantStore in qdrant_test.go.

func TestFormatVectorRendersPgvectorLiteral(t *testing.T) {
	got := formatVector([]float32{0.5, -1, 2.25})
	assert.Equal(t, "[0.5,-1,2.25]", got)
}

func TestFormatVectorEmptySlice(t *testing.T) {
	assert.Equal(t, "[]", formatVector(nil))
}

func TestScanResultsParsesRowsAndUnmarshalsMetadata(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	meta := model.ChunkMetadata{
		Title:        "Tatooine",
		Canonicity:   model.CanonicityCanon,
		ContentClass: model.ContentClassContent,
	}
	metaJSON, err := json.Marshal(meta)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "content", "metadata", "similarity"}).
		AddRow("chunk-1", "A desert planet.", metaJSON, 0.92)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	sqlRows, err := db.Query("SELECT id, content, metadata, similarity FROM holocron_knowledge")
	require.NoError(t, err)
	defer sqlRows.Close()

	results, err := scanResults(sqlRows)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "chunk-1", results[0].ID)
	assert.Equal(t, "A desert planet.", results[0].Text)
	assert.InDelta(t, 0.92, results[0].Similarity, 0.0001)
	assert.Equal(t, "Tatooine", results[0].Metadata.Title)
	assert.Equal(t, model.ContentClassContent, results[0].Metadata.ContentClass)
}

func TestScanResultsPropagatesMalformedMetadataError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "content", "metadata", "similarity"}).
		AddRow("chunk-2", "Broken row.", []byte("not-json"), 0.5)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	sqlRows, err := db.Query("SELECT id, content, metadata, similarity FROM holocron_knowledge")
	require.NoError(t, err)
	defer sqlRows.Close()

	_, err = scanResults(sqlRows)
	assert.Error(t, err)
}

func TestScanResultsEmptyRowsReturnsNilSlice(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "content", "metadata", "similarity"})
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	sqlRows, err := db.Query("SELECT id, content, metadata, similarity FROM holocron_knowledge")
	require.NoError(t, err)
	defer sqlRows.Close()

	results, err := scanResults(sqlRows)
	require.NoError(t, err)
	assert.Empty(t, results)
}
