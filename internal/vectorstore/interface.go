// Package vectorstore abstracts over the two retrieval backends the
// spec requires: a managed vector index (Qdrant) and a SQL database with
// a vector extension (Postgres + pgvector), selected by a single config
// flag (spec §4.5, §5).
package vectorstore

import (
	"context"

	"holocron/internal/model"
)

// Backend is the narrow contract every vector store implementation
// satisfies. It deliberately exposes only the four operations the
// pipeline needs, not the teacher's full repository surface.
type Backend interface {
	Upsert(ctx context.Context, records []model.VectorRecord) error
	Search(ctx context.Context, vector []float32, topK int, filters model.MetadataFilters) ([]model.SearchResult, error)
	Delete(ctx context.Context, ids []string) error
	Dimensions() int
	HealthCheck(ctx context.Context) error
}
