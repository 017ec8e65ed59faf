// Package retriever answers knowledge-base queries: embed the query,
// search the configured vector backend, return the results that meet
// the similarity threshold, otherwise unmodified.
// Grounded on original_source/holocron/knowledge/retriever.py's
// HolocronRetriever.search (spec §4.11).
package retriever

import (
	"context"
	"fmt"

	"holocron/internal/embeddings"
	"holocron/internal/model"
	"holocron/internal/vectorstore"
)

// Retriever is stateless and safe for concurrent use: every call opens
// no connection of its own, it only calls through to the embedder and
// backend it was built with.
type Retriever struct {
	embedder  embeddings.Service
	backend   vectorstore.Backend
	threshold float64
}

// New builds a Retriever. threshold is the minimum similarity a result
// must meet to be returned; spec §4.11 names 0.3 for the SQL+pgvector
// backend and 0.01 for the managed index's lower recall floor, so
// callers should pass the value matching their configured backend.
func New(embedder embeddings.Service, backend vectorstore.Backend, threshold float64) *Retriever {
	return &Retriever{embedder: embedder, backend: backend, threshold: threshold}
}

// Search embeds query with a single network call, searches the
// backend for the topK nearest vectors under filters, and returns
// results at or above the configured similarity threshold, unmodified
// otherwise and in the backend's own ranked order.
func (r *Retriever) Search(ctx context.Context, query string, topK int, filters model.MetadataFilters) ([]model.SearchResult, error) {
	vector, err := r.embedder.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retriever: embed query: %w", err)
	}

	results, err := r.backend.Search(ctx, vector, topK, filters)
	if err != nil {
		return nil, fmt.Errorf("retriever: backend search: %w", err)
	}

	filtered := results[:0:0]
	for _, res := range results {
		if res.Similarity >= r.threshold {
			filtered = append(filtered, res)
		}
	}
	return filtered, nil
}
