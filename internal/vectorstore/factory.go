package vectorstore

import (
	"context"
	"fmt"

	"holocron/internal/config"
)

// New selects and constructs the configured backend, grounded on
// original_source/holocron/database/vector_search_factory.py's
// single-flag backend selection.
func New(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Pipeline.Backend {
	case "managed":
		return NewManaged(ctx, ManagedConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Qdrant.Collection,
			Dimensions: cfg.Pipeline.EmbeddingDimension,
		})
	case "sql":
		return NewPostgres(ctx, PostgresConfig{
			DSN:          cfg.Postgres.DSN,
			Table:        cfg.Postgres.Table,
			MaxOpenConns: cfg.Postgres.MaxOpenConns,
			MaxIdleConns: cfg.Postgres.MaxIdleConns,
			UseRPC:       cfg.Postgres.UseRPC,
			Dimensions:   cfg.Pipeline.EmbeddingDimension,
		})
	default:
		return nil, fmt.Errorf("vectorstore: unknown backend %q", cfg.Pipeline.Backend)
	}
}
