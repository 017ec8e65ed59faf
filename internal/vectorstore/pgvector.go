package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"holocron/internal/circuitbreaker"
	"holocron/internal/logging"
	"holocron/internal/model"
	"holocron/internal/retry"
)

// PostgresConfig configures the SQL+pgvector backend, adapted from the
// teacher's config.PostgresConfig.
type PostgresConfig struct {
	DSN          string
	Table        string
	MaxOpenConns int
	MaxIdleConns int
	UseRPC       bool
	Dimensions   int
}

// Postgres is the pgvector-backed Backend. Grounded on
// original_source/holocron/database/vector_search.py's RPC-first search
// (calling a match_documents SQL function) with a direct-SQL fallback
// when the RPC function isn't installed, and
// client_factory.py's bounded connection pool + retry-wrapped connect.
type Postgres struct {
	db         *sql.DB
	table      string
	useRPC     bool
	dimensions int
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
	log        logging.Logger
}

// NewPostgres opens a bounded connection pool against dsn and verifies
// connectivity with a retrying ping, matching client_factory.py's
// retry-on-connect behavior.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	table := cfg.Table
	if table == "" {
		table = "holocron_knowledge"
	}

	p := &Postgres{
		db:         db,
		table:      table,
		useRPC:     cfg.UseRPC,
		dimensions: cfg.Dimensions,
		breaker:    circuitbreaker.New(circuitbreaker.DefaultConfig()),
		retrier:    retry.New(retry.EmbeddingBackoff()),
		log:        logging.WithComponent("vectorstore.pgvector"),
	}

	result := p.retrier.Do(ctx, func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
	if result.Err != nil {
		return nil, fmt.Errorf("vectorstore: connect to postgres: %w", result.Err)
	}
	return p, nil
}

func (p *Postgres) Dimensions() int { return p.dimensions }

func (p *Postgres) HealthCheck(ctx context.Context) error {
	if !p.breaker.IsHealthy() {
		return fmt.Errorf("vectorstore: circuit breaker open")
	}
	return p.db.PingContext(ctx)
}

// Upsert writes vector records with an INSERT ... ON CONFLICT DO UPDATE,
// one statement per record inside a transaction so a partial failure
// doesn't leave the batch half-applied.
func (p *Postgres) Upsert(ctx context.Context, records []model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	return p.breaker.Execute(ctx, func(ctx context.Context) error {
		result := p.retrier.Do(ctx, func(ctx context.Context) error {
			return p.upsertBatch(ctx, records)
		})
		return result.Err
	})
}

func (p *Postgres) upsertBatch(ctx context.Context, records []model.VectorRecord) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vectorstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, content, embedding, metadata)
		VALUES ($1, $2, $3::vector, $4::jsonb)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata
	`, p.table)

	for _, r := range records {
		metaJSON, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("vectorstore: marshal metadata for %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx, stmt, r.ID, r.Text, formatVector(r.Vector), metaJSON); err != nil {
			return fmt.Errorf("vectorstore: upsert %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// Search tries the match_documents RPC function first (if UseRPC is
// set), falling back to a direct parameterized SQL query on RPC
// failure, mirroring vector_search.py's try/except fallback.
func (p *Postgres) Search(ctx context.Context, vector []float32, topK int, filters model.MetadataFilters) ([]model.SearchResult, error) {
	if filters == nil {
		filters = model.MetadataFilters{} // marshals to {}, which every row's metadata contains
	}
	filterJSON, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: marshal filters: %w", err)
	}

	var results []model.SearchResult
	err = p.breaker.Execute(ctx, func(ctx context.Context) error {
		result := p.retrier.Do(ctx, func(ctx context.Context) error {
			var searchErr error
			if p.useRPC {
				results, searchErr = p.searchRPC(ctx, vector, topK, filterJSON)
				if searchErr == nil {
					return nil
				}
				p.log.Warn("match_documents RPC failed, falling back to direct SQL", "error", searchErr)
			}
			results, searchErr = p.searchDirect(ctx, vector, topK, filterJSON)
			return searchErr
		})
		return result.Err
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}
	return results, nil
}

func (p *Postgres) searchRPC(ctx context.Context, vector []float32, topK int, filterJSON []byte) ([]model.SearchResult, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, content, metadata, similarity
		FROM match_documents($1::vector, $2, $3, $4::jsonb)
	`, formatVector(vector), topK, p.table, string(filterJSON))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResults(rows)
}

func (p *Postgres) searchDirect(ctx context.Context, vector []float32, topK int, filterJSON []byte) ([]model.SearchResult, error) {
	query := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1::vector) AS similarity
		FROM %s
		WHERE metadata @> $2::jsonb
		ORDER BY embedding <=> $1::vector
		LIMIT $3
	`, p.table)

	rows, err := p.db.QueryContext(ctx, query, formatVector(vector), string(filterJSON), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResults(rows)
}

func scanResults(rows *sql.Rows) ([]model.SearchResult, error) {
	var results []model.SearchResult
	for rows.Next() {
		var (
			id         string
			content    string
			metaJSON   []byte
			similarity float64
		)
		if err := rows.Scan(&id, &content, &metaJSON, &similarity); err != nil {
			return nil, err
		}
		var meta model.ChunkMetadata
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, fmt.Errorf("vectorstore: unmarshal metadata for %s: %w", id, err)
		}
		results = append(results, model.SearchResult{
			ID:         id,
			Text:       content,
			Metadata:   meta,
			Similarity: similarity,
		})
	}
	return results, rows.Err()
}

func (p *Postgres) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", p.table)
	_, err := p.db.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("vectorstore: delete: %w", err)
	}
	return nil
}

// formatVector renders a float32 slice as pgvector's text input format:
// "[v1,v2,v3]".
func formatVector(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = fmt.Sprintf("%g", f)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
