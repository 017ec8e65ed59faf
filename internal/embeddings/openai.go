package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"holocron/internal/chunk"
	"holocron/internal/circuitbreaker"
	"holocron/internal/logging"
	"holocron/internal/retry"
)

// OpenAIService is the only production Service implementation, grounded
// on the teacher's openai.go client wiring plus
// original_source/holocron/knowledge/embeddings.py's batching and
// zero-vector fallback. It batches input texts against a token budget,
// bounds concurrent requests, and wraps every call in retry + circuit
// breaker protection.
type OpenAIService struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int

	batchTokenLimit int
	maxParallel     int

	cache   Cache
	breaker *circuitbreaker.CircuitBreaker
	retrier *retry.Retrier
	log     logging.Logger
}

// OpenAIConfig carries only what the embedding client needs, decoupled
// from the full internal/config.Config so this package stays testable
// without pulling in the whole config tree.
type OpenAIConfig struct {
	APIKey              string
	Model               string
	Dimensions          int
	BatchTokenLimit     int
	MaxParallelRequests int
	Cache               Cache
}

// NewOpenAIService builds an embedding client. A nil Cache falls back to
// an in-process map cache (no Redis dependency required for local runs).
func NewOpenAIService(cfg OpenAIConfig) *OpenAIService {
	model := openai.EmbeddingModel(cfg.Model)
	if cfg.Model == "" {
		model = openai.AdaEmbeddingV2
	}
	cache := cfg.Cache
	if cache == nil {
		cache = newMemoryCache()
	}
	maxParallel := cfg.MaxParallelRequests
	if maxParallel <= 0 {
		maxParallel = 5
	}
	batchLimit := cfg.BatchTokenLimit
	if batchLimit <= 0 {
		batchLimit = 8000
	}

	return &OpenAIService{
		client:          openai.NewClient(cfg.APIKey),
		model:           model,
		dimensions:      cfg.Dimensions,
		batchTokenLimit: batchLimit,
		maxParallel:     maxParallel,
		cache:           cache,
		breaker:         circuitbreaker.New(circuitbreaker.DefaultConfig()),
		retrier:         retry.New(retry.EmbeddingBackoff()),
		log:             logging.WithComponent("embeddings"),
	}
}

func (s *OpenAIService) Dimensions() int { return s.dimensions }

// HealthCheck confirms the breaker is closed and the API accepts a
// trivial embedding request.
func (s *OpenAIService) HealthCheck(ctx context.Context) error {
	if !s.breaker.IsHealthy() {
		return fmt.Errorf("embeddings: circuit breaker open")
	}
	_, err := s.embedOne(ctx, "health check")
	return err
}

// Generate embeds a single text, used by the retriever for query
// embedding (spec §5: "the query is embedded with the same model").
func (s *OpenAIService) Generate(ctx context.Context, text string) ([]float32, error) {
	if key := cacheKey(text); key != "" {
		if v, ok := s.cache.Get(ctx, key); ok {
			return v, nil
		}
	}
	vec, err := s.embedOne(ctx, text)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, cacheKey(text), vec)
	return vec, nil
}

// GenerateBatch batches texts against the token budget and fans the
// batches out across at most maxParallel concurrent requests, grounded
// on data_processor.py's generate_embeddings (BATCH_TOKEN_LIMIT,
// MAX_PARALLEL_REQUESTS semaphore).
func (s *OpenAIService) GenerateBatch(ctx context.Context, texts []string) ([]Result, error) {
	results := make([]Result, len(texts))
	batches := batchByTokenLimit(texts, s.batchTokenLimit)

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, s.maxParallel)

	for _, b := range batches {
		b := b
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			s.embedBatch(gctx, b, results)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

type batch struct {
	indices []int
	texts   []string
}

// batchByTokenLimit groups texts greedily so each batch's total token
// count stays under limit, preserving original order via indices.
func batchByTokenLimit(texts []string, limit int) []batch {
	var batches []batch
	var cur batch
	tokens := 0

	for i, t := range texts {
		tc := chunk.CountTokens(t)
		if tokens+tc > limit && len(cur.texts) > 0 {
			batches = append(batches, cur)
			cur = batch{}
			tokens = 0
		}
		cur.indices = append(cur.indices, i)
		cur.texts = append(cur.texts, t)
		tokens += tc
	}
	if len(cur.texts) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

func (s *OpenAIService) embedBatch(ctx context.Context, b batch, results []Result) {
	cached := make(map[int][]float32)
	var toFetch []string
	var toFetchIdx []int

	for j, idx := range b.indices {
		key := cacheKey(b.texts[j])
		if v, ok := s.cache.Get(ctx, key); ok {
			cached[idx] = v
			continue
		}
		toFetch = append(toFetch, b.texts[j])
		toFetchIdx = append(toFetchIdx, idx)
	}

	for idx, v := range cached {
		results[idx] = Result{Vector: v}
	}
	if len(toFetch) == 0 {
		return
	}

	vectors, err := s.embedMany(ctx, toFetch)
	if err != nil {
		s.log.Error("batch embedding failed, substituting zero vectors", "error", err, "size", len(toFetch))
		for _, idx := range toFetchIdx {
			results[idx] = Result{Vector: zeroVector(s.dimensions), Flagged: true, Err: err}
		}
		return
	}

	for j, idx := range toFetchIdx {
		results[idx] = Result{Vector: vectors[j]}
		s.cache.Set(ctx, cacheKey(toFetch[j]), vectors[j])
	}
}

func (s *OpenAIService) embedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.embedMany(ctx, []string{text})
	if err != nil {
		return zeroVector(s.dimensions), err
	}
	return vectors[0], nil
}

func (s *OpenAIService) embedMany(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		result := s.retrier.Do(ctx, func(ctx context.Context) error {
			resp, apiErr := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
				Input: texts,
				Model: s.model,
			})
			if apiErr != nil {
				return apiErr
			}
			out = make([][]float32, len(resp.Data))
			for i, d := range resp.Data {
				out[i] = normalize(d.Embedding)
			}
			return nil
		})
		return result.Err
	})
	return out, err
}

// normalize scales an embedding to unit length, matching the original's
// normalize_embedding so stored vectors are directly cosine-comparable.
func normalize(v []float32) []float32 {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

func zeroVector(dim int) []float32 {
	if dim <= 0 {
		dim = 1536
	}
	return make([]float32, dim)
}

func cacheKey(text string) string {
	if text == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
