// Package embeddings turns chunk text into vectors, batching requests to
// the embedding API within its token budget and wrapping every call with
// retry and circuit-breaker protection (spec §4.4).
package embeddings

import "context"

// Service is the embedding contract the rest of the pipeline depends on.
// GenerateBatch does its own internal batching/concurrency; callers pass
// whatever slice of chunk texts they have and get back one vector per
// input, in order, even when some inputs fail (those come back as a
// zero vector, see Result.Flagged).
type Service interface {
	Generate(ctx context.Context, text string) ([]float32, error)
	GenerateBatch(ctx context.Context, texts []string) ([]Result, error)
	Dimensions() int
	HealthCheck(ctx context.Context) error
}

// Result pairs a vector with whether it is a substituted zero vector
// after the retry budget was exhausted (spec §4.4 edge case: "after
// exhausting retries, the pipeline substitutes a zero vector... and
// flags the chunk for re-embedding").
type Result struct {
	Vector  []float32
	Flagged bool
	Err     error
}
