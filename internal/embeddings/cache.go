package embeddings

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores previously computed embeddings keyed by a hash of the
// input text, so re-running the pipeline over already-chunked content
// doesn't re-pay the OpenAI bill. It is best-effort: a cache miss or
// error never fails the caller, it just means a fresh embedding call.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vector []float32)
}

// memoryCache is the fallback used when no Redis URL is configured,
// grounded on the teacher's in-process embedding cache.
type memoryCache struct {
	mu    sync.RWMutex
	items map[string][]float32
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string][]float32)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *memoryCache) Set(_ context.Context, key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = vector
}

// redisCache shares the embedding cache across pipeline runs and worker
// processes, using a prefixed string key and the vector's little-endian
// float32 bytes, JSON-encoded as a base64 string.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache builds a Cache backed by Redis at addr. Errors from
// Redis never propagate to callers; they are treated as cache misses.
func NewRedisCache(addr string, ttl time.Duration) Cache {
	return &redisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func (c *redisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.client.Get(ctx, "holocron:embed:"+key).Bytes()
	if err != nil {
		return nil, false
	}
	vec, err := decodeVector(raw)
	if err != nil {
		return nil, false
	}
	return vec, true
}

func (c *redisCache) Set(ctx context.Context, key string, vector []float32) {
	raw, err := encodeVector(vector)
	if err != nil {
		return
	}
	c.client.Set(ctx, "holocron:embed:"+key, raw, c.ttl)
}

func encodeVector(v []float32) ([]byte, error) {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return json.Marshal(buf)
}

func decodeVector(raw []byte) ([]float32, error) {
	var buf []byte
	if err := json.Unmarshal(raw, &buf); err != nil {
		return nil, err
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}
