// Package embcache caches embedding vectors in the process cache store so each
// distinct text reaches the provider at most once per TTL.
package embcache

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/grantmatch/internal/cache"
	"github.com/kailas-cloud/grantmatch/internal/domain"
)

// Namespace prefixes embedding cache keys.
const Namespace = "embedding"

// DefaultTTL is the embedding cache lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	GetOrCreate(ctx context.Context, key string, factory cache.Factory, opts cache.Options) ([]byte, bool, error)
	Remove(ctx context.Context, key string)
}

// CachedEmbedder caches embeddings in the two-tier cache store.
type CachedEmbedder struct {
	inner      domain.Embedder
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.Embedder,
	s store,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := Key(text)

	var computed *domain.EmbeddingResult
	data, hit, err := c.store.GetOrCreate(ctx, key, func(ctx context.Context) ([]byte, error) {
		result, err := c.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		if len(result.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding", domain.ErrEmbeddingProviderError)
		}
		computed = &result
		return vectorToCacheBytes(result.Embedding), nil
	}, cache.Options{Absolute: c.ttl})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	if computed != nil {
		c.incCache("miss")
		return *computed, nil
	}

	vec, perr := bytesToVector(data)
	if perr != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(perr))
		c.store.Remove(ctx, key)
		result, err := c.inner.Embed(ctx, text)
		if err != nil {
			return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
		}
		c.incCache("miss")
		return result, nil
	}

	if hit {
		c.incCache("hit")
	} else {
		// shared an in-flight computation led by another caller
		c.incCache("shared")
	}
	return domain.EmbeddingResult{Embedding: vec}, nil
}

// Key returns the content-addressed cache key for text.
func Key(text string) string {
	return cache.Fingerprint(Namespace, map[string]string{"text": text})
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not a positive multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
