package embcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/grantmatch/internal/cache"
	"github.com/kailas-cloud/grantmatch/internal/domain"
)

type mockEmbedder struct {
	mu     sync.Mutex
	result domain.EmbeddingResult
	err    error
	delay  time.Duration
	calls  atomic.Int64
	texts  []string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return m.result, m.err
}

func newTestCachedEmbedder(t *testing.T, inner *mockEmbedder) (*CachedEmbedder, *cache.Store) {
	t.Helper()
	store, err := cache.New(cache.Config{Capacity: 100})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	return New(inner, store, time.Hour, nil, zap.NewNop()), store
}
