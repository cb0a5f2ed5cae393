package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/grantmatch/internal/db"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memRemote is an in-memory RemoteTier.
type memRemote struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func newMemRemote() *memRemote {
	return &memRemote{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memRemote) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *memRemote) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memRemote) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memRemote) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.data, key)
	return nil
}

func (m *memRemote) Scan(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var keys []string
	for k := range m.data {
		if Match(strings.ReplaceAll(pattern, `\`, ""), k) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memRemote) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

var errRemoteDown = errors.New("connection refused")

func newTestStore(t *testing.T, capacity int, remote RemoteTier, clock *fakeClock) *Store {
	t.Helper()
	cfg := Config{Capacity: capacity, Remote: remote, RemotePrefix: "test:"}
	if clock != nil {
		cfg.Now = clock.Now
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}
