// Package cache is the process-wide two-tier cache: a bounded local LRU tier
// in front of an optional shared remote tier.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/grantmatch/internal/db"
)

// Factory computes a value on a miss. It receives the context of the caller
// that triggered the computation.
type Factory func(ctx context.Context) ([]byte, error)

// RemoteTier is the shared tier (consumer interface).
// Get returns db.ErrKeyNotFound on a miss.
type RemoteTier interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Config configures a Store.
type Config struct {
	// Capacity bounds the local tier (entries).
	Capacity int
	// Remote is optional; nil means local-only.
	Remote RemoteTier
	// RemotePrefix namespaces keys in the remote tier.
	RemotePrefix string
	Logger       *zap.Logger
	// Lookups counts lookups by tier and result; optional.
	Lookups *prometheus.CounterVec
	// Evictions counts evictions; optional.
	Evictions prometheus.Counter
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits         int64   `json:"hits"`
	LocalHits    int64   `json:"local_hits"`
	RemoteHits   int64   `json:"remote_hits"`
	Misses       int64   `json:"misses"`
	Sets         int64   `json:"sets"`
	FactoryCalls int64   `json:"factory_calls"`
	SharedWaits  int64   `json:"shared_waits"`
	Evictions    int64   `json:"evictions"`
	RemoteErrors int64   `json:"remote_errors"`
	Entries      int     `json:"entries"`
	HitRate      float64 `json:"hit_rate"`
}

// Store is safe for concurrent use. All reads and writes of cached entries go
// through its methods.
type Store struct {
	local        *lru.Cache[string, *entry]
	remote       RemoteTier
	remotePrefix string
	group        singleflight.Group
	logger       *zap.Logger
	lookups      *prometheus.CounterVec
	evictCounter prometheus.Counter
	now          func() time.Time

	localHits    atomic.Int64
	remoteHits   atomic.Int64
	misses       atomic.Int64
	sets         atomic.Int64
	factoryCalls atomic.Int64
	sharedWaits  atomic.Int64
	evictions    atomic.Int64
	remoteErrors atomic.Int64
}

// New creates a Store.
func New(cfg Config) (*Store, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", cfg.Capacity)
	}
	s := &Store{
		remote:       cfg.Remote,
		remotePrefix: cfg.RemotePrefix,
		logger:       cfg.Logger,
		lookups:      cfg.Lookups,
		evictCounter: cfg.Evictions,
		now:          cfg.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	local, err := lru.NewWithEvict[string, *entry](cfg.Capacity, func(string, *entry) {
		s.evictions.Add(1)
		if s.evictCounter != nil {
			s.evictCounter.Inc()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create local tier: %w", err)
	}
	s.local = local
	return s, nil
}

// Get looks the key up in the local tier, then the remote tier. A remote hit
// back-fills the local tier.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := s.getLocal(key); ok {
		s.localHits.Add(1)
		s.observe("local", "hit")
		return v, true
	}
	if v, ok := s.getRemote(ctx, key); ok {
		s.remoteHits.Add(1)
		s.observe("remote", "hit")
		return v, true
	}
	s.misses.Add(1)
	s.observe("all", "miss")
	return nil, false
}

// GetOrCreate returns the cached value or computes it with factory. Concurrent
// callers for the same missing key share one factory invocation. hit reports
// whether the value was served from cache without running the factory for
// this call. Failed computations are never stored.
func (s *Store) GetOrCreate(ctx context.Context, key string, factory Factory, opts Options) (value []byte, hit bool, err error) {
	if v, ok := s.Get(ctx, key); ok {
		return v, true, nil
	}

	for attempt := 0; ; attempt++ {
		ch := s.group.DoChan(key, func() (any, error) {
			// another flight may have filled the key between our miss and now
			if v, ok := s.getLocal(key); ok {
				return flight{value: v, hit: true}, nil
			}
			s.factoryCalls.Add(1)
			v, err := factory(ctx)
			if err != nil {
				return nil, err
			}
			s.Set(ctx, key, v, opts)
			return flight{value: v}, nil
		})

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case res := <-ch:
			if res.Shared {
				s.sharedWaits.Add(1)
			}
			if res.Err != nil {
				// the leader's context was cancelled but ours is alive: try again once
				if attempt == 0 && isContextErr(res.Err) && ctx.Err() == nil {
					continue
				}
				return nil, false, res.Err
			}
			f := res.Val.(flight)
			return f.value, f.hit, nil
		}
	}
}

type flight struct {
	value []byte
	hit   bool
}

// Set stores the value in both tiers. Remote failures are logged and ignored.
func (s *Store) Set(ctx context.Context, key string, value []byte, opts Options) {
	now := s.now()
	e := newEntry(value, opts.orDefault(), now)
	s.local.Add(key, e)
	s.sets.Add(1)

	if s.remote == nil {
		return
	}
	payload, err := json.Marshal(e.envelope())
	if err != nil {
		s.logger.Warn("cache envelope encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.remote.SetWithTTL(ctx, s.remoteKey(key), payload, e.remaining(now)); err != nil {
		s.remoteFailed("set", key, err)
	}
}

// Remove deletes the key from both tiers.
func (s *Store) Remove(ctx context.Context, key string) {
	s.local.Remove(key)
	if s.remote == nil {
		return
	}
	if err := s.remote.Del(ctx, s.remoteKey(key)); err != nil {
		s.remoteFailed("del", key, err)
	}
}

// RemoveByPattern deletes every tracked key matching pattern ('*' wildcard)
// and returns how many local entries were removed. Repeating the call is a no-op.
func (s *Store) RemoveByPattern(ctx context.Context, pattern string) int {
	removed := 0
	for _, k := range s.local.Keys() {
		if Match(pattern, k) && s.local.Remove(k) {
			removed++
		}
	}
	if s.remote == nil {
		return removed
	}
	keys, err := s.remote.Scan(ctx, s.remoteKey(remoteGlob(pattern)))
	if err != nil {
		s.remoteFailed("scan", pattern, err)
		return removed
	}
	for _, k := range keys {
		if err := s.remote.Del(ctx, k); err != nil {
			s.remoteFailed("del", k, err)
		}
	}
	return removed
}

// Clear drops every entry in both tiers.
func (s *Store) Clear(ctx context.Context) {
	s.local.Purge()
	if s.remote != nil {
		s.RemoveByPattern(ctx, "*")
	}
}

// Sweep removes expired local entries and returns how many were dropped.
func (s *Store) Sweep() int {
	now := s.now()
	dropped := 0
	for _, k := range s.local.Keys() {
		if e, ok := s.local.Peek(k); ok && e.expired(now) {
			if s.local.Remove(k) {
				dropped++
			}
		}
	}
	return dropped
}

// Stats returns a snapshot of the counters.
func (s *Store) Stats() Stats {
	st := Stats{
		LocalHits:    s.localHits.Load(),
		RemoteHits:   s.remoteHits.Load(),
		Misses:       s.misses.Load(),
		Sets:         s.sets.Load(),
		FactoryCalls: s.factoryCalls.Load(),
		SharedWaits:  s.sharedWaits.Load(),
		Evictions:    s.evictions.Load(),
		RemoteErrors: s.remoteErrors.Load(),
		Entries:      s.local.Len(),
	}
	st.Hits = st.LocalHits + st.RemoteHits
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	return st
}

func (s *Store) getLocal(key string) ([]byte, bool) {
	e, ok := s.local.Get(key)
	if !ok {
		return nil, false
	}
	now := s.now()
	if e.expired(now) {
		s.local.Remove(key)
		return nil, false
	}
	e.touch(now)
	return e.value, true
}

func (s *Store) getRemote(ctx context.Context, key string) ([]byte, bool) {
	if s.remote == nil {
		return nil, false
	}
	raw, err := s.remote.Get(ctx, s.remoteKey(key))
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			s.remoteFailed("get", key, err)
		}
		return nil, false
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Warn("cache envelope decode failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	now := s.now()
	e := env.entry(now)
	if e.expired(now) {
		return nil, false
	}
	s.local.Add(key, e)
	return e.value, true
}

func (s *Store) remoteKey(key string) string {
	return s.remotePrefix + key
}

func (s *Store) remoteFailed(op, key string, err error) {
	s.remoteErrors.Add(1)
	s.observe("remote", "error")
	s.logger.Warn("remote cache tier degraded",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}

func (s *Store) observe(tier, result string) {
	if s.lookups != nil {
		s.lookups.WithLabelValues(tier, result).Inc()
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
