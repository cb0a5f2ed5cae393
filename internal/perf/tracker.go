// Package perf times operations, flags slow ones and keeps running aggregates.
package perf

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/grantmatch/internal/logger"
)

// Config configures a Tracker.
type Config struct {
	// DefaultThreshold applies when Track is called with a zero threshold.
	DefaultThreshold time.Duration
	Logger           *zap.Logger
	// Duration observes every operation; optional.
	Duration *prometheus.HistogramVec
	// Slow counts threshold breaches; optional.
	Slow *prometheus.CounterVec
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Tracker records operation timings. Safe for concurrent use.
type Tracker struct {
	defaultThreshold time.Duration
	logger           *zap.Logger
	duration         *prometheus.HistogramVec
	slow             *prometheus.CounterVec
	now              func() time.Time

	global aggregate

	mu  sync.RWMutex
	ops map[string]*aggregate
}

// New creates a Tracker.
func New(cfg Config) *Tracker {
	t := &Tracker{
		defaultThreshold: cfg.DefaultThreshold,
		logger:           cfg.Logger,
		duration:         cfg.Duration,
		slow:             cfg.Slow,
		now:              cfg.Now,
		ops:              make(map[string]*aggregate),
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// Track runs op and records its duration under name. The error (or panic)
// of op reaches the caller unchanged. A zero threshold uses the default;
// a negative threshold disables the slow warning.
func (t *Tracker) Track(ctx context.Context, name string, threshold time.Duration, op func(ctx context.Context) error) (err error) {
	start := t.now()
	defer func() {
		if r := recover(); r != nil {
			t.record(ctx, name, threshold, t.now().Sub(start), fmt.Errorf("panic: %v", r))
			panic(r)
		}
		t.record(ctx, name, threshold, t.now().Sub(start), err)
	}()
	return op(ctx)
}

// TrackValue is Track for operations that return a value.
func TrackValue[T any](
	ctx context.Context, t *Tracker, name string, threshold time.Duration, op func(ctx context.Context) (T, error),
) (T, error) {
	var out T
	err := t.Track(ctx, name, threshold, func(ctx context.Context) error {
		v, err := op(ctx)
		out = v
		return err
	})
	return out, err
}

// Record adds an externally timed sample.
func (t *Tracker) Record(ctx context.Context, name string, threshold, d time.Duration, err error) {
	t.record(ctx, name, threshold, d, err)
}

func (t *Tracker) record(ctx context.Context, name string, threshold, d time.Duration, err error) {
	if threshold == 0 {
		threshold = t.defaultThreshold
	}
	slow := threshold > 0 && d > threshold

	t.global.add(d, err != nil, slow)
	t.op(name).add(d, err != nil, slow)

	if t.duration != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		t.duration.WithLabelValues(name, status).Observe(d.Seconds())
	}
	if slow {
		if t.slow != nil {
			t.slow.WithLabelValues(name).Inc()
		}
		logger.FromContextOr(ctx, t.logger).Warn("slow operation",
			zap.String("operation", name),
			zap.Duration("duration", d),
			zap.Duration("threshold", threshold),
			zap.Bool("failed", err != nil),
		)
	}
}

func (t *Tracker) op(name string) *aggregate {
	t.mu.RLock()
	a, ok := t.ops[name]
	t.mu.RUnlock()
	if ok {
		return a
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok = t.ops[name]; !ok {
		a = &aggregate{}
		t.ops[name] = a
	}
	return a
}

// Snapshot is a copy of all aggregates.
type Snapshot struct {
	Global     OpStats            `json:"global"`
	Operations map[string]OpStats `json:"operations"`
}

// Names returns the operation names sorted.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Operations))
	for n := range s.Operations {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Stats returns a snapshot of the global and per-operation aggregates.
func (t *Tracker) Stats() Snapshot {
	t.mu.RLock()
	ops := make(map[string]OpStats, len(t.ops))
	for name, a := range t.ops {
		ops[name] = a.snapshot()
	}
	t.mu.RUnlock()
	return Snapshot{Global: t.global.snapshot(), Operations: ops}
}

// Reset drops all aggregates.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.ops = make(map[string]*aggregate)
	t.mu.Unlock()
	t.global.reset()
}
