package perf

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/grantmatch/internal/logger"
)

// Step is one timed segment of a Scope.
type Step struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// Scope times a multi-step operation. It is not safe for concurrent use;
// one goroutine owns a scope.
type Scope struct {
	t         *Tracker
	ctx       context.Context
	name      string
	threshold time.Duration
	start     time.Time
	stepStart time.Time
	steps     []Step
	ended     bool
}

// Start opens a scope for a multi-step operation.
func (t *Tracker) Start(ctx context.Context, name string, threshold time.Duration) *Scope {
	now := t.now()
	return &Scope{t: t, ctx: ctx, name: name, threshold: threshold, start: now, stepStart: now}
}

// Step closes the current segment under name and records it as
// "<scope>.<name>" without a slow threshold of its own.
func (s *Scope) Step(name string) time.Duration {
	now := s.t.now()
	d := now.Sub(s.stepStart)
	s.stepStart = now
	s.steps = append(s.steps, Step{Name: name, Duration: d})
	s.t.record(s.ctx, s.name+"."+name, -1, d, nil)
	return d
}

// Steps returns the segments recorded so far.
func (s *Scope) Steps() []Step { return s.steps }

// End records the whole scope with its outcome. Only the first call counts.
func (s *Scope) End(err error) time.Duration {
	d := s.t.now().Sub(s.start)
	if s.ended {
		return d
	}
	s.ended = true
	s.t.record(s.ctx, s.name, s.threshold, d, err)
	if len(s.steps) > 0 {
		threshold := s.threshold
		if threshold == 0 {
			threshold = s.t.defaultThreshold
		}
		if threshold > 0 && d > threshold {
			fields := make([]zap.Field, 0, len(s.steps)+1)
			fields = append(fields, zap.String("operation", s.name))
			for _, st := range s.steps {
				fields = append(fields, zap.Duration("step."+st.Name, st.Duration))
			}
			logger.FromContextOr(s.ctx, s.t.logger).Warn("slow operation steps", fields...)
		}
	}
	return d
}
