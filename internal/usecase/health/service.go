package health

import (
	"context"
	"time"

	"github.com/kailas-cloud/grantmatch/internal/taskqueue"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates the service cannot match.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckDegraded indicates a component that works with reduced capacity.
	CheckDegraded CheckResult = "degraded"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// DefaultCheckTimeout bounds each component check.
const DefaultCheckTimeout = 2 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Deps are the checked components. Only Database is required.
type Deps struct {
	// Database backs the vector index and the cache remote tier.
	Database DBPinger
	// Documents is set when documents live outside Database.
	Documents DBPinger
	Embedding EmbeddingChecker
	Queue     QueueStats
	Timeout   time.Duration
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	documents DBPinger
	embedding EmbeddingChecker
	queue     QueueStats
	timeout   time.Duration
}

// New creates a Service.
func New(deps Deps) *Service {
	s := &Service{
		db:        deps.Database,
		documents: deps.Documents,
		embedding: deps.Embedding,
		queue:     deps.Queue,
		timeout:   deps.Timeout,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultCheckTimeout
	}
	return s
}

// Check runs health checks against all components. A failing database makes
// the service unhealthy; any other failure degrades it.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks["database"] = s.probe(ctx, s.db.Ping)
	if s.documents != nil {
		checks["documents"] = s.probe(ctx, s.documents.Ping)
	}
	if s.embedding != nil {
		checks["embedding"] = s.probe(ctx, s.embedding.HealthCheck)
	}
	if s.queue != nil {
		checks["queue"] = queueResult(s.queue.Stats())
	}

	status := Healthy
	for _, v := range checks {
		if v != CheckOK {
			status = Degraded
			break
		}
	}
	if checks["database"] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func (s *Service) probe(ctx context.Context, check func(context.Context) error) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := check(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}

func queueResult(st taskqueue.Stats) CheckResult {
	switch {
	case st.Closed:
		return CheckError
	case st.Capacity > 0 && st.Pending >= st.Capacity:
		return CheckDegraded
	default:
		return CheckOK
	}
}
