package perf

import (
	"sync"
	"time"
)

// OpStats are the running aggregates of one operation.
type OpStats struct {
	Count   int64         `json:"count"`
	Errors  int64         `json:"errors"`
	Slow    int64         `json:"slow"`
	Total   time.Duration `json:"total"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Average time.Duration `json:"average"`
	Last    time.Duration `json:"last"`
}

type aggregate struct {
	mu    sync.Mutex
	stats OpStats
}

func (a *aggregate) add(d time.Duration, failed, slow bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := &a.stats
	if s.Count == 0 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
	s.Count++
	s.Total += d
	s.Last = d
	if failed {
		s.Errors++
	}
	if slow {
		s.Slow++
	}
}

func (a *aggregate) snapshot() OpStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.stats
	if s.Count > 0 {
		s.Average = s.Total / time.Duration(s.Count)
	}
	return s
}

func (a *aggregate) reset() {
	a.mu.Lock()
	a.stats = OpStats{}
	a.mu.Unlock()
}
