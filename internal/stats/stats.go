// Package stats keeps rolling latency and failure aggregates for model calls.
package stats

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"time"
)

// Outcome classifies one model call.
type Outcome int

const (
	OK Outcome = iota
	Failed
	TimedOut
)

// OutcomeOf maps a call error to its outcome. Deadline and network timeouts
// count as TimedOut.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OK
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return TimedOut
	}
	return Failed
}

type sample struct {
	timestamp  time.Time
	durationMs int64
	outcome    Outcome
}

// StatsSnapshot is a point-in-time aggregate of model calls. Latency fields
// cover every call; Failures and Timeouts count the unsuccessful ones.
type StatsSnapshot struct {
	Count     int     `json:"count"`
	Failures  int     `json:"failures"`
	Timeouts  int     `json:"timeouts"`
	ErrorRate float64 `json:"error_rate"`
	MinMs     int64   `json:"min_ms"`
	MaxMs     int64   `json:"max_ms"`
	AvgMs     float64 `json:"avg_ms"`
	P50Ms     float64 `json:"p50_ms"`
	P95Ms     float64 `json:"p95_ms"`
	P99Ms     float64 `json:"p99_ms"`
}

// LatencyStats tracks recent classifier or embedder call latencies within a
// rolling window.
type LatencyStats struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
}

func NewLatencyStats(maxAge time.Duration) *LatencyStats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &LatencyStats{
		samples: make([]sample, 0, 256),
		maxAge:  maxAge,
	}
}

// Record adds a successful call.
func (s *LatencyStats) Record(durationMs int64) {
	s.record(durationMs, OK)
}

// Observe adds a call that took d and ended with err.
func (s *LatencyStats) Observe(d time.Duration, err error) {
	s.record(d.Milliseconds(), OutcomeOf(err))
}

func (s *LatencyStats) record(durationMs int64, outcome Outcome) {
	if durationMs < 0 {
		durationMs = 0
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	s.samples = append(s.samples, sample{timestamp: now, durationMs: durationMs, outcome: outcome})
}

func (s *LatencyStats) Snapshot() StatsSnapshot {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	if len(s.samples) == 0 {
		return StatsSnapshot{}
	}

	values := make([]int64, 0, len(s.samples))
	var sum int64
	var failures, timeouts int
	for _, sm := range s.samples {
		values = append(values, sm.durationMs)
		sum += sm.durationMs
		switch sm.outcome {
		case Failed:
			failures++
		case TimedOut:
			timeouts++
		}
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	return StatsSnapshot{
		Count:     len(values),
		Failures:  failures,
		Timeouts:  timeouts,
		ErrorRate: float64(failures+timeouts) / float64(len(values)),
		MinMs:     values[0],
		MaxMs:     values[len(values)-1],
		AvgMs:     float64(sum) / float64(len(values)),
		P50Ms:     percentile(values, 50),
		P95Ms:     percentile(values, 95),
		P99Ms:     percentile(values, 99),
	}
}

func (s *LatencyStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge)
	kept := s.samples[:0]
	for _, sm := range s.samples {
		if !sm.timestamp.Before(cutoff) {
			kept = append(kept, sm)
		}
	}
	s.samples = kept
}

// percentile interpolates linearly between the two closest ranks.
func percentile(sorted []int64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sorted[0])
	}
	if pct >= 100 {
		return float64(sorted[len(sorted)-1])
	}

	index := (float64(len(sorted)-1) * pct) / 100.0
	lower := int(index)
	if lower+1 >= len(sorted) {
		return float64(sorted[lower])
	}
	weight := index - float64(lower)
	lo, hi := float64(sorted[lower]), float64(sorted[lower+1])
	return lo + (hi-lo)*weight
}
