package pipeline

import (
	"slices"
	"sync"
	"time"
)

type sample struct {
	at       time.Time
	status   JobStatus
	duration time.Duration
	figures  int
}

// StatsSnapshot aggregates the jobs that finished inside the window.
type StatsSnapshot struct {
	Window   string            `json:"window"`
	Jobs     int               `json:"jobs"`
	ByStatus map[JobStatus]int `json:"by_status"`
	Figures  int               `json:"figures"`
	Latency  LatencySnapshot   `json:"latency"`
}

// LatencySnapshot summarizes processing durations in milliseconds. Skipped
// jobs are not counted.
type LatencySnapshot struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// JobStats keeps finished-job samples for a rolling window.
type JobStats struct {
	mu      sync.Mutex
	samples []sample
	window  time.Duration
	now     func() time.Time
}

func NewJobStats(window time.Duration) *JobStats {
	if window <= 0 {
		window = time.Hour
	}
	return &JobStats{
		samples: make([]sample, 0, 256),
		window:  window,
		now:     time.Now,
	}
}

// Record adds one finished job.
func (s *JobStats) Record(status JobStatus, d time.Duration, figures int) {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.pruneLocked(now)
	s.samples = append(s.samples, sample{at: now, status: status, duration: d, figures: figures})
}

func (s *JobStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())

	snap := StatsSnapshot{
		Window:   s.window.String(),
		Jobs:     len(s.samples),
		ByStatus: make(map[JobStatus]int),
	}
	var ms []int64
	var sum int64
	for _, sm := range s.samples {
		snap.ByStatus[sm.status]++
		snap.Figures += sm.figures
		if sm.status == StatusSkipped {
			continue
		}
		v := sm.duration.Milliseconds()
		ms = append(ms, v)
		sum += v
	}
	if len(ms) == 0 {
		return snap
	}
	slices.Sort(ms)
	snap.Latency = LatencySnapshot{
		Count: len(ms),
		MinMs: ms[0],
		MaxMs: ms[len(ms)-1],
		AvgMs: float64(sum) / float64(len(ms)),
		P50Ms: percentile(ms, 50),
		P95Ms: percentile(ms, 95),
		P99Ms: percentile(ms, 99),
	}
	return snap
}

func (s *JobStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	s.samples = slices.DeleteFunc(s.samples, func(sm sample) bool {
		return sm.at.Before(cutoff)
	})
}

// percentile interpolates linearly between the closest ranks.
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
	idx := float64(len(sorted)-1) * pct / 100
	lo := int(idx)
	if lo+1 >= len(sorted) {
		return float64(sorted[lo])
	}
	w := idx - float64(lo)
	return float64(sorted[lo]) + (float64(sorted[lo+1])-float64(sorted[lo]))*w
}
