package monitor

import (
	"sync"
	"time"
)

// Stats accumulates pipeline throughput figures for the status endpoint and
// the websocket feed.
type Stats struct {
	mu          sync.Mutex
	start       time.Time
	batches     uint64
	images      uint64
	latencyMin  time.Duration
	latencyMax  time.Duration
	latencySum  time.Duration
	lastBatchAt time.Time
}

func NewStats() *Stats {
	return &Stats{start: time.Now()}
}

// RecordBatch notes one consumed batch and its end-to-end latency.
func (s *Stats) RecordBatch(images int, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batches == 0 || latency < s.latencyMin {
		s.latencyMin = latency
	}
	if latency > s.latencyMax {
		s.latencyMax = latency
	}
	s.batches++
	s.images += uint64(images)
	s.latencySum += latency
	s.lastBatchAt = time.Now()
}

// Snapshot returns a JSON-friendly view of the counters.
func (s *Stats) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := time.Since(s.start).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(s.batches) / elapsed
	}
	meanMs := 0.0
	if s.batches > 0 {
		meanMs = float64(s.latencySum.Milliseconds()) / float64(s.batches)
	}
	last := ""
	if !s.lastBatchAt.IsZero() {
		last = s.lastBatchAt.Format(time.RFC3339)
	}
	return map[string]any{
		"type":            "stats",
		"batches_total":   s.batches,
		"images_total":    s.images,
		"batches_per_sec": rate,
		"latency_min_ms":  float64(s.latencyMin.Microseconds()) / 1000.0,
		"latency_max_ms":  float64(s.latencyMax.Microseconds()) / 1000.0,
		"latency_mean_ms": meanMs,
		"last_batch":      last,
	}
}
