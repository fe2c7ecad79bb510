package execution

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Metrics tracks buy-execution latency and outcome counters, adapted from
// the trading package's percentile tracker.
type Metrics struct {
	samples   []int64
	sampleIdx int
	mu        sync.Mutex

	totalAttempts  atomic.Int64
	successes      atomic.Int64
	failures       atomic.Int64
	rejectedBusy   atomic.Int64
}

// NewMetrics creates a metrics tracker retaining the last 100 latency
// samples.
func NewMetrics() *Metrics {
	return &Metrics{samples: make([]int64, 100)}
}

// RecordAttempt records one buy-execution attempt's outcome and latency.
func (m *Metrics) RecordAttempt(success bool, latencyMs int64) {
	m.mu.Lock()
	m.samples[m.sampleIdx%len(m.samples)] = latencyMs
	m.sampleIdx++
	m.mu.Unlock()

	m.totalAttempts.Add(1)
	if success {
		m.successes.Add(1)
	} else {
		m.failures.Add(1)
	}
}

// RecordRejectedBusy records a signal dropped because the single-flight
// permit was already held.
func (m *Metrics) RecordRejectedBusy() { m.rejectedBusy.Add(1) }

func (m *Metrics) P50() int64 { return m.percentile(50) }
func (m *Metrics) P95() int64 { return m.percentile(95) }
func (m *Metrics) P99() int64 { return m.percentile(99) }

func (m *Metrics) percentile(p int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.sampleIdx
	if count > len(m.samples) {
		count = len(m.samples)
	}
	if count == 0 {
		return 0
	}

	sorted := make([]int64, count)
	copy(sorted, m.samples[:count])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (p * count) / 100
	if idx >= count {
		idx = count - 1
	}
	return sorted[idx]
}

// Snapshot is a point-in-time view of the counters, exposed by the
// monitor endpoint.
type Snapshot struct {
	TotalAttempts int64
	Successes     int64
	Failures      int64
	RejectedBusy  int64
	P50Ms         int64
	P95Ms         int64
	P99Ms         int64
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		TotalAttempts: m.totalAttempts.Load(),
		Successes:     m.successes.Load(),
		Failures:      m.failures.Load(),
		RejectedBusy:  m.rejectedBusy.Load(),
		P50Ms:         m.P50(),
		P95Ms:         m.P95(),
		P99Ms:         m.P99(),
	}
}
