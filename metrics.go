package qhybrid

import (
	"sort"
	"sync"
	"time"
)

// Metrics tracks pool throughput and job latency.
type Metrics struct {
	mu           sync.RWMutex
	WorkerCount  int
	JobCount     int64
	FailedJobs   int64
	Retries      int64
	TotalJobTime time.Duration

	AverageJobLatency time.Duration
	P95JobLatency     time.Duration
	P99JobLatency     time.Duration
	JobSuccessRate    float64

	SchedulingFailures int64

	latencies  []time.Duration
	windowSize int
}

func NewMetrics() *Metrics {
	return &Metrics{
		latencies:  make([]time.Duration, 0, 1000),
		windowSize: 1000,
	}
}

func (m *Metrics) recordJobExecution(startTime time.Time, success bool, attempts int) {
	duration := time.Since(startTime)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalJobTime += duration
	m.JobCount++
	if !success {
		m.FailedJobs++
	}
	if attempts > 1 {
		m.Retries += int64(attempts - 1)
	}

	m.JobSuccessRate = float64(m.JobCount-m.FailedJobs) / float64(m.JobCount)
	m.updateLatencyPercentiles(duration)
}

func (m *Metrics) recordSchedulingFailure() {
	m.mu.Lock()
	m.SchedulingFailures++
	m.mu.Unlock()
}

// updateLatencyPercentiles keeps a sliding window of the last windowSize jobs.
func (m *Metrics) updateLatencyPercentiles(duration time.Duration) {
	m.AverageJobLatency = m.TotalJobTime / time.Duration(m.JobCount)

	m.latencies = append(m.latencies, duration)
	if len(m.latencies) > m.windowSize {
		m.latencies = m.latencies[1:]
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	p95Index := min(int(float64(len(sorted))*0.95), len(sorted)-1)
	p99Index := min(int(float64(len(sorted))*0.99), len(sorted)-1)

	m.P95JobLatency = sorted[p95Index]
	m.P99JobLatency = sorted[p99Index]
}

// ExportMetrics returns a snapshot suitable for logging or a metrics sink.
func (m *Metrics) ExportMetrics() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]any{
		"worker_count":        m.WorkerCount,
		"job_count":           m.JobCount,
		"failed_jobs":         m.FailedJobs,
		"retries":             m.Retries,
		"success_rate":        m.JobSuccessRate,
		"avg_latency":         m.AverageJobLatency.Microseconds(),
		"p95_latency":         m.P95JobLatency.Microseconds(),
		"p99_latency":         m.P99JobLatency.Microseconds(),
		"scheduling_failures": m.SchedulingFailures,
	}
}
