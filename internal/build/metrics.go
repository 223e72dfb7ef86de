package build

import (
	"sync"
	"time"
)

// Metrics tracks build outcomes across a session.
type Metrics struct {
	mu              sync.RWMutex
	totalBuilds     int64
	successful      int64
	failed          int64
	totalDuration   time.Duration
	lastDuration    time.Duration
	lastBuildFailed bool
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	TotalBuilds      int64
	SuccessfulBuilds int64
	FailedBuilds     int64
	AverageDuration  time.Duration
	TotalDuration    time.Duration
	LastDuration     time.Duration
	LastBuildFailed  bool
}

// NewMetrics creates an empty tracker.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Record adds one build result.
func (m *Metrics) Record(result Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalBuilds++
	m.totalDuration += result.Duration
	m.lastDuration = result.Duration
	m.lastBuildFailed = result.Error != nil

	if result.Error != nil {
		m.failed++
	} else {
		m.successful++
	}
}

// Snapshot returns the current values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := MetricsSnapshot{
		TotalBuilds:      m.totalBuilds,
		SuccessfulBuilds: m.successful,
		FailedBuilds:     m.failed,
		TotalDuration:    m.totalDuration,
		LastDuration:     m.lastDuration,
		LastBuildFailed:  m.lastBuildFailed,
	}
	if m.totalBuilds > 0 {
		s.AverageDuration = m.totalDuration / time.Duration(m.totalBuilds)
	}
	return s
}

// SuccessRate returns the share of successful builds as a percentage.
func (s MetricsSnapshot) SuccessRate() float64 {
	if s.TotalBuilds == 0 {
		return 0
	}
	return float64(s.SuccessfulBuilds) / float64(s.TotalBuilds) * 100.0
}
