package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	MetricSignupSuccess MetricID = iota
	MetricSignupFailure
	MetricSignupDuplicate
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginLocked
	MetricLockoutTriggered
	MetricCodeIssued
	MetricCodeSuccess
	MetricCodeFailure
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricPasswordResetRequest
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	MetricRateLimitHit
	MetricMailFailure
	MetricAuthenticateFailure
	// MetricAuthenticateLatency is the only histogram. It records the time
	// spent in [Engine.Authenticate].
	MetricAuthenticateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// HistogramBucketBounds are the upper bounds, in milliseconds, of the first
// seven latency buckets. The eighth bucket is unbounded.
var HistogramBucketBounds = [histBucketCount - 1]int64{5, 10, 25, 50, 100, 250, 500}

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter. Histograms is
// empty unless latency histograms are enabled.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a Metrics honoring cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram id. Only histogram metrics accept
// observations.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricAuthenticateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, the latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricAuthenticateLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAuthenticateLatency].buckets[i])
		}
		s.Histograms[MetricAuthenticateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()
	for i, bound := range HistogramBucketBounds {
		if ms <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
