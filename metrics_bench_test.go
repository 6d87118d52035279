package authcore

import (
	"testing"
	"time"
)

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Inc(MetricLoginSuccess)
	}
}

func BenchmarkMetricsIncDisabled(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Inc(MetricLoginSuccess)
	}
}

var mixedHotMetricIDs = [...]MetricID{
	MetricLoginSuccess,
	MetricLoginFailure,
	MetricCodeIssued,
	MetricCodeSuccess,
	MetricRefreshSuccess,
	MetricRefreshFailure,
	MetricRateLimitHit,
	MetricAuthenticateFailure,
}

func BenchmarkMetricsIncMixedParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		idx := 0
		for pb.Next() {
			m.Inc(mixedHotMetricIDs[idx])
			idx++
			if idx == len(mixedHotMetricIDs) {
				idx = 0
			}
		}
	})
}

func BenchmarkMetricsObserveLatencyParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	d := 12 * time.Millisecond
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Observe(MetricAuthenticateLatency, d)
		}
	})
}
