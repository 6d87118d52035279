package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zuzu-app/authcore"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := New(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCountersAndHistogram(t *testing.T) {
	exp := New(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess:     7,
				authcore.MetricLockoutTriggered: 1,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricAuthenticateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"authcore_login_success_total 7",
		"authcore_lockout_triggered_total 1",
		"authcore_signup_success_total 0",
		"# TYPE authcore_authenticate_latency_seconds histogram",
		`authcore_authenticate_latency_seconds_bucket{le="0.005"} 1`,
		`authcore_authenticate_latency_seconds_bucket{le="+Inf"} 36`,
		"authcore_authenticate_latency_seconds_count 36",
		"authcore_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderSkipsHistogramWhenLatencyDisabled(t *testing.T) {
	exp := New(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{authcore.MetricLoginSuccess: 1},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	})

	if out := exp.Render(); strings.Contains(out, "latency_seconds") {
		t.Fatalf("expected no histogram series, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := New(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{authcore.MetricLoginSuccess: 1},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "authcore_login_success_total 1") {
		t.Fatalf("unexpected body:\n%s", rec.Body.String())
	}
}

func BenchmarkRender(b *testing.B) {
	exp := New(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess:   1000,
				authcore.MetricLoginFailure:   40,
				authcore.MetricRefreshSuccess: 800,
				authcore.MetricCodeSuccess:    790,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricAuthenticateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
