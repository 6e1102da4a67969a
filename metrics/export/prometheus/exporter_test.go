package prometheus

import (
	"net/http/httptest"
	"strings"
	"testing"

	authcore "github.com/auralis-app/authcore"
)

type fakeSource struct {
	snap    authcore.MetricsSnapshot
	dropped uint64
}

func (f *fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snap }
func (f *fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestRenderCounters(t *testing.T) {
	src := &fakeSource{
		snap: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess: 7,
				authcore.MetricLoginLocked:  2,
			},
			Histograms: map[authcore.MetricID][]uint64{},
		},
		dropped: 3,
	}
	out := NewFromSource(src).Render()

	for _, want := range []string{
		"authcore_login_success_total 7",
		"authcore_login_locked_total 2",
		"authcore_audit_dropped_total 3",
		"# TYPE authcore_login_success_total counter",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "authcore_validate_session_seconds") {
		t.Fatal("histogram rendered without observations")
	}
}

func TestRenderHistogramCumulative(t *testing.T) {
	src := &fakeSource{
		snap: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricValidateLatency: {1, 2, 0, 0, 0, 0, 0, 1},
			},
		},
	}
	out := NewFromSource(src).Render()

	for _, want := range []string{
		`authcore_validate_session_seconds_bucket{le="0.0001"} 1`,
		`authcore_validate_session_seconds_bucket{le="0.00025"} 3`,
		`authcore_validate_session_seconds_bucket{le="+Inf"} 4`,
		"authcore_validate_session_seconds_count 4",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestHandlerContentType(t *testing.T) {
	src := &fakeSource{snap: authcore.MetricsSnapshot{
		Counters:   map[authcore.MetricID]uint64{},
		Histograms: map[authcore.MetricID][]uint64{},
	}}
	rec := httptest.NewRecorder()
	NewFromSource(src).Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("content type %q", got)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("empty body")
	}
}
