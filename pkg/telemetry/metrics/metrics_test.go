package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/pulse/pkg/config"
)

func testConfig(enabled bool) *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:         &enabled,
		Namespace:       "test",
		DurationBuckets: []float64{0.01, 0.1, 1},
	}
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.RecordCall(true)
	c.RecordFlush("ok", 10, time.Millisecond)
	c.RecordProbe(false, time.Millisecond)
	c.SetDegraded(true)
	c.SetBacklog(3)
	c.RecordBacklogDrop("evicted", 1)
	c.RecordReplay(true, 1)
	c.RecordSampleDecision(true, "tier")
	c.SetLastSampleRate(0.5)
	c.RecordPublish("p99", true, 2)
	c.RegisterGauge("x", "x", func() float64 { return 1 })
}

func TestCollector_Disabled(t *testing.T) {
	c := NewCollector(testConfig(false), prometheus.NewRegistry())
	c.RecordCall(true)

	if got := testutil.ToFloat64(c.pipeline.calls.WithLabelValues("true")); got != 0 {
		t.Errorf("expected no calls recorded while disabled, got %v", got)
	}
}

func TestCollector_Records(t *testing.T) {
	c := NewCollector(testConfig(true), prometheus.NewRegistry())

	c.RecordCall(true)
	c.RecordCall(true)
	c.RecordCall(false)
	if got := testutil.ToFloat64(c.pipeline.calls.WithLabelValues("true")); got != 2 {
		t.Errorf("expected 2 successful calls, got %v", got)
	}

	c.RecordFlush("ok", 100, 5*time.Millisecond)
	c.RecordFlush("queued", 40, 0)
	if got := testutil.ToFloat64(c.writer.records.WithLabelValues("ok")); got != 100 {
		t.Errorf("expected 100 flushed records, got %v", got)
	}
	if got := testutil.ToFloat64(c.writer.flushes.WithLabelValues("queued")); got != 1 {
		t.Errorf("expected 1 queued flush, got %v", got)
	}

	c.SetDegraded(true)
	if got := testutil.ToFloat64(c.failover.degraded); got != 1 {
		t.Errorf("expected degraded gauge 1, got %v", got)
	}
	c.SetDegraded(false)
	if got := testutil.ToFloat64(c.failover.degraded); got != 0 {
		t.Errorf("expected degraded gauge 0, got %v", got)
	}
	if got := testutil.ToFloat64(c.failover.transitions.WithLabelValues("healthy")); got != 1 {
		t.Errorf("expected 1 healthy transition, got %v", got)
	}

	c.SetBacklog(7)
	c.RecordBacklogDrop("evicted", 2)
	c.RecordBacklogDrop("expired", 0)
	if got := testutil.ToFloat64(c.failover.backlog); got != 7 {
		t.Errorf("expected backlog 7, got %v", got)
	}
	if got := testutil.ToFloat64(c.failover.dropped.WithLabelValues("evicted")); got != 2 {
		t.Errorf("expected 2 evictions, got %v", got)
	}

	c.RecordSampleDecision(false, "tier")
	if got := testutil.ToFloat64(c.sampler.decisions.WithLabelValues("false", "tier")); got != 1 {
		t.Errorf("expected 1 rejected decision, got %v", got)
	}

	c.RecordPublish("p99", true, 3)
	c.RecordPublish("p99", false, 3)
	if got := testutil.ToFloat64(c.sampler.entries.WithLabelValues("p99")); got != 3 {
		t.Errorf("expected 3 published entries, got %v", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(testConfig(true), prometheus.NewRegistry())
	c.RegisterGauge("in_flight", "In-flight calls", func() float64 { return 4 })
	c.RecordProbe(true, 2*time.Millisecond)
	c.SetLastSampleRate(0.1)
	c.SetLastSampleRate(0.5)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"test_in_flight 4", `test_failover_probes_total{result="ok"} 1`, "test_sampler_last_rate 0.5"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected exposition to contain %q", want)
		}
	}
}
