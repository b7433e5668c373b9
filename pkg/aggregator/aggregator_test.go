package aggregator

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

func TestRecord_Counts(t *testing.T) {
	agg := New(100, 60)

	agg.Record("a", 10, true)
	agg.Record("a", 20, false)
	agg.Record("a", 30, true)
	agg.RecordError("a")

	sum, ok := agg.Summary("a")
	if !ok {
		t.Fatal("expected endpoint a to be tracked")
	}
	if sum.TotalCount != 4 {
		t.Errorf("expected total 4, got %d", sum.TotalCount)
	}
	if sum.ErrorCount != 2 {
		t.Errorf("expected errors 2, got %d", sum.ErrorCount)
	}
	if sum.TotalLatency != 60 {
		t.Errorf("expected latency sum 60, got %d", sum.TotalLatency)
	}
	if sum.AvgLatency != 20 {
		t.Errorf("expected avg 20, got %v", sum.AvgLatency)
	}
	if sum.ErrorRate != 0.5 {
		t.Errorf("expected error rate 0.5, got %v", sum.ErrorRate)
	}
	if sum.MaxLatency != 30 || sum.MinLatency != 10 {
		t.Errorf("expected max/min 30/10, got %d/%d", sum.MaxLatency, sum.MinLatency)
	}
}

func TestSnapshot_Empty(t *testing.T) {
	agg := New(100, 60)

	if snap := agg.Snapshot("missing"); snap != (PercentileSnapshot{}) {
		t.Errorf("expected zero snapshot for unknown endpoint, got %+v", snap)
	}

	// Error-only endpoints have no latency samples.
	agg.RecordError("errors-only")
	if snap := agg.Snapshot("errors-only"); snap != (PercentileSnapshot{}) {
		t.Errorf("expected zero snapshot without samples, got %+v", snap)
	}
	sum, _ := agg.Summary("errors-only")
	if sum.MinLatency != 0 {
		t.Errorf("expected min 0 before first sample, got %d", sum.MinLatency)
	}
}

func TestSnapshot_OneToHundred(t *testing.T) {
	agg := New(10000, 60)
	for i := int64(1); i <= 100; i++ {
		agg.Record("OrderService.list", i, true)
	}

	snap := agg.Snapshot("OrderService.list")

	tests := []struct {
		name   string
		got    float64
		want   float64
		within float64
	}{
		{"p50", float64(snap.P50), 50, 2},
		{"p99", float64(snap.P99), 99, 2},
		{"avg", snap.Avg, 50.5, 1},
		{"max", float64(snap.Max), 100, 0},
		{"min", float64(snap.Min), 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if math.Abs(tt.got-tt.want) > tt.within {
				t.Errorf("expected %s %v±%v, got %v", tt.name, tt.want, tt.within, tt.got)
			}
		})
	}
	if snap.Count != 100 {
		t.Errorf("expected 100 samples, got %d", snap.Count)
	}
}

func TestSnapshot_Monotonic(t *testing.T) {
	tests := []struct {
		name    string
		samples []int64
	}{
		{"single", []int64{42}},
		{"two", []int64{5, 1}},
		{"constant", []int64{7, 7, 7, 7}},
		{"skewed", []int64{1, 1, 1, 1, 1, 1, 1, 1, 1, 5000}},
		{"descending", []int64{900, 800, 700, 600, 500, 400, 300, 200, 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := New(100, 60)
			for _, v := range tt.samples {
				agg.Record("e", v, true)
			}
			s := agg.Snapshot("e")
			if !(s.Min <= s.P50 && s.P50 <= s.P95 && s.P95 <= s.P99 && s.P99 <= s.Max) {
				t.Errorf("percentiles not monotonic: %+v", s)
			}
		})
	}
}

func TestWindow_OverwritesOldest(t *testing.T) {
	agg := New(10, 60)
	for i := int64(1); i <= 25; i++ {
		agg.Record("e", i, true)
	}

	snap := agg.Snapshot("e")
	if snap.Count != 10 {
		t.Fatalf("expected window of 10 samples, got %d", snap.Count)
	}
	// Window holds 16..25 while max/min cover the lifetime.
	if snap.P50 != 21 {
		t.Errorf("expected p50 21 over the window, got %d", snap.P50)
	}
	if snap.Min != 1 || snap.Max != 25 {
		t.Errorf("expected lifetime min/max 1/25, got %d/%d", snap.Min, snap.Max)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	agg := New(10, 60)
	agg.Record("", 5, true)
	agg.Record("  ", 5, true)

	sum, ok := agg.Summary(UnknownEndpoint)
	if !ok {
		t.Fatal("expected empty endpoints to be tracked as unknown")
	}
	if sum.TotalCount != 2 {
		t.Errorf("expected 2 calls on unknown, got %d", sum.TotalCount)
	}
}

func TestMaxEndpoints(t *testing.T) {
	agg := New(10, 60, WithMaxEndpoints(2))
	agg.Record("a", 1, true)
	agg.Record("b", 1, true)
	agg.Record("c", 1, true)
	agg.Record("d", 1, true)
	agg.Record("a", 1, true)

	got := agg.Endpoints()
	want := []string{"a", "b", OtherEndpoint}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected endpoints %v, got %v", want, got)
	}
	if sum, _ := agg.Summary(OtherEndpoint); sum.TotalCount != 2 {
		t.Errorf("expected 2 calls folded into other, got %d", sum.TotalCount)
	}
}

func TestDistributionBuckets(t *testing.T) {
	agg := New(100, 60)
	for _, v := range []int64{0, 99, 100, 499, 500, 999, 1000, 5000} {
		agg.Record("e", v, true)
	}

	buckets := agg.DistributionBuckets("e")
	want := map[string]int{"0-100ms": 2, "100-500ms": 2, "500ms-1s": 2, "1s+": 2}
	if len(buckets) != len(want) {
		t.Fatalf("expected %d buckets, got %d", len(want), len(buckets))
	}
	for _, b := range buckets {
		if b.Count != want[b.Label] {
			t.Errorf("bucket %s: expected %d, got %d", b.Label, want[b.Label], b.Count)
		}
	}
}

func TestConcurrencyPeak(t *testing.T) {
	agg := New(10, 60)
	agg.RequestStarted()
	agg.RequestStarted()
	agg.RequestStarted()
	agg.RequestEnded()

	if agg.Concurrent() != 2 {
		t.Errorf("expected 2 in flight, got %d", agg.Concurrent())
	}
	if agg.Peak() != 3 {
		t.Errorf("expected peak 3, got %d", agg.Peak())
	}

	agg.RequestEnded()
	agg.RequestEnded()
	agg.RequestEnded()
	if agg.Concurrent() != 0 {
		t.Errorf("expected gauge floored at 0, got %d", agg.Concurrent())
	}
}

func TestQPSWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	agg := New(10, 60, WithClock(func() time.Time { return now }))

	for i := 0; i < 5; i++ {
		agg.Record("e", 1, true)
	}
	now = now.Add(time.Second)
	for i := 0; i < 3; i++ {
		agg.Record("e", 1, true)
	}
	now = now.Add(time.Second)

	if got := agg.CurrentQPS(); got != 3 {
		t.Errorf("expected current qps 3, got %d", got)
	}
	if got := agg.AvgQPS(); got != 4 {
		t.Errorf("expected avg qps 4, got %v", got)
	}

	// A full window later the slots are stale.
	now = now.Add(2 * time.Minute)
	if got := agg.AvgQPS(); got != 0 {
		t.Errorf("expected avg qps 0 after the window, got %v", got)
	}
}

func TestQPSWindow_SlotReuse(t *testing.T) {
	q := newQPSWindow(2)
	base := time.Unix(100, 0)

	q.tick(base)
	q.tick(base)
	// Same slot index two seconds later.
	q.tick(base.Add(2 * time.Second))

	if got := q.at(100); got != 0 {
		t.Errorf("expected reused slot to forget second 100, got %d", got)
	}
	if got := q.at(102); got != 1 {
		t.Errorf("expected 1 event at second 102, got %d", got)
	}
}

func TestSlowestAndErrors(t *testing.T) {
	agg := New(100, 60)
	agg.Record("fast", 10, true)
	agg.Record("slow", 900, true)
	agg.Record("mid", 100, false)
	agg.Record("mid", 100, true)
	agg.Record("broken", 50, false)

	slowest := agg.Slowest(2)
	if len(slowest) != 2 || slowest[0].Endpoint != "slow" || slowest[1].Endpoint != "mid" {
		t.Errorf("unexpected slowest order: %+v", slowest)
	}

	errs := agg.ErrorEndpoints(0)
	if len(errs) != 2 || errs[0].Endpoint != "broken" || errs[1].Endpoint != "mid" {
		t.Errorf("unexpected error order: %+v", errs)
	}

	if rate := agg.GlobalErrorRate(); rate != 0.4 {
		t.Errorf("expected global error rate 0.4, got %v", rate)
	}
	if total := agg.TotalRequests(); total != 5 {
		t.Errorf("expected 5 requests, got %d", total)
	}
}

func TestUniqueCallers(t *testing.T) {
	agg := New(10, 60)
	for i := 0; i < 200; i++ {
		agg.ObserveCaller("e", fmt.Sprintf("user-%d", i%50))
	}
	agg.ObserveCaller("e", "")

	sum, _ := agg.Summary("e")
	if sum.UniqueCallers < 48 || sum.UniqueCallers > 52 {
		t.Errorf("expected about 50 unique callers, got %d", sum.UniqueCallers)
	}
}

func TestReset(t *testing.T) {
	agg := New(10, 60)
	agg.RequestStarted()
	agg.Record("a", 5, true)
	agg.RequestEnded()
	agg.Reset()

	if len(agg.Endpoints()) != 0 {
		t.Errorf("expected no endpoints after reset, got %v", agg.Endpoints())
	}
	if agg.Peak() != 0 {
		t.Errorf("expected peak reset to current gauge, got %d", agg.Peak())
	}
	agg.Record("a", 5, true)
	if sum, _ := agg.Summary("a"); sum.TotalCount != 1 {
		t.Errorf("expected fresh counters after reset, got %d", sum.TotalCount)
	}
}

func TestRecord_Concurrent(t *testing.T) {
	agg := New(1000, 60)
	const workers, perWorker = 16, 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				agg.RequestStarted()
				agg.Record("shared", int64(i%100), i%10 != 0)
				agg.RequestEnded()
				if i%50 == 0 {
					s := agg.Snapshot("shared")
					if s.Count > 0 && s.P99 > s.Max {
						t.Errorf("p99 %d above max %d", s.P99, s.Max)
					}
				}
			}
		}(w)
	}
	wg.Wait()

	sum, _ := agg.Summary("shared")
	if sum.TotalCount != workers*perWorker {
		t.Errorf("expected %d calls, got %d", workers*perWorker, sum.TotalCount)
	}
	if sum.ErrorCount != workers*perWorker/10 {
		t.Errorf("expected %d errors, got %d", workers*perWorker/10, sum.ErrorCount)
	}
	if sum.TotalCount < sum.ErrorCount {
		t.Error("errors exceed total")
	}
	if agg.Concurrent() != 0 {
		t.Errorf("expected no calls in flight, got %d", agg.Concurrent())
	}
	if agg.Peak() < 1 || agg.Peak() > workers {
		t.Errorf("unexpected peak %d", agg.Peak())
	}
}

func BenchmarkRecord(b *testing.B) {
	agg := New(10000, 60)
	b.RunParallel(func(pb *testing.PB) {
		i := int64(0)
		for pb.Next() {
			agg.Record("bench", i%500, true)
			i++
		}
	})
}

func BenchmarkSnapshot(b *testing.B) {
	agg := New(10000, 60)
	for i := int64(0); i < 10000; i++ {
		agg.Record("bench", i%500, true)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		agg.Snapshot("bench")
	}
}
