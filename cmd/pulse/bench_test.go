package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"mercator-hq/pulse/pkg/cli"
	"mercator-hq/pulse/pkg/collector"
	"mercator-hq/pulse/pkg/config"
)

func newLocalCollector(t *testing.T) *collector.LocalOnly {
	t.Helper()
	cfg := config.NewDefault()
	cfg.Collector.Mode = config.ModeLocal
	c := collector.NewLocal(cfg)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return c
}

func TestRunLoad(t *testing.T) {
	c := newLocalCollector(t)
	load := loadSpec{Calls: 2000, Concurrency: 8, Endpoints: 4, Callers: 10}

	res := runLoad(context.Background(), c, load, cli.NewProgressReporter(io.Discard))

	if res.Calls != 2000 {
		t.Errorf("Calls = %d, want 2000", res.Calls)
	}
	if res.Errors != 0 {
		t.Errorf("Errors = %d, want 0", res.Errors)
	}
	if got := c.Aggregator().TotalRequests(); got != 2000 {
		t.Errorf("TotalRequests() = %d, want 2000", got)
	}
	if got := len(c.Aggregator().Endpoints()); got != 4 {
		t.Errorf("endpoints = %d, want 4", got)
	}
	if c.Status().Concurrent != 0 {
		t.Errorf("Concurrent = %d after run, want 0", c.Status().Concurrent)
	}

	slowest := c.SlowestEndpoints(context.Background(), 1)
	if len(slowest) != 1 || slowest[0].Endpoint != "BenchService.method03" {
		t.Errorf("slowest = %+v, want BenchService.method03", slowest)
	}
}

func TestRunLoadAllErrors(t *testing.T) {
	c := newLocalCollector(t)
	load := loadSpec{Calls: 100, Concurrency: 4, Endpoints: 1, ErrorRate: 1}

	res := runLoad(context.Background(), c, load, cli.NewProgressReporter(io.Discard))

	if res.Errors != 100 {
		t.Errorf("Errors = %d, want 100", res.Errors)
	}
	if rate := c.GlobalErrorRate(context.Background()); rate != 1 {
		t.Errorf("GlobalErrorRate() = %v, want 1", rate)
	}
}

func TestRunLoadCancelled(t *testing.T) {
	c := newLocalCollector(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	buf := &bytes.Buffer{}
	res := runLoad(ctx, c, loadSpec{Calls: 1000}, cli.NewProgressReporter(buf))

	if res.Calls != 0 {
		t.Errorf("Calls = %d, want 0", res.Calls)
	}
	if !strings.Contains(buf.String(), "Error:") {
		t.Errorf("progress should report the cancellation: %q", buf.String())
	}
}

func TestSyntheticLatency(t *testing.T) {
	for idx := range 3 {
		base := int64(5 * (idx + 1))
		for range 100 {
			if got := syntheticLatency(idx); got < base {
				t.Fatalf("syntheticLatency(%d) = %d, below base %d", idx, got, base)
			}
		}
	}
}

func TestPrintBench(t *testing.T) {
	c := newLocalCollector(t)
	res := runLoad(context.Background(), c, loadSpec{Calls: 50, Endpoints: 2}, cli.NewProgressReporter(io.Discard))
	res.Duration = 2 * time.Second

	t.Run("table", func(t *testing.T) {
		buf := &bytes.Buffer{}
		if err := printBench(buf, cli.FormatTable, res, c.SlowestEndpoints(context.Background(), 5), c.Status()); err != nil {
			t.Fatalf("printBench() error = %v", err)
		}
		for _, want := range []string{"Calls:       50", "25 calls/s", "ENDPOINT", "BenchService.method01"} {
			if !strings.Contains(buf.String(), want) {
				t.Errorf("output missing %q:\n%s", want, buf.String())
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		if err := printBench(buf, cli.FormatJSON, res, c.SlowestEndpoints(context.Background(), 5), c.Status()); err != nil {
			t.Fatalf("printBench() error = %v", err)
		}
		var got struct {
			Result  benchResult `json:"result"`
			Slowest []struct {
				Endpoint string `json:"endpoint"`
			} `json:"slowest"`
		}
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got.Result.Calls != 50 || len(got.Slowest) != 2 {
			t.Errorf("got %+v", got)
		}
	})
}
