package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"mercator-hq/pulse/pkg/cli"
	"mercator-hq/pulse/pkg/collector"
	"mercator-hq/pulse/pkg/config"
)

var benchFlags struct {
	calls       int
	concurrency int
	endpoints   int
	callers     int
	errorRate   float64
	mode        string
	limit       int
	output      string
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Generate synthetic calls against the collector",
	Long: `Drive the configured collector with synthetic calls and report what it saw.

Each endpoint gets its own latency profile, so the slowest-endpoint ranking
and the adaptive sampler have something to work with. In distributed mode
the records reach the shared store and show up in "pulse top".

Examples:
  # 100k calls over 20 endpoints, local aggregation only
  pulse bench --mode local --calls 100000 --endpoints 20

  # Exercise the shared store with 5% failing calls
  pulse bench --concurrency 64 --error-rate 0.05 --output json`,
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().IntVarP(&benchFlags.calls, "calls", "n", 10000, "total calls to simulate")
	benchCmd.Flags().IntVar(&benchFlags.concurrency, "concurrency", 16, "concurrent callers")
	benchCmd.Flags().IntVar(&benchFlags.endpoints, "endpoints", 10, "distinct endpoints")
	benchCmd.Flags().IntVar(&benchFlags.callers, "callers", 100, "distinct caller ids")
	benchCmd.Flags().Float64Var(&benchFlags.errorRate, "error-rate", 0.01, "fraction of failing calls")
	benchCmd.Flags().StringVar(&benchFlags.mode, "mode", "", "override collector mode (local, distributed)")
	benchCmd.Flags().IntVar(&benchFlags.limit, "limit", 10, "endpoints to show")
	benchCmd.Flags().StringVarP(&benchFlags.output, "output", "o", "table", "output format: text, table, json")
}

// loadSpec describes one synthetic run.
type loadSpec struct {
	Calls       int
	Concurrency int
	Endpoints   int
	Callers     int
	ErrorRate   float64
}

// benchResult is the outcome of a synthetic run.
type benchResult struct {
	Calls    int64         `json:"calls"`
	Errors   int64         `json:"errors"`
	Sampled  int64         `json:"sampled"`
	Duration time.Duration `json:"duration"`
}

// CallsPerSecond is the achieved throughput.
func (r benchResult) CallsPerSecond() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Calls) / r.Duration.Seconds()
}

func runBench(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(benchFlags.output)
	if err != nil {
		return cli.NewConfigError("output", err.Error())
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if benchFlags.mode != "" {
		cfg.Collector.Mode = benchFlags.mode
	}
	if err := config.Validate(cfg); err != nil {
		return cli.WrapConfigError("invalid configuration", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	c, err := collector.New(cfg, collector.WithLogger(logger))
	if err != nil {
		return cli.NewCommandError("bench", err)
	}
	if err := c.Start(ctx); err != nil {
		return cli.NewCommandError("bench", err)
	}

	load := loadSpec{
		Calls:       benchFlags.calls,
		Concurrency: benchFlags.concurrency,
		Endpoints:   benchFlags.endpoints,
		Callers:     benchFlags.callers,
		ErrorRate:   benchFlags.errorRate,
	}

	out := cmd.OutOrStdout()
	var progress cli.ProgressReporter = cli.NewProgressReporter(out)
	if format == cli.FormatJSON {
		progress = cli.NewProgressReporter(io.Discard)
	}
	res := runLoad(ctx, c, load, progress)

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := c.Stop(stopCtx); err != nil {
		return cli.NewCommandError("bench", err)
	}

	return printBench(out, format, res, c.SlowestEndpoints(stopCtx, benchFlags.limit), c.Status())
}

// runLoad issues load.Calls synthetic calls against c with at most
// load.Concurrency in flight.
func runLoad(ctx context.Context, c collector.MetricsCollector, load loadSpec, progress cli.ProgressReporter) benchResult {
	load.Concurrency = max(load.Concurrency, 1)
	load.Endpoints = max(load.Endpoints, 1)
	load.Callers = max(load.Callers, 1)

	var done, errs, sampled atomic.Int64
	progress.Start(int64(load.Calls))

	tickCtx, stopTicker := context.WithCancel(ctx)
	go func() {
		t := time.NewTicker(200 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-t.C:
				n := done.Load()
				progress.Update(n, n)
			}
		}
	}()

	start := time.Now()
	p := pool.New().WithMaxGoroutines(load.Concurrency)
	for i := range load.Calls {
		if ctx.Err() != nil {
			break
		}
		p.Go(func() {
			endpoint := fmt.Sprintf("BenchService.method%02d", i%load.Endpoints)
			caller := fmt.Sprintf("caller-%d", rand.IntN(load.Callers))

			c.RequestStarted()
			if c.ShouldSample(endpoint) {
				sampled.Add(1)
			}
			if rand.Float64() < load.ErrorRate {
				c.RecordError(endpoint)
				errs.Add(1)
			} else {
				c.Record(endpoint, syntheticLatency(i%load.Endpoints), true, caller)
			}
			c.RequestEnded()
			done.Add(1)
		})
	}
	p.Wait()
	stopTicker()

	res := benchResult{
		Calls:    done.Load(),
		Errors:   errs.Load(),
		Sampled:  sampled.Load(),
		Duration: time.Since(start),
	}
	progress.Update(res.Calls, res.Calls)
	if ctx.Err() != nil {
		progress.Error(ctx.Err())
	} else {
		progress.Finish()
	}
	return res
}

// syntheticLatency draws a latency in milliseconds for endpoint index idx.
// Endpoints get progressively slower with an exponential tail.
func syntheticLatency(idx int) int64 {
	base := float64(5 * (idx + 1))
	return int64(base + rand.ExpFloat64()*base/2)
}

func printBench(w io.Writer, format cli.OutputFormat, res benchResult, slowest endpointRows, status collector.Status) error {
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(w, map[string]any{
			"result":  res,
			"slowest": slowest,
			"status":  status,
		})
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Calls:       %d (%d errors)\n", res.Calls, res.Errors)
	fmt.Fprintf(w, "Duration:    %s\n", res.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Throughput:  %.0f calls/s\n", res.CallsPerSecond())
	if res.Calls > 0 {
		fmt.Fprintf(w, "Sampled:     %d (%.1f%%)\n", res.Sampled, float64(res.Sampled)*100/float64(res.Calls))
	}
	fmt.Fprintf(w, "Peak:        %d concurrent\n", status.Peak)
	if status.FallbackActive {
		fmt.Fprintln(w, "Fallback:    active (shared store unavailable)")
	}
	fmt.Fprintln(w)

	if len(slowest) == 0 {
		return nil
	}
	return cli.NewFormatter(format).FormatTo(w, slowest)
}
