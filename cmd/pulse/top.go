package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/pulse/pkg/cli"
	"mercator-hq/pulse/pkg/collector"
	"mercator-hq/pulse/pkg/config"
	"mercator-hq/pulse/pkg/store"
)

var topFlags struct {
	limit    int
	endpoint string
	output   string
	timeout  time.Duration
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Show fleet-wide slowest and failing endpoints",
	Long: `Read today's aggregates from the shared store and print the slowest
endpoints, the endpoints with the most errors and the live replicas.

Examples:
  # Top 10 by p99 and by error count
  pulse top

  # Details for a single endpoint as JSON
  pulse top --endpoint OrderService.list --output json`,
	RunE: runTop,
}

func init() {
	rootCmd.AddCommand(topCmd)

	topCmd.Flags().IntVar(&topFlags.limit, "limit", 10, "endpoints to show per ranking")
	topCmd.Flags().StringVar(&topFlags.endpoint, "endpoint", "", "show a single endpoint")
	topCmd.Flags().StringVarP(&topFlags.output, "output", "o", "table", "output format: text, table, json")
	topCmd.Flags().DurationVar(&topFlags.timeout, "timeout", 10*time.Second, "overall read timeout")
}

// fleetReport is what "pulse top" prints.
type fleetReport struct {
	Day       string                     `json:"day"`
	ErrorRate float64                    `json:"errorRate"`
	Instances []store.Instance           `json:"instances"`
	Slowest   endpointRows               `json:"slowest"`
	Errors    errorRows                  `json:"errors"`
	Endpoint  *collector.EndpointMetrics `json:"endpoint,omitempty"`
}

func runTop(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(topFlags.output)
	if err != nil {
		return cli.NewConfigError("output", err.Error())
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Collector.Mode = config.ModeDistributed
	if err := config.Validate(cfg); err != nil {
		return cli.WrapConfigError("invalid configuration", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), topFlags.timeout)
	defer cancel()

	d, err := collector.NewDistributed(cfg, collector.WithLogger(logger))
	if err != nil {
		return cli.NewCommandError("top", err)
	}
	defer func() { _ = d.Stop(context.Background()) }()

	if err := d.Failover().Probe(ctx); err != nil {
		return cli.NewCommandError("top", fmt.Errorf("shared store unreachable: %w", err))
	}

	report, err := collectReport(ctx, d, topFlags.endpoint, topFlags.limit)
	if err != nil {
		return cli.NewCommandError("top", err)
	}
	return printReport(cmd.OutOrStdout(), format, report)
}

func collectReport(ctx context.Context, d *collector.Distributed, endpoint string, limit int) (fleetReport, error) {
	instances, err := d.Failover().Instances(ctx)
	if err != nil {
		return fleetReport{}, fmt.Errorf("failed to list instances: %w", err)
	}

	r := fleetReport{
		Day:       store.Day(time.Now()),
		ErrorRate: d.GlobalErrorRate(ctx),
		Instances: instances,
		Slowest:   d.SlowestEndpoints(ctx, limit),
		Errors:    d.Writer().TopErrorEndpoints(ctx, limit),
	}
	if endpoint != "" {
		m, ok := d.GlobalMetrics(ctx, endpoint)
		if !ok {
			return fleetReport{}, fmt.Errorf("no metrics for endpoint %q", endpoint)
		}
		r.Endpoint = &m
	}
	return r, nil
}

func printReport(w io.Writer, format cli.OutputFormat, r fleetReport) error {
	f := cli.NewFormatter(format)
	if format == cli.FormatJSON {
		return f.FormatTo(w, r)
	}

	fmt.Fprintf(w, "Day %s, %d live instances, error rate %.2f%%\n\n", r.Day, len(r.Instances), r.ErrorRate*100)

	if r.Endpoint != nil {
		fmt.Fprintf(w, "%s (%s)\n", r.Endpoint.Endpoint, r.Endpoint.Source)
		if err := f.FormatTo(w, endpointRows{r.Endpoint.EndpointSummary}); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Slowest endpoints (average latency)")
	if len(r.Slowest) == 0 {
		fmt.Fprintln(w, "  none")
	} else if err := f.FormatTo(w, r.Slowest); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nMost errors")
	if len(r.Errors) == 0 {
		fmt.Fprintln(w, "  none")
		return nil
	}
	return f.FormatTo(w, r.Errors)
}
