package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/pulse/pkg/cli"
	"mercator-hq/pulse/pkg/collector"
	"mercator-hq/pulse/pkg/config"
	"mercator-hq/pulse/pkg/store/storetest"
)

func seededFleet(t *testing.T) *collector.Distributed {
	t.Helper()
	srv := storetest.New(t)

	cfg := config.NewDefault()
	cfg.Collector.Mode = config.ModeDistributed
	cfg.Collector.InstanceID = "replica-a"

	d, err := collector.NewDistributed(cfg,
		collector.WithClient(srv.Client),
		collector.WithRand(func() float64 { return 0 }),
	)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	t.Cleanup(func() { _ = d.Stop(ctx) })

	for i := 1; i <= 100; i++ {
		d.Record("OrderService.list", int64(i), true, "caller-1")
		d.Record("UserService.get", int64(i*10), true, "caller-2")
	}
	for range 3 {
		d.RecordError("OrderService.list")
	}
	d.Writer().Flush(ctx)
	return d
}

func TestCollectReport(t *testing.T) {
	d := seededFleet(t)

	r, err := collectReport(context.Background(), d, "OrderService.list", 5)
	require.NoError(t, err)

	require.Len(t, r.Instances, 1)
	assert.Equal(t, "replica-a", r.Instances[0].ID)

	require.Len(t, r.Slowest, 2)
	assert.Equal(t, "UserService.get", r.Slowest[0].Endpoint)

	require.Len(t, r.Errors, 1)
	assert.Equal(t, "OrderService.list", r.Errors[0].Endpoint)
	assert.EqualValues(t, 3, r.Errors[0].Errors)

	require.NotNil(t, r.Endpoint)
	assert.Equal(t, collector.SourceGlobal, r.Endpoint.Source)
	assert.EqualValues(t, 103, r.Endpoint.TotalCount)
	assert.InDelta(t, 3.0/203, r.ErrorRate, 1e-9)
}

func TestCollectReportUnknownEndpoint(t *testing.T) {
	d := seededFleet(t)

	_, err := collectReport(context.Background(), d, "Nope.nothing", 5)
	assert.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	d := seededFleet(t)
	r, err := collectReport(context.Background(), d, "", 5)
	require.NoError(t, err)

	t.Run("table", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, printReport(buf, cli.FormatTable, r))
		out := buf.String()
		assert.Contains(t, out, "1 live instances")
		assert.Contains(t, out, "Slowest endpoints")
		assert.Less(t, strings.Index(out, "UserService.get"), strings.Index(out, "Most errors"))
	})

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, printReport(buf, cli.FormatJSON, r))
		var got map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.NotContains(t, got, "endpoint")
		assert.Len(t, got["slowest"], 2)
	})
}
