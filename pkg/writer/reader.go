package writer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc/pool"

	"mercator-hq/pulse/pkg/aggregator"
	"mercator-hq/pulse/pkg/failover"
	"mercator-hq/pulse/pkg/store"
)

// GlobalEndpointMetrics is the fleet-wide view of one endpoint for one day.
type GlobalEndpointMetrics struct {
	aggregator.EndpointSummary
	Day string `json:"day"`
}

// ErrorCount is an entry of the error ranking.
type ErrorCount struct {
	Endpoint string `json:"endpoint"`
	Errors   int64  `json:"errors"`
}

var quantiles = [3]float64{0.50, 0.95, 0.99}

// GlobalMetrics reads today's fleet-wide metrics of endpoint. It reports
// false when nothing was recorded or the store is unavailable.
func (w *Writer) GlobalMetrics(ctx context.Context, endpoint string) (GlobalEndpointMetrics, bool) {
	type result struct {
		m  GlobalEndpointMetrics
		ok bool
	}
	r := failover.ExecuteWithFallback(w.failover, func() (result, error) {
		m, ok, err := w.readEndpoint(ctx, store.Sanitize(aggregator.NormalizeEndpoint(endpoint)))
		return result{m, ok}, err
	}, result{})
	return r.m, r.ok
}

// AllEndpointMetrics reads today's metrics of every endpoint in the store.
// Endpoints are discovered with SCAN and read with bounded concurrency.
func (w *Writer) AllEndpointMetrics(ctx context.Context) map[string]GlobalEndpointMetrics {
	return failover.ExecuteWithFallback(w.failover, func() (map[string]GlobalEndpointMetrics, error) {
		return w.readAll(ctx)
	}, map[string]GlobalEndpointMetrics{})
}

// SlowestEndpoints returns up to limit endpoints by average latency.
func (w *Writer) SlowestEndpoints(ctx context.Context, limit int) []aggregator.EndpointSummary {
	return aggregator.SortSlowest(summaries(w.AllEndpointMetrics(ctx)), limit)
}

// ErrorEndpoints returns up to limit endpoints with errors by error rate.
func (w *Writer) ErrorEndpoints(ctx context.Context, limit int) []aggregator.EndpointSummary {
	return aggregator.SortErrors(summaries(w.AllEndpointMetrics(ctx)), limit)
}

// GlobalErrorRate returns today's fleet-wide errors over calls.
func (w *Writer) GlobalErrorRate(ctx context.Context) float64 {
	var total, errors int64
	for _, m := range w.AllEndpointMetrics(ctx) {
		total += m.TotalCount
		errors += m.ErrorCount
	}
	if total == 0 {
		return 0
	}
	return float64(errors) / float64(total)
}

// TopErrorEndpoints reads today's error ranking, most errors first.
func (w *Writer) TopErrorEndpoints(ctx context.Context, limit int) []ErrorCount {
	return failover.ExecuteWithFallback(w.failover, func() ([]ErrorCount, error) {
		stop := int64(-1)
		if limit > 0 {
			stop = int64(limit - 1)
		}
		zs, err := w.client.ZRevRangeWithScores(ctx, w.keys.ErrorRank(w.now()), 0, stop).Result()
		if err != nil {
			return nil, fmt.Errorf("read error ranking: %w", err)
		}
		out := make([]ErrorCount, 0, len(zs))
		for _, z := range zs {
			name, _ := z.Member.(string)
			out = append(out, ErrorCount{Endpoint: name, Errors: int64(z.Score)})
		}
		return out, nil
	}, nil)
}

func summaries(all map[string]GlobalEndpointMetrics) map[string]aggregator.EndpointSummary {
	out := make(map[string]aggregator.EndpointSummary, len(all))
	for name, m := range all {
		out[name] = m.EndpointSummary
	}
	return out
}

func (w *Writer) scanEndpoints(ctx context.Context) ([]string, error) {
	var (
		cursor    uint64
		endpoints []string
	)
	pattern := w.keys.StatPattern(w.now())
	for {
		keys, next, err := w.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan endpoints: %w", err)
		}
		for _, key := range keys {
			if name, ok := w.keys.EndpointFromStat(key); ok {
				endpoints = append(endpoints, name)
			}
		}
		if next == 0 {
			return endpoints, nil
		}
		cursor = next
	}
}

func (w *Writer) readAll(ctx context.Context) (map[string]GlobalEndpointMetrics, error) {
	endpoints, err := w.scanEndpoints(ctx)
	if err != nil {
		return nil, err
	}

	p := pool.NewWithResults[GlobalEndpointMetrics]().
		WithContext(ctx).
		WithMaxGoroutines(max(w.cfg.ReadConcurrency, 1))
	for _, name := range endpoints {
		p.Go(func(ctx context.Context) (GlobalEndpointMetrics, error) {
			m, _, err := w.readEndpoint(ctx, name)
			return m, err
		})
	}
	results, err := p.Wait()
	if err != nil {
		return nil, err
	}

	out := make(map[string]GlobalEndpointMetrics, len(results))
	for _, m := range results {
		if m.Endpoint != "" {
			out[m.Endpoint] = m
		}
	}
	return out, nil
}

// readEndpoint reads the stat hash, the latency ranks and the unique-caller
// estimate of one sanitized endpoint name.
func (w *Writer) readEndpoint(ctx context.Context, name string) (GlobalEndpointMetrics, bool, error) {
	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}

	now := w.now()
	statKey := w.keys.Stat(name, now)
	latencyKey := w.keys.Latency(name, now)

	var (
		stat  *redis.MapStringStringCmd
		card  *redis.IntCmd
		uniqs *redis.IntCmd
	)
	_, err := w.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		stat = pipe.HGetAll(ctx, statKey)
		card = pipe.ZCard(ctx, latencyKey)
		uniqs = pipe.PFCount(ctx, w.keys.Unique(name, now))
		return nil
	})
	if err != nil {
		return GlobalEndpointMetrics{}, false, fmt.Errorf("read %s: %w", name, err)
	}

	fields := stat.Val()
	if len(fields) == 0 {
		return GlobalEndpointMetrics{}, false, nil
	}

	m := GlobalEndpointMetrics{Day: store.Day(now)}
	m.Endpoint = fields[store.FieldEndpoint]
	if m.Endpoint == "" {
		m.Endpoint = name
	}
	m.TotalCount = parseInt(fields[store.FieldTotalCount])
	m.ErrorCount = parseInt(fields[store.FieldErrorCount])
	m.TotalLatency = parseInt(fields[store.FieldTotalLatency])
	m.MaxLatency = parseInt(fields[store.FieldMaxLatency])
	m.MinLatency = parseInt(fields[store.FieldMinLatency])
	m.UniqueCallers = uint64(max(uniqs.Val(), 0))
	if n := parseInt(fields[store.FieldLatencyCount]); n > 0 {
		m.AvgLatency = float64(m.TotalLatency) / float64(n)
	}
	if m.TotalCount > 0 {
		m.ErrorRate = float64(m.ErrorCount) / float64(m.TotalCount)
	}

	if n := card.Val(); n > 0 {
		ranks, err := w.readRanks(ctx, latencyKey, n)
		if err != nil {
			return GlobalEndpointMetrics{}, false, err
		}
		m.P50, m.P95, m.P99 = ranks[0], ranks[1], ranks[2]
	}
	return m, true, nil
}

// readRanks reads the samples at rank floor(n*q), clamped to n-1.
func (w *Writer) readRanks(ctx context.Context, key string, n int64) ([3]int64, error) {
	var (
		out  [3]int64
		cmds [3]*redis.ZSliceCmd
	)
	_, err := w.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, q := range quantiles {
			rank := min(int64(float64(n)*q), n-1)
			cmds[i] = pipe.ZRangeWithScores(ctx, key, rank, rank)
		}
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("read ranks of %s: %w", key, err)
	}
	for i, cmd := range cmds {
		if zs := cmd.Val(); len(zs) > 0 {
			out[i] = int64(zs[0].Score)
		}
	}
	return out, nil
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
