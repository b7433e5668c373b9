package writer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"mercator-hq/pulse/pkg/aggregator"
	"mercator-hq/pulse/pkg/config"
	"mercator-hq/pulse/pkg/failover"
	"mercator-hq/pulse/pkg/schedule"
	"mercator-hq/pulse/pkg/store"
	"mercator-hq/pulse/pkg/telemetry/metrics"
	"mercator-hq/pulse/pkg/telemetry/tracing"
)

// Flush results reported to metrics.
const (
	resultOK     = "ok"
	resultFailed = "failed"
	resultQueued = "queued"
)

// Writer batches observations and writes them to the shared store with
// pipelined commands. All store access is gated by the failover manager;
// batches that cannot be written go to its backlog.
type Writer struct {
	client     store.Client
	keys       store.Keys
	ttl        config.TTLConfig
	cfg        config.WriterConfig
	failover   *failover.Manager
	instanceID string
	seq        atomic.Uint64

	mu        sync.Mutex
	buf       []failover.QueuedRecord
	lastFlush time.Time

	metrics *metrics.Collector
	tracer  *tracing.Tracer
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) { w.logger = l }
}

// WithMetrics sets the self-metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(w *Writer) { w.metrics = c }
}

// WithTracer sets the tracer.
func WithTracer(t *tracing.Tracer) Option {
	return func(w *Writer) { w.tracer = t }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// New creates a Writer and registers it as the replay path of fm.
func New(client store.Client, keys store.Keys, fm *failover.Manager, cfg config.WriterConfig, ttl config.TTLConfig, opts ...Option) *Writer {
	w := &Writer{
		client:     client,
		keys:       keys,
		ttl:        ttl,
		cfg:        cfg,
		failover:   fm,
		instanceID: fm.InstanceID(),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "writer")
	w.lastFlush = w.now()
	w.buf = make([]failover.QueuedRecord, 0, cfg.BatchSize)
	fm.SetReplayer(w)
	return w
}

// Record buffers one call. The buffer is flushed when it reaches BatchSize
// records or FlushInterval has passed since the last flush.
func (w *Writer) Record(endpoint string, latencyMs int64, success bool, callerID string) {
	w.enqueue(failover.QueuedRecord{
		Endpoint:  aggregator.NormalizeEndpoint(endpoint),
		LatencyMs: latencyMs,
		Success:   success,
		CallerID:  callerID,
	})
}

// RecordError buffers a failed call without a latency sample.
func (w *Writer) RecordError(endpoint string) {
	w.enqueue(failover.QueuedRecord{
		Endpoint:  aggregator.NormalizeEndpoint(endpoint),
		ErrorOnly: true,
	})
}

func (w *Writer) enqueue(r failover.QueuedRecord) {
	now := w.now()
	r.Timestamp = now

	w.mu.Lock()
	w.buf = append(w.buf, r)
	var batch []failover.QueuedRecord
	if len(w.buf) >= w.cfg.BatchSize || now.Sub(w.lastFlush) >= w.cfg.FlushInterval {
		batch = w.swap(now)
	}
	w.mu.Unlock()

	if batch != nil {
		w.flushBatch(context.Background(), batch)
	}
}

// swap takes the buffered records. Callers hold mu.
func (w *Writer) swap(now time.Time) []failover.QueuedRecord {
	batch := w.buf
	w.buf = make([]failover.QueuedRecord, 0, w.cfg.BatchSize)
	w.lastFlush = now
	return batch
}

// Pending returns the number of buffered records.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf)
}

// Flush writes all buffered records. An empty buffer issues no store
// commands. Records that cannot be written are queued in the backlog.
func (w *Writer) Flush(ctx context.Context) {
	w.mu.Lock()
	var batch []failover.QueuedRecord
	if len(w.buf) > 0 {
		batch = w.swap(w.now())
	}
	w.mu.Unlock()

	w.flushBatch(ctx, batch)
}

func (w *Writer) flushBatch(ctx context.Context, batch []failover.QueuedRecord) {
	if len(batch) == 0 {
		return
	}

	if w.failover.IsDegraded() {
		w.queue(batch)
		w.metrics.RecordFlush(resultQueued, len(batch), 0)
		return
	}

	start := time.Now()
	var writeErr error
	ok := w.failover.Run(func() error {
		writeErr = w.write(ctx, batch)
		return writeErr
	})
	if !ok {
		w.queue(batch)
		w.metrics.RecordFlush(resultFailed, len(batch), time.Since(start))
		w.logger.Warn("Flush failed, records queued for replay",
			"records", len(batch),
			"error", writeErr,
		)
		return
	}
	w.metrics.RecordFlush(resultOK, len(batch), time.Since(start))
}

func (w *Writer) queue(batch []failover.QueuedRecord) {
	for _, r := range batch {
		w.failover.QueueForLater(r)
	}
}

// ReplayBatch writes queued records without touching the failover state;
// the manager accounts for the result.
func (w *Writer) ReplayBatch(ctx context.Context, records []failover.QueuedRecord) error {
	return w.write(ctx, records)
}

// group accumulates the records of one endpoint and day.
type group struct {
	endpoint   string
	at         time.Time
	total      int64
	errors     int64
	sum        int64
	latencies  []int64
	maxLatency int64
	minLatency int64
	callers    []any
}

func groupRecords(records []failover.QueuedRecord) []*group {
	index := make(map[string]*group)
	var order []*group

	for _, r := range records {
		id := store.Day(r.Timestamp) + "\x00" + r.Endpoint
		g, ok := index[id]
		if !ok {
			g = &group{endpoint: r.Endpoint, at: r.Timestamp, minLatency: -1}
			index[id] = g
			order = append(order, g)
		}

		g.total++
		if !r.Success || r.ErrorOnly {
			g.errors++
		}
		if r.CallerID != "" {
			g.callers = append(g.callers, r.CallerID)
		}
		if r.ErrorOnly {
			continue
		}
		g.sum += r.LatencyMs
		g.latencies = append(g.latencies, r.LatencyMs)
		g.maxLatency = max(g.maxLatency, r.LatencyMs)
		if g.minLatency < 0 || r.LatencyMs < g.minLatency {
			g.minLatency = r.LatencyMs
		}
	}
	return order
}

// write sends records in two pipelines: a read of the stored max/min, then
// all increments and conditional updates. Concurrent writers may race on
// max/min; the values are monitoring-grade.
func (w *Writer) write(ctx context.Context, records []failover.QueuedRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}

	ctx, span := w.tracer.Start(ctx, "writer.flush")
	groups := groupRecords(records)
	commands := 0
	defer func() {
		tracing.SetFlushAttributes(span, len(records), len(groups), commands)
		tracing.End(span, err)
	}()

	bounds := make([]*redis.SliceCmd, len(groups))
	_, err = w.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, g := range groups {
			if len(g.latencies) > 0 {
				bounds[i] = pipe.HMGet(ctx, w.keys.Stat(g.endpoint, g.at), store.FieldMaxLatency, store.FieldMinLatency)
				commands++
			}
		}
		return nil
	})
	if err != nil && err != redis.Nil {
		return fmt.Errorf("read latency bounds: %w", err)
	}

	_, err = w.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, g := range groups {
			commands += w.writeGroup(ctx, pipe, g, bounds[i])
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write %d records: %w", len(records), err)
	}
	return nil
}

func (w *Writer) writeGroup(ctx context.Context, pipe redis.Pipeliner, g *group, bounds *redis.SliceCmd) int {
	statKey := w.keys.Stat(g.endpoint, g.at)
	n := 0

	pipe.HIncrBy(ctx, statKey, store.FieldTotalCount, g.total)
	pipe.HSet(ctx, statKey, store.FieldEndpoint, g.endpoint)
	n += 2
	if g.errors > 0 {
		pipe.HIncrBy(ctx, statKey, store.FieldErrorCount, g.errors)
		pipe.ZIncrBy(ctx, w.keys.ErrorRank(g.at), float64(g.errors), g.endpoint)
		pipe.Expire(ctx, w.keys.ErrorRank(g.at), w.ttl.ErrorRank)
		n += 3
	}

	if len(g.latencies) > 0 {
		pipe.HIncrBy(ctx, statKey, store.FieldTotalLatency, g.sum)
		pipe.HIncrBy(ctx, statKey, store.FieldLatencyCount, int64(len(g.latencies)))
		n += 2

		storedMax, storedMin := parseBounds(bounds)
		if storedMax < 0 || g.maxLatency > storedMax {
			pipe.HSet(ctx, statKey, store.FieldMaxLatency, g.maxLatency)
			n++
		}
		if storedMin < 0 || g.minLatency < storedMin {
			pipe.HSet(ctx, statKey, store.FieldMinLatency, g.minLatency)
			n++
		}

		latencyKey := w.keys.Latency(g.endpoint, g.at)
		members := make([]redis.Z, len(g.latencies))
		for i, l := range g.latencies {
			members[i] = redis.Z{Score: float64(l), Member: w.nextMember()}
		}
		pipe.ZAdd(ctx, latencyKey, members...)
		pipe.Expire(ctx, latencyKey, w.ttl.Latency)
		n += 2
	}

	if len(g.callers) > 0 {
		uvKey := w.keys.Unique(g.endpoint, g.at)
		pipe.PFAdd(ctx, uvKey, g.callers...)
		pipe.Expire(ctx, uvKey, w.ttl.Unique)
		n += 2
	}

	pipe.Expire(ctx, statKey, w.ttl.Stat)
	return n + 1
}

// nextMember returns the latency set member for the next sample. Members
// cycle through LatencySetSize slots per replica so a new sample replaces
// the oldest one of the same replica.
func (w *Writer) nextMember() string {
	seq := w.seq.Add(1) - 1
	if size := uint64(w.cfg.LatencySetSize); size > 0 {
		seq %= size
	}
	return w.instanceID + ":" + strconv.FormatUint(seq, 10)
}

// parseBounds returns the stored max and min, or -1 when absent.
func parseBounds(cmd *redis.SliceCmd) (storedMax, storedMin int64) {
	storedMax, storedMin = -1, -1
	if cmd == nil {
		return
	}
	vals, err := cmd.Result()
	if err != nil || len(vals) != 2 {
		return
	}
	if s, ok := vals[0].(string); ok {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			storedMax = v
		}
	}
	if s, ok := vals[1].(string); ok {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			storedMin = v
		}
	}
	return
}

// Jobs returns the periodic flush job.
func (w *Writer) Jobs() []schedule.Job {
	return []schedule.Job{{
		Name:  "writer.flush",
		Every: w.cfg.FlushInterval,
		Run: func(ctx context.Context) error {
			w.Flush(ctx)
			return nil
		},
	}}
}
