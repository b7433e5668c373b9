package failover_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/pulse/pkg/config"
	"mercator-hq/pulse/pkg/failover"
	"mercator-hq/pulse/pkg/store"
	"mercator-hq/pulse/pkg/store/storetest"
	"mercator-hq/pulse/pkg/telemetry/metrics"
)

func testConfig() config.FailoverConfig {
	return config.FailoverConfig{
		ProbeInterval:      time.Second,
		ProbeTimeout:       200 * time.Millisecond,
		FailureThreshold:   3,
		QueueCapacity:      10,
		DrainInterval:      time.Second,
		DrainBatchSize:     5,
		DrainFollowup:      5 * time.Millisecond,
		RecordTTL:          time.Hour,
		NormalSampleRate:   1.0,
		FallbackSampleRate: 0.1,
		HeartbeatInterval:  time.Second,
	}
}

type switchProbe struct {
	down atomic.Bool
}

func (p *switchProbe) check(ctx context.Context) error {
	if p.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

type fakeReplayer struct {
	mu      sync.Mutex
	batches [][]failover.QueuedRecord
	err     error
}

func (r *fakeReplayer) ReplayBatch(ctx context.Context, records []failover.QueuedRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, append([]failover.QueuedRecord(nil), records...))
	return nil
}

func (r *fakeReplayer) replayed() []failover.QueuedRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []failover.QueuedRecord
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func (r *fakeReplayer) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func record(i int, at time.Time) failover.QueuedRecord {
	return failover.QueuedRecord{
		Endpoint:  fmt.Sprintf("OrderService.get%d", i),
		LatencyMs: int64(i),
		Success:   true,
		Timestamp: at,
	}
}

func TestManager_ThreeFailuresThenRecoveryReplays(t *testing.T) {
	probe := &switchProbe{}
	replayer := &fakeReplayer{}
	m := failover.New(testConfig(), probe.check, failover.WithInstanceID("test-1"))
	m.SetReplayer(replayer)
	ctx := context.Background()

	probe.down.Store(true)
	require.Error(t, m.Probe(ctx))
	require.Error(t, m.Probe(ctx))
	assert.Equal(t, failover.StateHealthy, m.State(), "two failures must not degrade")
	assert.Equal(t, 1.0, m.SampleRate())

	require.Error(t, m.Probe(ctx))
	assert.Equal(t, failover.StateDegraded, m.State())
	assert.Equal(t, 0.1, m.SampleRate())
	assert.True(t, m.Status().FallbackActive)

	called := false
	assert.False(t, m.Run(func() error { called = true; return nil }))
	assert.False(t, called, "operations are skipped while degraded")

	now := time.Now()
	for i := range 3 {
		m.QueueForLater(record(i, now))
	}
	assert.Equal(t, 3, m.BacklogLen())

	n, err := m.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "drain does nothing while degraded")

	probe.down.Store(false)
	require.NoError(t, m.Probe(ctx))
	assert.Equal(t, failover.StateHealthy, m.State())
	assert.Zero(t, m.ConsecutiveFailures())

	require.Eventually(t, func() bool {
		return len(replayer.replayed()) == 3
	}, time.Second, 5*time.Millisecond, "recovery schedules an immediate drain")
	assert.Zero(t, m.BacklogLen())
	assert.Equal(t, "OrderService.get0", replayer.replayed()[0].Endpoint)
}

func TestManager_OperationFailuresEscalate(t *testing.T) {
	m := failover.New(testConfig(), (&switchProbe{}).check)
	failing := func() (int, error) { return 0, errors.New("timeout") }

	assert.Equal(t, -1, failover.ExecuteWithFallback(m, failing, -1))
	assert.Equal(t, -1, failover.ExecuteWithFallback(m, failing, -1))
	assert.Equal(t, 2, m.ConsecutiveFailures())

	assert.Equal(t, 7, failover.ExecuteWithFallback(m, func() (int, error) { return 7, nil }, -1))
	assert.Zero(t, m.ConsecutiveFailures(), "success resets the failure counter")

	for range 3 {
		failover.ExecuteWithFallback(m, failing, -1)
	}
	assert.True(t, m.IsDegraded())

	calls := 0
	got := failover.ExecuteWithFallback(m, func() (int, error) { calls++; return 1, nil }, -1)
	assert.Equal(t, -1, got)
	assert.Zero(t, calls)
}

func TestBacklog_BoundedEvictsOldest(t *testing.T) {
	b := failover.NewBacklog(10)
	now := time.Now()

	evicted := 0
	for i := range 15 {
		evicted += b.Push(record(i, now))
	}

	assert.Equal(t, 10, b.Len())
	assert.Equal(t, 5, evicted)

	out := b.Pop(100)
	require.Len(t, out, 10)
	assert.Equal(t, int64(5), out[0].LatencyMs)
	assert.Equal(t, int64(14), out[9].LatencyMs)
	assert.Zero(t, b.Len())
}

func TestBacklog_ConcurrentPushStaysBounded(t *testing.T) {
	b := failover.NewBacklog(100)
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 1000 {
				b.Push(record(w*1000+i, time.Now()))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, b.Len())
}

func TestManager_Drain(t *testing.T) {
	tests := map[string]struct {
		queued      int
		expiredAt   int
		replayErr   error
		wantErr     bool
		wantReplay  int
		wantBacklog int
	}{
		"replays one batch": {
			queued:      3,
			wantReplay:  3,
			wantBacklog: 0,
		},
		"discards expired records": {
			queued:      4,
			expiredAt:   2,
			wantReplay:  2,
			wantBacklog: 0,
		},
		"failed replay requeues": {
			queued:      3,
			replayErr:   errors.New("write failed"),
			wantErr:     true,
			wantBacklog: 3,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			clk := &clock{now: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)}
			replayer := &fakeReplayer{err: test.replayErr}
			m := failover.New(testConfig(), (&switchProbe{}).check, failover.WithClock(clk.Now))
			m.SetReplayer(replayer)

			for i := range test.queued {
				at := clk.Now()
				if i < test.expiredAt {
					at = at.Add(-25 * time.Hour)
				}
				m.QueueForLater(record(i, at))
			}

			n, err := m.Drain(context.Background())
			if test.wantErr {
				require.Error(t, err)
				assert.Equal(t, 1, m.ConsecutiveFailures())
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, test.wantReplay, n)
			assert.Len(t, replayer.replayed(), test.wantReplay)
			assert.Equal(t, test.wantBacklog, m.BacklogLen())
		})
	}
}

func TestManager_DrainFollowsUpWhileDataRemains(t *testing.T) {
	cfg := testConfig()
	cfg.QueueCapacity = 20
	replayer := &fakeReplayer{}
	m := failover.New(cfg, (&switchProbe{}).check)
	m.SetReplayer(replayer)

	for i := range 12 {
		m.QueueForLater(record(i, time.Now()))
	}

	n, err := m.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n, "a drain is bounded by the batch size")

	require.Eventually(t, func() bool {
		return m.BacklogLen() == 0 && len(replayer.replayed()) == 12
	}, time.Second, 5*time.Millisecond)
}

type replayFunc func(ctx context.Context, records []failover.QueuedRecord) error

func (f replayFunc) ReplayBatch(ctx context.Context, records []failover.QueuedRecord) error {
	return f(ctx, records)
}

func droppedRecords(t *testing.T, reg *prometheus.Registry, reason string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "test_failover_backlog_dropped_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "reason" && lp.GetValue() == reason {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestManager_FailedReplayCountsRequeueEvictions(t *testing.T) {
	enabled := true
	reg := prometheus.NewRegistry()
	mc := metrics.NewCollector(&config.MetricsConfig{Enabled: &enabled, Namespace: "test"}, reg)

	m := failover.New(testConfig(), (&switchProbe{}).check, failover.WithMetrics(mc))
	now := time.Now()
	for i := range 10 {
		m.QueueForLater(record(i, now))
	}

	// Records arriving during the replay refill the backlog to capacity.
	m.SetReplayer(replayFunc(func(ctx context.Context, records []failover.QueuedRecord) error {
		for i := range len(records) {
			m.QueueForLater(record(100+i, now))
		}
		return errors.New("write failed")
	}))

	_, err := m.Drain(context.Background())
	require.Error(t, err)
	assert.Equal(t, 10, m.BacklogLen())
	assert.Equal(t, 5.0, droppedRecords(t, reg, "evicted"), "requeued records evict the oldest entries")
}

func TestManager_DrainWithoutReplayer(t *testing.T) {
	m := failover.New(testConfig(), (&switchProbe{}).check)
	m.QueueForLater(record(1, time.Now()))

	_, err := m.Drain(context.Background())
	assert.ErrorIs(t, err, failover.ErrNoReplayer)
	assert.Equal(t, 1, m.BacklogLen())
}

func TestManager_SetNormalSampleRate(t *testing.T) {
	tests := map[string]struct {
		rate float64
		want float64
	}{
		"in range":   {rate: 0.5, want: 0.5},
		"too low":    {rate: 0, want: failover.MinSampleRate},
		"negative":   {rate: -1, want: failover.MinSampleRate},
		"too high":   {rate: 3, want: failover.MaxSampleRate},
		"upper edge": {rate: 1, want: 1},
	}

	m := failover.New(testConfig(), (&switchProbe{}).check)
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			m.SetNormalSampleRate(test.rate)
			assert.Equal(t, test.want, m.SampleRate())
		})
	}
}

func TestManager_ProbeAgainstStore(t *testing.T) {
	srv := storetest.New(t)
	m := failover.New(testConfig(), store.Ping(srv.Client))
	ctx := context.Background()

	require.NoError(t, m.Probe(ctx))

	srv.Fail()
	for range 3 {
		assert.Error(t, m.Probe(ctx))
	}
	assert.True(t, m.IsDegraded())

	srv.Recover()
	require.NoError(t, m.Probe(ctx))
	assert.False(t, m.IsDegraded())
	assert.False(t, m.Status().LastSuccess.IsZero())
}

func TestManager_Heartbeat(t *testing.T) {
	srv := storetest.New(t)
	hb := store.NewHeartbeat(srv.Client, store.NewKeys("log:"), time.Minute)
	ctx := context.Background()

	a := failover.New(testConfig(), store.Ping(srv.Client), failover.WithHeartbeat(hb), failover.WithInstanceID("replica-a"))
	b := failover.New(testConfig(), store.Ping(srv.Client), failover.WithHeartbeat(hb), failover.WithInstanceID("replica-b"))
	a.Start(ctx)
	b.Start(ctx)

	live, err := a.Instances(ctx)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, "replica-a", live[0].ID)
	assert.Equal(t, "replica-b", live[1].ID)

	b.Stop(ctx)
	live, err = a.Instances(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "replica-a", live[0].ID)

	var names []string
	for _, job := range a.Jobs() {
		names = append(names, job.Name)
	}
	assert.Equal(t, []string{"failover.probe", "failover.drain", "failover.heartbeat"}, names)
}

func TestManager_StopDrainsBacklog(t *testing.T) {
	cfg := testConfig()
	cfg.QueueCapacity = 20
	replayer := &fakeReplayer{}
	m := failover.New(cfg, (&switchProbe{}).check)
	m.SetReplayer(replayer)

	for i := range 12 {
		m.QueueForLater(record(i, time.Now()))
	}
	m.Stop(context.Background())

	assert.Zero(t, m.BacklogLen())
	assert.Len(t, replayer.replayed(), 12)
}

func TestNewInstanceID(t *testing.T) {
	a, b := failover.NewInstanceID(), failover.NewInstanceID()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^.+-[0-9a-f]{8}$`, a)
}
