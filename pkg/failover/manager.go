package failover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mercator-hq/pulse/pkg/config"
	"mercator-hq/pulse/pkg/schedule"
	"mercator-hq/pulse/pkg/store"
	"mercator-hq/pulse/pkg/telemetry/health"
	"mercator-hq/pulse/pkg/telemetry/metrics"
	"mercator-hq/pulse/pkg/telemetry/tracing"
)

// State is the health state of the shared store as seen by this replica.
type State int32

const (
	// StateHealthy means store operations are attempted.
	StateHealthy State = iota
	// StateDegraded means store operations are skipped and records are
	// queued locally.
	StateDegraded
)

func (s State) String() string {
	if s == StateDegraded {
		return "DEGRADED"
	}
	return "HEALTHY"
}

// CheckStore is the name of the store probe in the health checker.
const CheckStore = "store"

// Sample rate bounds for SetNormalSampleRate.
const (
	MinSampleRate = 0.01
	MaxSampleRate = 1.0
)

var (
	// ErrDegraded is returned for operations skipped while degraded.
	ErrDegraded = errors.New("shared store degraded")

	// ErrNoReplayer is returned by Drain before a replayer is set.
	ErrNoReplayer = errors.New("no replayer configured")
)

// Replayer writes queued records to the shared store in one batch.
type Replayer interface {
	ReplayBatch(ctx context.Context, records []QueuedRecord) error
}

// Status is a point-in-time view of the manager.
type Status struct {
	State               string    `json:"state"`
	FallbackActive      bool      `json:"fallbackActive"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastSuccess         time.Time `json:"lastSuccess,omitzero"`
	Backlog             int       `json:"backlog"`
	BacklogCapacity     int       `json:"backlogCapacity"`
	SampleRate          float64   `json:"sampleRate"`
	InstanceID          string    `json:"instanceId"`
}

// Manager tracks store health, gates store operations and owns the local
// backlog used while the store is unavailable.
type Manager struct {
	cfg        config.FailoverConfig
	instanceID string

	state       atomic.Int32
	failures    atomic.Int32
	lastSuccess atomic.Int64
	normalRate  atomic.Uint64

	backlog   *Backlog
	checker   *health.Checker
	heartbeat *store.Heartbeat

	replayerMu sync.RWMutex
	replayer   Replayer

	drainMu  sync.Mutex
	timerMu  sync.Mutex
	followup *time.Timer
	baseCtx  context.Context
	stopped  atomic.Bool

	metrics *metrics.Collector
	tracer  *tracing.Tracer
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the self-metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// WithTracer sets the tracer.
func WithTracer(t *tracing.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithHeartbeat registers the replica in the shared heartbeat hash.
func WithHeartbeat(hb *store.Heartbeat) Option {
	return func(m *Manager) { m.heartbeat = hb }
}

// WithInstanceID sets the replica id. A random id is generated otherwise.
func WithInstanceID(id string) Option {
	return func(m *Manager) { m.instanceID = id }
}

// New creates a Manager in the healthy state. probe checks the shared store;
// it runs with cfg.ProbeTimeout.
func New(cfg config.FailoverConfig, probe health.CheckFunc, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		backlog: NewBacklog(cfg.QueueCapacity),
		checker: health.New(cfg.ProbeTimeout),
		baseCtx: context.Background(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.instanceID == "" {
		m.instanceID = NewInstanceID()
	}
	m.logger = m.logger.With("component", "failover", "instance", m.instanceID)
	m.checker.RegisterOptionalCheck(CheckStore, probe)
	m.SetNormalSampleRate(cfg.NormalSampleRate)
	return m
}

// NewInstanceID returns "<hostname>-<8 hex chars>".
func NewInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "pulse"
	}
	return host + "-" + uuid.NewString()[:8]
}

// InstanceID returns the replica id.
func (m *Manager) InstanceID() string {
	return m.instanceID
}

// Checker returns the health checker holding the store probe, for mounting
// the readiness endpoint.
func (m *Manager) Checker() *health.Checker {
	return m.checker
}

// SetReplayer sets the batch path used by Drain.
func (m *Manager) SetReplayer(r Replayer) {
	m.replayerMu.Lock()
	defer m.replayerMu.Unlock()
	m.replayer = r
}

// State returns the current state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// IsDegraded reports whether store operations are currently skipped.
func (m *Manager) IsDegraded() bool {
	return m.State() == StateDegraded
}

// ConsecutiveFailures returns the current failure streak.
func (m *Manager) ConsecutiveFailures() int {
	return int(m.failures.Load())
}

// SampleRate returns the normal rate while healthy and the fallback rate
// while degraded.
func (m *Manager) SampleRate() float64 {
	if m.IsDegraded() {
		return m.cfg.FallbackSampleRate
	}
	return m.NormalSampleRate()
}

// NormalSampleRate returns the healthy-mode rate cap.
func (m *Manager) NormalSampleRate() float64 {
	return math.Float64frombits(m.normalRate.Load())
}

// SetNormalSampleRate sets the healthy-mode rate cap, clamped to
// [MinSampleRate, MaxSampleRate].
func (m *Manager) SetNormalSampleRate(rate float64) {
	rate = min(max(rate, MinSampleRate), MaxSampleRate)
	m.normalRate.Store(math.Float64bits(rate))
}

// ExecuteWithFallback runs op unless the manager is degraded. A failure
// counts toward the degradation threshold. fallback is returned when op is
// skipped or fails.
func ExecuteWithFallback[T any](m *Manager, op func() (T, error), fallback T) T {
	if m.IsDegraded() {
		return fallback
	}
	v, err := op()
	if err != nil {
		m.recordFailure(err)
		return fallback
	}
	m.failures.Store(0)
	m.lastSuccess.Store(m.now().UnixMilli())
	return v
}

// Run is ExecuteWithFallback for operations without a result. It reports
// whether op ran and succeeded.
func (m *Manager) Run(op func() error) bool {
	return ExecuteWithFallback(m, func() (bool, error) {
		return true, op()
	}, false)
}

// Probe checks the store once and updates the state machine.
func (m *Manager) Probe(ctx context.Context) (err error) {
	ctx, span := m.tracer.Start(ctx, "failover.probe")
	defer func() {
		tracing.SetFailoverAttributes(span, m.IsDegraded(), m.backlog.Len())
		tracing.End(span, err)
	}()

	result, err := m.checker.Run(ctx, CheckStore)
	m.metrics.RecordProbe(err == nil, result.Duration)
	if err != nil {
		m.recordFailure(err)
		return err
	}
	m.recordProbeSuccess(ctx)
	return nil
}

func (m *Manager) recordProbeSuccess(ctx context.Context) {
	m.failures.Store(0)
	m.lastSuccess.Store(m.now().UnixMilli())

	if !m.state.CompareAndSwap(int32(StateDegraded), int32(StateHealthy)) {
		return
	}

	m.metrics.SetDegraded(false)
	m.logger.Info("Shared store recovered, leaving fallback mode",
		"backlog", m.backlog.Len())

	if err := m.Beat(ctx); err != nil {
		m.logger.Debug("Heartbeat after recovery failed", "error", err)
	}
	m.scheduleDrain(0)
}

func (m *Manager) recordFailure(err error) {
	n := m.failures.Add(1)
	if int(n) < m.cfg.FailureThreshold {
		m.logger.Debug("Shared store operation failed", "failures", n, "error", err)
		return
	}
	if m.state.CompareAndSwap(int32(StateHealthy), int32(StateDegraded)) {
		m.metrics.SetDegraded(true)
		m.logger.Warn("Shared store unavailable, entering fallback mode",
			"failures", n,
			"threshold", m.cfg.FailureThreshold,
			"error", err,
		)
	}
}

// QueueForLater appends r to the backlog, evicting the oldest record when
// the backlog is full.
func (m *Manager) QueueForLater(r QueuedRecord) {
	if r.Timestamp.IsZero() {
		r.Timestamp = m.now()
	}
	if evicted := m.backlog.Push(r); evicted > 0 {
		m.metrics.RecordBacklogDrop("evicted", evicted)
	}
	m.metrics.SetBacklog(m.backlog.Len())
}

// BacklogLen returns the number of queued records.
func (m *Manager) BacklogLen() int {
	return m.backlog.Len()
}

// Drain replays up to DrainBatchSize queued records. It does nothing while
// degraded or while another drain runs. Records older than RecordTTL are
// discarded. A failed replay puts the records back at the tail, where they
// may evict older records, and counts as a store failure. While records remain a follow-up drain is scheduled.
func (m *Manager) Drain(ctx context.Context) (replayed int, err error) {
	if m.IsDegraded() || m.backlog.Len() == 0 {
		return 0, nil
	}
	if !m.drainMu.TryLock() {
		return 0, nil
	}
	defer m.drainMu.Unlock()

	m.replayerMu.RLock()
	replayer := m.replayer
	m.replayerMu.RUnlock()
	if replayer == nil {
		return 0, ErrNoReplayer
	}

	ctx, span := m.tracer.Start(ctx, "failover.drain")
	defer func() {
		tracing.SetFailoverAttributes(span, m.IsDegraded(), m.backlog.Len())
		tracing.End(span, err)
	}()

	batch := m.backlog.Pop(m.cfg.DrainBatchSize)
	now := m.now()
	fresh := batch[:0]
	for _, r := range batch {
		if now.Sub(r.Timestamp) > m.cfg.RecordTTL {
			continue
		}
		fresh = append(fresh, r)
	}
	if expired := len(batch) - len(fresh); expired > 0 {
		m.metrics.RecordBacklogDrop("expired", expired)
		m.logger.Info("Discarded expired backlog records", "count", expired, "ttl", m.cfg.RecordTTL)
	}

	if len(fresh) > 0 {
		if err := replayer.ReplayBatch(ctx, fresh); err != nil {
			evicted := 0
			for _, r := range fresh {
				evicted += m.backlog.Push(r)
			}
			if evicted > 0 {
				m.metrics.RecordBacklogDrop("evicted", evicted)
			}
			m.metrics.RecordReplay(false, len(fresh))
			m.metrics.SetBacklog(m.backlog.Len())
			m.recordFailure(err)
			return 0, fmt.Errorf("replay %d records: %w", len(fresh), err)
		}
		m.metrics.RecordReplay(true, len(fresh))
		m.logger.Debug("Replayed backlog records", "count", len(fresh), "remaining", m.backlog.Len())
	}

	m.metrics.SetBacklog(m.backlog.Len())
	if m.backlog.Len() > 0 {
		m.scheduleDrain(m.cfg.DrainFollowup)
	}
	return len(fresh), nil
}

// scheduleDrain runs Drain after delay unless one is already pending.
func (m *Manager) scheduleDrain(delay time.Duration) {
	if m.stopped.Load() {
		return
	}

	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	if m.followup != nil {
		return
	}
	m.followup = time.AfterFunc(delay, func() {
		m.timerMu.Lock()
		m.followup = nil
		ctx := m.baseCtx
		m.timerMu.Unlock()

		if _, err := m.Drain(ctx); err != nil {
			m.logger.Warn("Backlog drain failed", "error", err)
		}
	})
}

// Beat refreshes this replica's heartbeat entry.
func (m *Manager) Beat(ctx context.Context) error {
	if m.heartbeat == nil {
		return nil
	}
	if m.IsDegraded() {
		return ErrDegraded
	}
	var beatErr error
	m.Run(func() error {
		beatErr = m.heartbeat.Beat(ctx, m.instanceID, m.now())
		return beatErr
	})
	return beatErr
}

// Instances lists the replicas with a recent heartbeat.
func (m *Manager) Instances(ctx context.Context) ([]store.Instance, error) {
	if m.heartbeat == nil {
		return nil, nil
	}
	if m.IsDegraded() {
		return nil, ErrDegraded
	}
	return m.heartbeat.Live(ctx, m.now())
}

// Status returns a snapshot of the manager.
func (m *Manager) Status() Status {
	s := Status{
		State:               m.State().String(),
		FallbackActive:      m.IsDegraded(),
		ConsecutiveFailures: m.ConsecutiveFailures(),
		Backlog:             m.backlog.Len(),
		BacklogCapacity:     m.backlog.Cap(),
		SampleRate:          m.SampleRate(),
		InstanceID:          m.instanceID,
	}
	if ms := m.lastSuccess.Load(); ms > 0 {
		s.LastSuccess = time.UnixMilli(ms)
	}
	return s
}

// Jobs returns the periodic jobs of the manager.
func (m *Manager) Jobs() []schedule.Job {
	jobs := []schedule.Job{
		{
			Name:  "failover.probe",
			Every: m.cfg.ProbeInterval,
			Run:   m.Probe,
		},
		{
			Name:  "failover.drain",
			Every: m.cfg.DrainInterval,
			Run: func(ctx context.Context) error {
				_, err := m.Drain(ctx)
				return err
			},
		},
	}
	if m.heartbeat != nil {
		jobs = append(jobs, schedule.Job{
			Name:  "failover.heartbeat",
			Every: m.cfg.HeartbeatInterval,
			Run:   m.Beat,
		})
	}
	return jobs
}

// Start registers the replica and sets the context used by follow-up drains.
func (m *Manager) Start(ctx context.Context) {
	m.timerMu.Lock()
	m.baseCtx = ctx
	m.timerMu.Unlock()

	if err := m.Beat(ctx); err != nil {
		m.logger.Warn("Initial heartbeat failed", "error", err)
	}
	m.logger.Info("Failover manager started",
		"probe_interval", m.cfg.ProbeInterval,
		"failure_threshold", m.cfg.FailureThreshold,
		"queue_capacity", m.backlog.Cap(),
	)
}

// Stop cancels pending follow-ups, makes a final drain attempt while
// healthy and unregisters the replica.
func (m *Manager) Stop(ctx context.Context) {
	m.stopped.Store(true)

	m.timerMu.Lock()
	if m.followup != nil {
		m.followup.Stop()
		m.followup = nil
	}
	m.timerMu.Unlock()

	for !m.IsDegraded() && m.backlog.Len() > 0 && ctx.Err() == nil {
		before := m.backlog.Len()
		if _, err := m.Drain(ctx); err != nil || m.backlog.Len() >= before {
			break
		}
	}
	if remaining := m.backlog.Len(); remaining > 0 {
		m.logger.Warn("Backlog not fully replayed at shutdown", "remaining", remaining)
	}

	if m.heartbeat != nil && !m.IsDegraded() {
		if err := m.heartbeat.Remove(ctx, m.instanceID); err != nil {
			m.logger.Debug("Failed to unregister instance", "error", err)
		}
	}
	m.logger.Info("Failover manager stopped")
}
