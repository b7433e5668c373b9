package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FailoverMetrics tracks the health state machine and the local backlog.
//
// Metrics:
//   - pulse_failover_degraded: 1 while degraded
//   - pulse_failover_transitions_total: state transitions by target state
//   - pulse_failover_probes_total: probes by result
//   - pulse_failover_probe_duration_seconds: probe round-trip
//   - pulse_failover_backlog_size: queued records
//   - pulse_failover_backlog_dropped_total: dropped records by reason
//   - pulse_failover_replayed_total: replayed records by result
type FailoverMetrics struct {
	degraded      prometheus.Gauge
	transitions   *prometheus.CounterVec
	probes        *prometheus.CounterVec
	probeDuration prometheus.Histogram
	backlog       prometheus.Gauge
	dropped       *prometheus.CounterVec
	replayed      *prometheus.CounterVec
}

func newFailoverMetrics(namespace string, buckets []float64, registry *prometheus.Registry) *FailoverMetrics {
	fm := &FailoverMetrics{
		degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "failover",
			Name:      "degraded",
			Help:      "1 while the shared store is considered unavailable",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "failover",
			Name:      "transitions_total",
			Help:      "Failover state transitions by target state",
		}, []string{"state"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "failover",
			Name:      "probes_total",
			Help:      "Health probes of the shared store by result",
		}, []string{"result"}),
		probeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "failover",
			Name:      "probe_duration_seconds",
			Help:      "Round-trip of health probes",
			Buckets:   buckets,
		}),
		backlog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "failover",
			Name:      "backlog_size",
			Help:      "Records waiting in the local backlog",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "failover",
			Name:      "backlog_dropped_total",
			Help:      "Backlog records dropped by reason",
		}, []string{"reason"}),
		replayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "failover",
			Name:      "replayed_total",
			Help:      "Backlog records replayed to the shared store by result",
		}, []string{"result"}),
	}
	registry.MustRegister(fm.degraded, fm.transitions, fm.probes, fm.probeDuration,
		fm.backlog, fm.dropped, fm.replayed)
	return fm
}

// RecordProbe records one probe.
func (fm *FailoverMetrics) RecordProbe(ok bool, duration time.Duration) {
	fm.probes.WithLabelValues(result(ok)).Inc()
	fm.probeDuration.Observe(duration.Seconds())
}

// SetDegraded records a state transition.
func (fm *FailoverMetrics) SetDegraded(degraded bool) {
	if degraded {
		fm.degraded.Set(1)
		fm.transitions.WithLabelValues("degraded").Inc()
		return
	}
	fm.degraded.Set(0)
	fm.transitions.WithLabelValues("healthy").Inc()
}
