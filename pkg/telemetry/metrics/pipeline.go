package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks instrumented calls.
//
// Metrics:
//   - pulse_calls_total: calls by success
type PipelineMetrics struct {
	namespace string
	calls     *prometheus.CounterVec
}

func newPipelineMetrics(namespace string, registry *prometheus.Registry) *PipelineMetrics {
	pm := &PipelineMetrics{
		namespace: namespace,
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_total",
				Help:      "Instrumented calls observed by the collector",
			},
			[]string{"success"},
		),
	}
	registry.MustRegister(pm.calls)
	return pm
}

// RecordCall counts one call.
func (pm *PipelineMetrics) RecordCall(success bool) {
	pm.calls.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// WriterMetrics tracks flushes of the distributed writer.
//
// Metrics:
//   - pulse_writer_flushes_total: flushes by result
//   - pulse_writer_records_total: flushed records by result
//   - pulse_writer_flush_duration_seconds: pipelined write duration
type WriterMetrics struct {
	flushes  *prometheus.CounterVec
	records  *prometheus.CounterVec
	duration prometheus.Histogram
}

func newWriterMetrics(namespace string, buckets []float64, registry *prometheus.Registry) *WriterMetrics {
	wm := &WriterMetrics{
		flushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "writer",
				Name:      "flushes_total",
				Help:      "Flushes of the write buffer by result",
			},
			[]string{"result"},
		),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "writer",
				Name:      "records_total",
				Help:      "Records handled by flushes by result",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "writer",
				Name:      "flush_duration_seconds",
				Help:      "Duration of pipelined flushes to the shared store",
				Buckets:   buckets,
			},
		),
	}
	registry.MustRegister(wm.flushes, wm.records, wm.duration)
	return wm
}

// RecordFlush records one flush.
func (wm *WriterMetrics) RecordFlush(result string, records int, duration time.Duration) {
	wm.flushes.WithLabelValues(result).Inc()
	wm.records.WithLabelValues(result).Add(float64(records))
	if result != "queued" {
		wm.duration.Observe(duration.Seconds())
	}
}

// SamplerMetrics tracks sampling decisions and publications.
//
// Metrics:
//   - pulse_sampler_decisions_total: decisions by outcome and reason
//   - pulse_sampler_last_rate: rate of the most recent decision, any endpoint
//   - pulse_sampler_publish_total: publication cycles by kind and result
//   - pulse_sampler_published_entries_total: published entries by kind
type SamplerMetrics struct {
	decisions *prometheus.CounterVec
	lastRate  prometheus.Gauge
	publishes *prometheus.CounterVec
	entries   *prometheus.CounterVec
}

func newSamplerMetrics(namespace string, registry *prometheus.Registry) *SamplerMetrics {
	sm := &SamplerMetrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sampler",
				Name:      "decisions_total",
				Help:      "Sampling decisions by outcome and reason",
			},
			[]string{"sampled", "reason"},
		),
		lastRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sampler",
				Name:      "last_rate",
				Help:      "Sampling rate of the most recent decision across all endpoints",
			},
		),
		publishes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sampler",
				Name:      "publish_total",
				Help:      "Publication cycles to the shared store by kind and result",
			},
			[]string{"kind", "result"},
		),
		entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sampler",
				Name:      "published_entries_total",
				Help:      "Entries written by publication cycles",
			},
			[]string{"kind"},
		),
	}
	registry.MustRegister(sm.decisions, sm.lastRate, sm.publishes, sm.entries)
	return sm
}

// RecordDecision counts one decision.
func (sm *SamplerMetrics) RecordDecision(sampled bool, reason string) {
	sm.decisions.WithLabelValues(strconv.FormatBool(sampled), reason).Inc()
}

// RecordPublish counts one publication cycle.
func (sm *SamplerMetrics) RecordPublish(kind string, ok bool, entries int) {
	sm.publishes.WithLabelValues(kind, result(ok)).Inc()
	if ok {
		sm.entries.WithLabelValues(kind).Add(float64(entries))
	}
}
