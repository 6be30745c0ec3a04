package metrics

import (
	"sync"

	"github.com/arloliu/nakasess/types"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements types.MetricsCollector backed by
// Prometheus. Metrics are registered lazily on first use so that
// constructing a collector never fails even if the registerer later
// rejects a duplicate.
type PrometheusCollector struct {
	*NopMetrics

	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	stateTransitions *prometheus.CounterVec
	stateDuration    *prometheus.HistogramVec
	terminalFrames   *prometheus.CounterVec

	closeEntered       prometheus.Histogram
	partitionsFreed    *prometheus.CounterVec
	deadlineExpired    prometheus.Counter
	deadlineRemaining  prometheus.Histogram

	storeOpDuration       *prometheus.HistogramVec
	listenerCancelFailure prometheus.Counter
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer (uses prometheus.DefaultRegisterer if nil)
//   - namespace: metrics namespace (defaults to "nakasess" if empty)
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "nakasess"
	}

	return &PrometheusCollector{NopMetrics: NewNop(), reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "session",
			Name:      "state_transitions_total",
			Help:      "Total state transitions by from/to state name.",
		}, []string{"from", "to"})

		p.stateDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "session",
			Name:      "state_transition_seconds",
			Help:      "Time taken to run a state transition's on_exit+on_enter.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"from", "to"})

		p.terminalFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "session",
			Name:      "terminal_frames_total",
			Help:      "Total terminal frames written by Cleanup, by kind (clean/error).",
		}, []string{"kind"})

		p.closeEntered = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "closing",
			Name:      "uncommitted_on_entry",
			Help:      "Number of partitions with uncommitted offsets when Closing was entered.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		})

		p.partitionsFreed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "closing",
			Name:      "partitions_freed_total",
			Help:      "Total partitions released during closing, by reason.",
		}, []string{"reason"})

		p.deadlineExpired = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "closing",
			Name:      "deadline_expired_total",
			Help:      "Total times the closing deadline fired while partitions were still uncommitted.",
		})

		p.deadlineRemaining = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "closing",
			Name:      "deadline_remaining_uncommitted",
			Help:      "Number of partitions still uncommitted when the deadline fired.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		})

		p.storeOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "coordination",
			Name:      "store_operation_seconds",
			Help:      "Latency of coordination store operations by operation name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"})

		p.listenerCancelFailure = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coordination",
			Name:      "listener_cancel_failures_total",
			Help:      "Total listener Close() failures encountered while freeing partitions.",
		})

		p.reg.MustRegister(
			p.stateTransitions,
			p.stateDuration,
			p.terminalFrames,
			p.closeEntered,
			p.partitionsFreed,
			p.deadlineExpired,
			p.deadlineRemaining,
			p.storeOpDuration,
			p.listenerCancelFailure,
		)
	})
}

// StateMetrics implementation

func (p *PrometheusCollector) RecordStateTransition(from, to string, duration float64) {
	p.ensureRegistered()
	p.stateTransitions.WithLabelValues(from, to).Inc()
	p.stateDuration.WithLabelValues(from, to).Observe(duration)
}

func (p *PrometheusCollector) RecordTerminalFrame(kind string) {
	p.ensureRegistered()
	p.terminalFrames.WithLabelValues(kind).Inc()
}

// ClosingMetrics implementation

func (p *PrometheusCollector) RecordCloseEntered(uncommittedCount int) {
	p.ensureRegistered()
	p.closeEntered.Observe(float64(uncommittedCount))
}

func (p *PrometheusCollector) RecordPartitionFreed(reason string) {
	p.ensureRegistered()
	p.partitionsFreed.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordDeadlineExpired(remainingUncommitted int) {
	p.ensureRegistered()
	p.deadlineExpired.Inc()
	p.deadlineRemaining.Observe(float64(remainingUncommitted))
}

// CoordinationMetrics implementation

func (p *PrometheusCollector) RecordStoreOperationDuration(operation string, duration float64) {
	p.ensureRegistered()
	p.storeOpDuration.WithLabelValues(operation).Observe(duration)
}

func (p *PrometheusCollector) RecordListenerCancelFailure() {
	p.ensureRegistered()
	p.listenerCancelFailure.Inc()
}
