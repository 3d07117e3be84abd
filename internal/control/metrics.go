package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "superscore"

// Metrics counts remote operations per tag.
type Metrics struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewMetrics registers the control layer collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "control",
			Name:      "operations_total",
			Help:      "Remote operations by tag, operation and outcome.",
		}, []string{"tag", "op", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "control",
			Name:      "operation_duration_seconds",
			Help:      "Latency of one shim call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tag", "op"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "control",
			Name:      "writes_in_flight",
			Help:      "Writes issued and not yet settled.",
		}),
	}
}

func (m *Metrics) observe(tag, op string, seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ops.WithLabelValues(tag, op, outcome).Inc()
	m.duration.WithLabelValues(tag, op).Observe(seconds)
}

func (m *Metrics) writeStarted() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) writeDone() {
	if m != nil {
		m.inFlight.Dec()
	}
}
