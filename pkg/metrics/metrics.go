package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HistogramBuckets are in milliseconds. The upper range covers lock waits,
// which can run until lock.acquire_timeout (30s by default).
var HistogramBuckets = []float64{
	5, 10, 25, 50, 100, 250, 500,
	1000, 2500, 5000, 10000,
	20000, 30000, 45000, 60000,
}

type MetricType string

const (
	TypeCounter      MetricType = "counter"
	TypeCounterVec   MetricType = "counter_vec"
	TypeGaugeVec     MetricType = "gauge_vec"
	TypeHistogramVec MetricType = "histogram_vec"
	TypeSummaryVec   MetricType = "summary_vec"
)

// Metric describes one collector. MetricCollector is filled in at
// registration and stays nil until then.
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            MetricType
	Args            []string
}

// NewMetric builds the collector for m. Unknown types return nil.
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	switch m.Type {
	case TypeCounter:
		return prometheus.NewCounter(prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description})
	case TypeCounterVec:
		return prometheus.NewCounterVec(prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	case TypeGaugeVec:
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	case TypeHistogramVec:
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      m.Name,
			Help:      m.Description,
			Buckets:   HistogramBuckets,
		}, m.Args)
	case TypeSummaryVec:
		return prometheus.NewSummaryVec(prometheus.SummaryOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	}
	return nil
}

// MetricsBusinessProcess times engine operations: type is the workflow
// (activation, cancellation, settlement, matcher), subtype its outcome.
var MetricsBusinessProcess = &Metric{
	ID:          "bpDur",
	Name:        "bp_dur",
	Description: "process latency in milliseconds",
	Type:        TypeHistogramVec,
	Args:        []string{"type", "subtype"},
}

var MetricsEngineOutcome = &Metric{
	ID:          "engineOutcome",
	Name:        "engine_outcome_total",
	Description: "Correlation and lifecycle outcomes, partitioned by operation and outcome.",
	Type:        TypeCounterVec,
	Args:        []string{"operation", "outcome"},
}

var MetricsLockWait = &Metric{
	ID:          "lockWait",
	Name:        "lock_wait_ms",
	Description: "Time spent waiting for a resource lease in milliseconds.",
	Type:        TypeHistogramVec,
	Args:        []string{"resource", "acquired"},
}

// BusinessMetrics are registered alongside the standard HTTP metrics.
var BusinessMetrics = []*Metric{
	MetricsBusinessProcess,
	MetricsEngineOutcome,
	MetricsLockWait,
}

// ObserveProcess records the latency of one business operation. It is a no-op
// until the metric has been registered.
func ObserveProcess(typ, subtype string, start time.Time) {
	if h, ok := MetricsBusinessProcess.MetricCollector.(*prometheus.HistogramVec); ok {
		h.WithLabelValues(typ, subtype).Observe(MillisecondsSince(start))
	}
}

func IncOutcome(operation, outcome string) {
	if c, ok := MetricsEngineOutcome.MetricCollector.(*prometheus.CounterVec); ok {
		c.WithLabelValues(operation, outcome).Inc()
	}
}

func ObserveLockWait(resource string, acquired bool, start time.Time) {
	if h, ok := MetricsLockWait.MetricCollector.(*prometheus.HistogramVec); ok {
		label := "false"
		if acquired {
			label = "true"
		}
		h.WithLabelValues(resource, label).Observe(MillisecondsSince(start))
	}
}
