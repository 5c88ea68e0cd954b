// Package metric defines the Prometheus collectors for both pipeline stages.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Stage label values used by the queue depth gauge.
const (
	StageLoader    = "loader"
	StageAugmenter = "augmenter"
)

// Metrics holds all pipeline metrics. A nil *Metrics is valid and records
// nothing, so components never have to guard their instrumentation calls.
type Metrics struct {
	BatchesLoaded    prometheus.Counter
	BatchesAugmented prometheus.Counter
	LoaderErrors     prometheus.Counter
	AugmentErrors    prometheus.Counter
	PutRetries       prometheus.Counter
	QueueDepth       *prometheus.GaugeVec
	LoadDuration     prometheus.Histogram
	AugmentDuration  prometheus.Histogram

	registry *prometheus.Registry
}

// New creates the pipeline metrics on a fresh registry that also carries the
// Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		BatchesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "augpipe",
			Subsystem: "loader",
			Name:      "batches_total",
			Help:      "Batches pushed by the loading stage",
		}),
		BatchesAugmented: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "augpipe",
			Subsystem: "augmenter",
			Name:      "batches_total",
			Help:      "Batches augmented by the background stage",
		}),
		LoaderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "augpipe",
			Subsystem: "loader",
			Name:      "errors_total",
			Help:      "Generator errors swallowed by loader workers",
		}),
		AugmentErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "augpipe",
			Subsystem: "augmenter",
			Name:      "errors_total",
			Help:      "Pipeline failures that killed an augmenter worker",
		}),
		PutRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "augpipe",
			Subsystem: "loader",
			Name:      "put_retries_total",
			Help:      "Timed-out queue pushes retried by loader workers",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "augpipe",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Frames currently queued per stage",
		}, []string{"stage"}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "augpipe",
			Subsystem: "loader",
			Name:      "duration_seconds",
			Help:      "Time spent generating one batch",
			Buckets:   prometheus.DefBuckets,
		}),
		AugmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "augpipe",
			Subsystem: "augmenter",
			Name:      "duration_seconds",
			Help:      "Time spent augmenting one batch",
			Buckets:   prometheus.DefBuckets,
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.BatchesLoaded,
		m.BatchesAugmented,
		m.LoaderErrors,
		m.AugmentErrors,
		m.PutRetries,
		m.QueueDepth,
		m.LoadDuration,
		m.AugmentDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry for the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncLoaded() {
	if m != nil {
		m.BatchesLoaded.Inc()
	}
}

func (m *Metrics) IncAugmented() {
	if m != nil {
		m.BatchesAugmented.Inc()
	}
}

func (m *Metrics) IncLoaderError() {
	if m != nil {
		m.LoaderErrors.Inc()
	}
}

func (m *Metrics) IncAugmentError() {
	if m != nil {
		m.AugmentErrors.Inc()
	}
}

func (m *Metrics) IncPutRetry() {
	if m != nil {
		m.PutRetries.Inc()
	}
}

func (m *Metrics) SetQueueDepth(stage string, depth int) {
	if m != nil {
		m.QueueDepth.WithLabelValues(stage).Set(float64(depth))
	}
}

func (m *Metrics) ObserveLoad(d time.Duration) {
	if m != nil {
		m.LoadDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveAugment(d time.Duration) {
	if m != nil {
		m.AugmentDuration.Observe(d.Seconds())
	}
}
