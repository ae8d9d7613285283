package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Job outcome labels.
const (
	StatusOK      = "ok"
	StatusInvalid = "invalid"
	StatusFailed  = "failed"
)

// Metrics holds the worker's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	jobs       *prometheus.CounterVec
	duration   prometheus.Histogram
	inFlight   prometheus.Gauge
	unresolved prometheus.Histogram
	incomplete prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskengine_jobs_total",
			Help: "Validation jobs processed, by outcome",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskengine_job_duration_seconds",
			Help:    "Time spent on a validation job",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskengine_jobs_in_flight",
			Help: "Validation jobs currently running",
		}),
		unresolved: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskengine_unresolved_threats",
			Help:    "Unresolved threats per assessment",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		incomplete: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskengine_incomplete_searches_total",
			Help: "Pattern searches cut short by a deadline or expansion bound",
		}),
	}
	for _, c := range []prometheus.Collector{m.jobs, m.duration, m.inFlight, m.unresolved, m.incomplete} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) start() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) finish(status string, took time.Duration, unresolved, incomplete int) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.jobs.WithLabelValues(status).Inc()
	m.duration.Observe(took.Seconds())
	if status == StatusOK {
		m.unresolved.Observe(float64(unresolved))
		m.incomplete.Add(float64(incomplete))
	}
}
