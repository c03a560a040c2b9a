package neoogm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of a Neo4jExecutor.
type Metrics struct {
	statementsTotal   *prometheus.CounterVec
	statementDuration *prometheus.HistogramVec
	recordsReturned   prometheus.Histogram
	lockingFailures   prometheus.Counter
}

// NewMetrics creates the executor metrics and registers them with registry.
// A nil registry returns nil, and every method of a nil *Metrics is a no-op.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		statementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neoogm_statements_total",
				Help: "Total number of executed Cypher statements",
			},
			[]string{"mode", "status"},
		),
		statementDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "neoogm_statement_duration_seconds",
				Help:    "Duration of Cypher statements",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"mode"},
		),
		recordsReturned: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "neoogm_statement_records",
				Help:    "Number of records returned per statement",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		lockingFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "neoogm_optimistic_locking_failures_total",
				Help: "Total number of versioned writes that lost a race",
			},
		),
	}
	registry.MustRegister(m.statementsTotal, m.statementDuration, m.recordsReturned, m.lockingFailures)
	return m
}

func (m *Metrics) observeStatement(mode string, started time.Time, records int, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.statementsTotal.WithLabelValues(mode, status).Inc()
	m.statementDuration.WithLabelValues(mode).Observe(time.Since(started).Seconds())
	if err == nil {
		m.recordsReturned.Observe(float64(records))
	}
}

func (m *Metrics) observeLockingFailure() {
	if m == nil {
		return
	}
	m.lockingFailures.Inc()
}
