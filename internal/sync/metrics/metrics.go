package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the sync path.
type Metrics struct {
	RunsTotal    *prometheus.CounterVec
	RecordsTotal *prometheus.CounterVec
	Rollbacks    prometheus.Counter
	RunDuration  prometheus.Histogram
	Throughput   prometheus.Gauge
}

// New creates and registers all sync metrics.
func New() *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_sync_runs_total",
			Help: "Sync runs by terminal result",
		}, []string{"result"}),
		RecordsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_sync_records_total",
			Help: "Records handled during sync runs, by action taken",
		}, []string{"action"}),
		Rollbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "registrar_sync_rollbacks_total",
			Help: "Sync chunks rolled back after a permanent persistence failure",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "registrar_sync_run_duration_seconds",
			Help:    "Wall-clock duration of sync runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		Throughput: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "registrar_sync_throughput_records_per_second",
			Help: "Records per second achieved by the most recent sync run",
		}),
	}
}

// ObserveRun records the terminal outcome and profile of one sync run.
func (m *Metrics) ObserveRun(result string, elapsed time.Duration, throughput float64) {
	m.RunsTotal.WithLabelValues(result).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	m.Throughput.Set(throughput)
}

// ObserveRecords adds n to the per-action record counter.
func (m *Metrics) ObserveRecords(action string, n int) {
	if n > 0 {
		m.RecordsTotal.WithLabelValues(action).Add(float64(n))
	}
}
