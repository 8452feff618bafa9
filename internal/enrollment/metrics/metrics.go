package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the admission path.
type Metrics struct {
	EnrollmentsTotal  *prometheus.CounterVec
	BatchInFlight     prometheus.Gauge
	RetryAttempts     prometheus.Counter
	CircuitTransition *prometheus.CounterVec
}

// New creates and registers all admission metrics.
func New() *Metrics {
	return &Metrics{
		EnrollmentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_enrollments_total",
			Help: "Enrollment attempts by terminal status",
		}, []string{"status"}),
		BatchInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "registrar_batch_in_flight",
			Help: "Reservation attempts currently in flight for batch enrollment",
		}),
		RetryAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "registrar_enrollment_retry_attempts_total",
			Help: "Total retry attempts made for transient enrollment failures",
		}),
		CircuitTransition: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_circuit_transitions_total",
			Help: "Circuit breaker transitions by resulting state",
		}, []string{"state"}),
	}
}

// ObserveEnrollment records a terminal enrollment outcome.
func (m *Metrics) ObserveEnrollment(status string) {
	m.EnrollmentsTotal.WithLabelValues(status).Inc()
}

// ObserveCircuitState records a breaker transition.
func (m *Metrics) ObserveCircuitState(state string) {
	m.CircuitTransition.WithLabelValues(state).Inc()
}
