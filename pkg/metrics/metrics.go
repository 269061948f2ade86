package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for fanflow components.
type Registry struct {
	// Admission Metrics
	AdmissionWait      *prometheus.HistogramVec
	AdmissionRateWaits *prometheus.CounterVec
	ConcurrencyActive  *prometheus.GaugeVec
	ConcurrencyWaiting *prometheus.GaugeVec

	// Fan-out Metrics
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Batches           *prometheus.CounterVec
	BatchDuration     *prometheus.HistogramVec
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return newRegistry(reg, "fanflow")
}

func newRegistry(reg prometheus.Registerer, namespace string) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		AdmissionWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "admission",
				Name:      "wait_seconds",
				Help:      "Time spent waiting for a permit and a concurrency slot",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"coordinator"},
		),

		AdmissionRateWaits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "admission",
				Name:      "rate_waits_total",
				Help:      "Total number of times an admission was delayed by the permit source",
			},
			[]string{"coordinator"},
		),

		ConcurrencyActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "concurrency",
				Name:      "in_flight",
				Help:      "Number of operations holding a concurrency slot",
			},
			[]string{"coordinator"},
		),

		ConcurrencyWaiting: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "concurrency",
				Name:      "waiting",
				Help:      "Number of operations waiting for a concurrency slot",
			},
			[]string{"coordinator"},
		),

		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of fan-out operations by outcome kind",
			},
			[]string{"orchestrator", "policy", "kind"},
		),

		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Time spent running admitted operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"orchestrator", "policy"},
		),

		Batches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Total number of finished batches",
			},
			[]string{"orchestrator", "policy", "aborted"},
		),

		BatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Wall-clock time of finished batches",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"orchestrator", "policy"},
		),
	}
}

// ObserveAdmission records one admission and whether the permit source
// delayed it.
func (r *Registry) ObserveAdmission(coordinator string, wait time.Duration, rateDelayed bool) {
	r.AdmissionWait.WithLabelValues(coordinator).Observe(wait.Seconds())
	if rateDelayed {
		r.AdmissionRateWaits.WithLabelValues(coordinator).Inc()
	}
}

// SetConcurrency publishes the gate's occupancy.
func (r *Registry) SetConcurrency(coordinator string, inFlight, waiting int) {
	r.ConcurrencyActive.WithLabelValues(coordinator).Set(float64(inFlight))
	r.ConcurrencyWaiting.WithLabelValues(coordinator).Set(float64(waiting))
}

// ObserveOperation records one finished operation.
func (r *Registry) ObserveOperation(orchestrator, policy, kind string, d time.Duration) {
	r.Operations.WithLabelValues(orchestrator, policy, kind).Inc()
	r.OperationDuration.WithLabelValues(orchestrator, policy).Observe(d.Seconds())
}

// ObserveBatch records one finished batch.
func (r *Registry) ObserveBatch(orchestrator, policy string, aborted bool, d time.Duration) {
	r.Batches.WithLabelValues(orchestrator, policy, strconv.FormatBool(aborted)).Inc()
	r.BatchDuration.WithLabelValues(orchestrator, policy).Observe(d.Seconds())
}
