package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gatewayCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_calls_total",
			Help: "Total number of gateway API calls",
		},
		[]string{"endpoint", "outcome"},
	)

	gatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Duration of gateway API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	reconcileTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_transitions_total",
			Help: "Total number of applied transaction state transitions",
		},
		[]string{"from", "to"},
	)

	reconcileNoopsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_noops_total",
			Help: "Total number of reconciliation runs that changed nothing",
		},
		[]string{"kind"},
	)

	sweepRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pending_sweep_runs_total",
			Help: "Total number of pending-transaction sweep runs",
		},
	)

	sweepTransactionsChecked = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pending_sweep_transactions_checked",
			Help:    "Transactions examined per sweep run",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)

	telemetryDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_records_dropped_total",
			Help: "Telemetry records dropped because the sink buffer was full",
		},
	)
)

// ObserveGatewayCall records one gateway API call
func ObserveGatewayCall(endpoint, outcome string, elapsed time.Duration) {
	gatewayCallsTotal.WithLabelValues(endpoint, outcome).Inc()
	gatewayCallDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveTransition records one applied state transition
func ObserveTransition(from, to string) {
	reconcileTransitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveReconcileNoop records a reconciliation run that was a no-op
func ObserveReconcileNoop(kind string) {
	reconcileNoopsTotal.WithLabelValues(kind).Inc()
}

// ObserveSweep records one sweep run and the number of transactions checked
func ObserveSweep(checked int) {
	sweepRunsTotal.Inc()
	sweepTransactionsChecked.Observe(float64(checked))
}

// ObserveTelemetryDrop counts a dropped telemetry record
func ObserveTelemetryDrop() {
	telemetryDroppedTotal.Inc()
}
