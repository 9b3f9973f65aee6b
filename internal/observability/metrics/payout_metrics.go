package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PayoutMetrics exposes counters and timings for batch execution.
type PayoutMetrics struct {
	PaymentsCompleted *prometheus.CounterVec
	PaymentsFailed    *prometheus.CounterVec
	PaymentRetries    prometheus.Counter
	BatchesExecuted   *prometheus.CounterVec
	BatchDuration     prometheus.Histogram
}

func NewPayoutMetrics(reg prometheus.Registerer) *PayoutMetrics {
	factory := promauto.With(reg)
	return &PayoutMetrics{
		PaymentsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disburse",
			Name:      "payments_completed_total",
			Help:      "Payout transactions completed, by provider.",
		}, []string{"provider"}),
		PaymentsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disburse",
			Name:      "payments_failed_total",
			Help:      "Payout transactions failed terminally, by provider.",
		}, []string{"provider"}),
		PaymentRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "disburse",
			Name:      "payment_retries_total",
			Help:      "Transient provider failures that triggered a retry.",
		}),
		BatchesExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disburse",
			Name:      "batches_executed_total",
			Help:      "Batch executions by terminal status.",
		}, []string{"status"}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "disburse",
			Name:      "batch_execution_seconds",
			Help:      "Wall time spent executing a batch.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}
