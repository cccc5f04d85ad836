package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationDuration measures end-to-end latency of gateway operations
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metrics_gateway_operation_duration_seconds",
			Help:    "Time taken to retrieve and normalize a metric kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"}, // status: success, error
	)

	// OperationErrors counts failed operations by the stage that failed
	OperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_gateway_operation_errors_total",
			Help: "Total number of failed gateway operations",
		},
		[]string{"operation", "stage"},
	)

	// RecordsReturned records how many samples each successful operation produced
	RecordsReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metrics_gateway_records_returned",
			Help:    "Number of samples returned per gateway operation",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		},
		[]string{"operation"},
	)
)

// RecordOperation records metrics for a successful operation
func RecordOperation(operation string, duration time.Duration, records int) {
	OperationDuration.WithLabelValues(operation, "success").Observe(duration.Seconds())
	RecordsReturned.WithLabelValues(operation).Observe(float64(records))
}

// RecordOperationError records metrics for a failed operation
func RecordOperationError(operation string, stage Stage, duration time.Duration) {
	OperationDuration.WithLabelValues(operation, "error").Observe(duration.Seconds())
	OperationErrors.WithLabelValues(operation, string(stage)).Inc()
}
