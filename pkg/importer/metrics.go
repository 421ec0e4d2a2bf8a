package importer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

var (
	RecordsLoadedCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flightwatch",
		Subsystem: "flightloader",
		Name:      "records_loaded_total",
		Help:      "Count of documents accepted by the store",
	}, []string{"index"})

	RowsDroppedCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flightwatch",
		Subsystem: "flightloader",
		Name:      "rows_dropped_total",
		Help:      "Count of rows dropped because no target index could be derived",
	}, []string{"file"})

	BatchesFlushedCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flightwatch",
		Subsystem: "flightloader",
		Name:      "batches_flushed_total",
		Help:      "Count of bulk requests accepted by the store",
	}, []string{"index"})

	ImportDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flightwatch",
		Subsystem: "flightloader",
		Name:      "import_duration_seconds",
		Help:      "Duration of whole import runs",
		Buckets:   []float64{5, 30, 60, 300, 600, 1800, 3600},
	}, []string{"status"})
)

// PushMetrics delivers the run's metrics to a push gateway when one is
// configured. Failures are logged, never fatal.
func PushMetrics(logger *zap.Logger, address string) {
	if address == "" {
		return
	}

	pusher := push.New(address, "flightloader").
		Collector(RecordsLoadedCount).
		Collector(RowsDroppedCount).
		Collector(BatchesFlushedCount).
		Collector(ImportDurationSeconds)

	if err := pusher.Push(); err != nil {
		logger.Error("failed to push metrics", zap.Error(err))
		return
	}
	logger.Info("pushed metrics", zap.String("address", address))
}
