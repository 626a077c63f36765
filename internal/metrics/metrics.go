package metrics

import "github.com/prometheus/client_golang/prometheus"

// Dataroom Prometheus metrics.
var (
	IndexRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataroom",
			Name:      "index_requests_total",
			Help:      "Total number of index requests",
		},
		[]string{"operation", "status"},
	)

	IndexRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dataroom",
			Name:      "index_request_duration_seconds",
			Help:      "Index request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	BulkFlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataroom",
			Name:      "bulk_flushes_total",
			Help:      "Total number of bulk flushes",
		},
		[]string{"status"},
	)

	BulkDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataroom",
			Name:      "bulk_documents_total",
			Help:      "Total documents written through the bulk pipeline",
		},
		[]string{"status"},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataroom",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"kind", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dataroom",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	WorkerTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataroom",
			Name:      "worker_tasks_total",
			Help:      "Total number of worker task runs",
		},
		[]string{"task", "status"},
	)

	WorkerImagesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataroom",
			Name:      "worker_images_processed_total",
			Help:      "Total images processed by worker tasks",
		},
		[]string{"task"},
	)
)

var registered bool

// Register registers the dataroom metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(IndexRequestsTotal)
	prometheus.MustRegister(IndexRequestDuration)
	prometheus.MustRegister(BulkFlushesTotal)
	prometheus.MustRegister(BulkDocumentsTotal)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(WorkerTasksTotal)
	prometheus.MustRegister(WorkerImagesProcessedTotal)
	registered = true
}
