package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// DB метрики
	DBQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Database query duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	DBActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "db_active_connections",
		Help: "Number of active database connections",
	})

	DBIdleConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "db_idle_connections",
		Help: "Number of idle database connections",
	})

	// метрики ингеста
	SamplesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_samples_total",
		Help: "Total number of samples written to the raw tier",
	}, []string{"device_type"})

	SamplesDroppedUnknownDevice = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_samples_dropped_unknown_device_total",
		Help: "Samples dropped because the referenced device is not registered",
	})

	CollectorRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_runs_total",
		Help: "Collector cycles per device type and outcome",
	}, []string{"device_type", "status"})

	// метрики агрегации
	AggregationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregation_runs_total",
		Help: "Aggregation runs per stage and outcome",
	}, []string{"stage", "status"})

	AggregationRowsFolded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregation_source_rows_folded_total",
		Help: "Source rows consumed by aggregation per stage",
	}, []string{"stage"})

	AggregationBucketsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregation_buckets_written_total",
		Help: "Target tier rows produced by aggregation per stage",
	}, []string{"stage"})

	AggregationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aggregation_run_duration_seconds",
		Help:    "Duration of a single aggregation run",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	// метрики ретеншена
	RetentionDeletedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retention_deleted_rows_total",
		Help: "Rows deleted by retention per tier",
	}, []string{"tier"})

	RetentionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retention_runs_total",
		Help: "Retention runs per tier and outcome",
	}, []string{"tier", "status"})

	// метрики алертов
	AlertsEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alerts_evaluated_total",
		Help: "Checker evaluations per checker kind and outcome",
	}, []string{"checker", "status"})

	AlertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alerts_fired_total",
		Help: "Alerts that passed throttling and were dispatched",
	}, []string{"checker"})

	AlertsThrottled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alerts_throttled_total",
		Help: "Alerts suppressed by the throttle window",
	}, []string{"checker"})

	// метрики отправки уведомлений
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Notification deliveries per sender and outcome",
	}, []string{"sender", "status"})
)
