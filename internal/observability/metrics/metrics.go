package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "pasture_"

	resultSuccess = "success"
)

var (
	registerOnce sync.Once

	readingRequests *prometheus.CounterVec
	readingErrors   *prometheus.CounterVec
	readingLatency  *prometheus.HistogramVec

	alertEventsTotal *prometheus.CounterVec
	notifyResults    *prometheus.CounterVec

	counterAdjustTotal *prometheus.CounterVec

	analyticsQueryTotal   *prometheus.CounterVec
	analyticsQueryLatency *prometheus.HistogramVec

	exportTotal *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		readingRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reading_requests_total",
				Help: "Total sensor reading submissions by result",
			},
			[]string{"result"},
		)
		readingErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reading_errors_total",
				Help: "Total reading submission errors by reason",
			},
			[]string{"reason"},
		)
		readingLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "reading_latency_seconds",
				Help:    "Reading ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		alertEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_events_total",
				Help: "Total alert lifecycle events by type",
			},
			[]string{"event"},
		)
		notifyResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notify_results_total",
				Help: "Total notification deliveries by channel and result",
			},
			[]string{"channel", "result"},
		)

		counterAdjustTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "counter_adjust_total",
				Help: "Total denormalized counter adjustments by entity and result",
			},
			[]string{"entity", "result"},
		)

		analyticsQueryTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "analytics_query_total",
				Help: "Total analytics queries by report and result",
			},
			[]string{"report", "result"},
		)
		analyticsQueryLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "analytics_query_latency_seconds",
				Help:    "Analytics query latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"report", "result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total alert report exports by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			readingRequests,
			readingErrors,
			readingLatency,
			alertEventsTotal,
			notifyResults,
			counterAdjustTotal,
			analyticsQueryTotal,
			analyticsQueryLatency,
			exportTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveReading records reading ingest duration and result.
func ObserveReading(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if readingRequests != nil {
		readingRequests.WithLabelValues(result).Inc()
	}
	if readingLatency != nil {
		readingLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncReadingError increments reading error counter.
func IncReadingError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if readingErrors != nil {
		readingErrors.WithLabelValues(reason).Inc()
	}
}

// IncAlertEvent increments alert lifecycle counter.
func IncAlertEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if alertEventsTotal != nil {
		alertEventsTotal.WithLabelValues(event).Inc()
	}
}

// IncNotifyResult increments notification delivery counter.
func IncNotifyResult(channel, result string) {
	if channel == "" {
		channel = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if notifyResults != nil {
		notifyResults.WithLabelValues(channel, result).Inc()
	}
}

// IncCounterAdjust increments counter-maintenance counter.
func IncCounterAdjust(entity, result string) {
	if entity == "" {
		entity = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if counterAdjustTotal != nil {
		counterAdjustTotal.WithLabelValues(entity, result).Inc()
	}
}

// ObserveAnalyticsQuery records analytics query latency and result.
func ObserveAnalyticsQuery(report, result string, duration time.Duration) {
	if report == "" {
		report = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if analyticsQueryTotal != nil {
		analyticsQueryTotal.WithLabelValues(report, result).Inc()
	}
	if analyticsQueryLatency != nil {
		analyticsQueryLatency.WithLabelValues(report, result).Observe(duration.Seconds())
	}
}

// IncExport increments export counter.
func IncExport(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
}
