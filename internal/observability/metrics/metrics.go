// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vibe_transcriber"

// Metrics holds all Prometheus metrics for the service.
// All Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Item metrics
	ItemsTotal    *prometheus.CounterVec
	ItemErrors    *prometheus.CounterVec
	ItemDuration  prometheus.Histogram
	NoSpeechTotal prometheus.Counter

	// Batch metrics
	BatchesTotal   *prometheus.CounterVec
	BatchDuration  prometheus.Histogram
	UnresolvedRefs prometheus.Counter

	// ASR metrics
	ASRLatency          *prometheus.HistogramVec
	ASRErrors           *prometheus.CounterVec
	QuotaSuspectedTotal *prometheus.CounterVec

	// Persistence metrics
	PersistAttempts      *prometheus.CounterVec
	StatusUpdateFailures *prometheus.CounterVec

	// Async metrics
	AsyncAccepted prometheus.Counter
	AsyncInflight prometheus.Gauge

	// Notification metrics
	NotifyPublishTotal   *prometheus.CounterVec
	NotifyPublishErrors  *prometheus.CounterVec
	NotifyPublishLatency *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	// gRPC metrics
	GRPCCalls *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates and registers all metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ItemsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Total number of work items processed by outcome",
		}, []string{"path", "outcome"}),
		ItemErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_errors_total",
			Help:      "Total number of failed work items by error kind",
		}, []string{"kind"}),
		ItemDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "item_duration_seconds",
			Help:      "End-to-end processing time of one work item",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		NoSpeechTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "no_speech_total",
			Help:      "Total number of items stored with the no-speech sentinel",
		}),

		BatchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of batch requests by selection mode",
		}, []string{"mode"}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of batch requests in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		UnresolvedRefs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unresolved_refs_total",
			Help:      "Total number of file references absent from the catalog",
		}),

		ASRLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "asr_latency_seconds",
			Help:      "ASR request latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
		ASRErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asr_errors_total",
			Help:      "Total number of ASR errors",
		}, []string{"provider", "error_type"}),
		QuotaSuspectedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_suspected_total",
			Help:      "Empty ASR results observed inside the quota window",
		}, []string{"provider"}),

		PersistAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_attempts_total",
			Help:      "Transcript upsert attempts by result",
		}, []string{"result"}),
		StatusUpdateFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_update_failures_total",
			Help:      "Best-effort status updates that failed",
		}, []string{"status"}),

		AsyncAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "async_accepted_total",
			Help:      "Total number of accepted async requests",
		}),
		AsyncInflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "async_inflight",
			Help:      "Number of async items currently processing",
		}),

		NotifyPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_publish_total",
			Help:      "Total number of terminal events published",
		}, []string{"backend", "status"}),
		NotifyPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_publish_errors_total",
			Help:      "Total number of terminal event publish errors",
		}, []string{"backend", "status"}),
		NotifyPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notify_publish_latency_seconds",
			Help:      "Terminal event publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"backend"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"route", "code"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
		}, []string{"route"}),

		GRPCCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "Total number of gRPC calls",
		}, []string{"method", "code"}),
	}
}

// RecordItem records a finished work item. path is "batch" or "async".
func (m *Metrics) RecordItem(path string, success bool, kind string, durationSeconds float64) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
		m.ItemErrors.WithLabelValues(kind).Inc()
	}
	m.ItemsTotal.WithLabelValues(path, outcome).Inc()
	m.ItemDuration.Observe(durationSeconds)
}

// RecordNoSpeech records an item stored with the no-speech sentinel.
func (m *Metrics) RecordNoSpeech() {
	if m == nil {
		return
	}
	m.NoSpeechTotal.Inc()
}

// RecordBatch records a finished batch.
func (m *Metrics) RecordBatch(mode string, unresolved int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(mode).Inc()
	m.BatchDuration.Observe(durationSeconds)
	m.UnresolvedRefs.Add(float64(unresolved))
}

// RecordASR records one ASR call.
func (m *Metrics) RecordASR(provider, model string, err error, latencySeconds float64) {
	if m == nil {
		return
	}
	m.ASRLatency.WithLabelValues(provider, model).Observe(latencySeconds)
	if err != nil {
		m.ASRErrors.WithLabelValues(provider, "transcribe").Inc()
	}
}

// RecordASRError records an ASR error of the given type.
func (m *Metrics) RecordASRError(provider, errorType string) {
	if m == nil {
		return
	}
	m.ASRErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordQuotaSuspected records an empty result inside the quota window.
func (m *Metrics) RecordQuotaSuspected(provider string) {
	if m == nil {
		return
	}
	m.QuotaSuspectedTotal.WithLabelValues(provider).Inc()
}

// RecordPersistAttempt records one upsert attempt. result is one of
// confirmed, reconciled, ambiguous, error.
func (m *Metrics) RecordPersistAttempt(result string) {
	if m == nil {
		return
	}
	m.PersistAttempts.WithLabelValues(result).Inc()
}

// RecordStatusUpdateFailure records a failed best-effort status write.
func (m *Metrics) RecordStatusUpdateFailure(status string) {
	if m == nil {
		return
	}
	m.StatusUpdateFailures.WithLabelValues(status).Inc()
}

// RecordAsyncStart records an accepted async item entering background work.
func (m *Metrics) RecordAsyncStart() {
	if m == nil {
		return
	}
	m.AsyncAccepted.Inc()
	m.AsyncInflight.Inc()
}

// RecordAsyncEnd records an async item leaving background work.
func (m *Metrics) RecordAsyncEnd() {
	if m == nil {
		return
	}
	m.AsyncInflight.Dec()
}

// RecordNotifyPublish records a terminal event publish attempt.
func (m *Metrics) RecordNotifyPublish(backend, status string, err error, latencySeconds float64) {
	if m == nil {
		return
	}
	m.NotifyPublishTotal.WithLabelValues(backend, status).Inc()
	m.NotifyPublishLatency.WithLabelValues(backend).Observe(latencySeconds)
	if err != nil {
		m.NotifyPublishErrors.WithLabelValues(backend, status).Inc()
	}
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(route string, code int, latencySeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, httpCodeLabel(code)).Inc()
	m.HTTPLatency.WithLabelValues(route).Observe(latencySeconds)
}

// RecordGRPCCall records one gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string) {
	if m == nil {
		return
	}
	m.GRPCCalls.WithLabelValues(method, code).Inc()
}

func httpCodeLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
