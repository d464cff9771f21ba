package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	correctionsTotal        *prometheus.CounterVec
	correctionFailuresTotal *prometheus.CounterVec
	correctionEditsTotal    *prometheus.CounterVec
	pipelineDuration        *prometheus.HistogramVec
	batchItemsTotal         *prometheus.CounterVec
	gradingInFlight         prometheus.Gauge

	uploadRequestsTotal *prometheus.CounterVec
	uploadRejectedTotal *prometheus.CounterVec
	uploadLatency       prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoeval_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autoeval_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30, 60, 120},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoeval_http_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		correctionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoeval_corrections_created_total",
			Help: "Corrections written by the grading pipeline.",
		}, []string{"mode"})

		correctionFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoeval_correction_failures_total",
			Help: "Grading pipeline runs that produced no correction, by failure kind.",
		}, []string{"kind"})

		correctionEditsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoeval_correction_edits_total",
			Help: "Teacher edits applied to corrections.",
		}, []string{"field"})

		pipelineDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autoeval_pipeline_duration_seconds",
			Help:    "End-to-end duration of one grading pipeline run.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90, 120, 180},
		}, []string{"outcome"})

		batchItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoeval_batch_items_total",
			Help: "Submissions processed by batch generation, by outcome.",
		}, []string{"outcome"})

		gradingInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autoeval_grading_in_flight",
			Help: "Grading pipeline runs currently executing in this process.",
		})

		uploadRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoeval_uploads_total",
			Help: "Files accepted and stored encrypted, by MIME type.",
		}, []string{"mime"})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoeval_uploads_rejected_total",
			Help: "Uploads rejected, by reason.",
		}, []string{"reason"})

		uploadLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autoeval_upload_duration_seconds",
			Help:    "Time spent validating and encrypting uploads.",
			Buckets: prometheus.DefBuckets,
		})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			correctionsTotal, correctionFailuresTotal, correctionEditsTotal,
			pipelineDuration, batchItemsTotal, gradingInFlight,
			uploadRequestsTotal, uploadRejectedTotal, uploadLatency,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// CorrectionsCreated counts corrections written, labelled generate or regenerate.
func CorrectionsCreated() *prometheus.CounterVec {
	RegisterMetrics()
	return correctionsTotal
}

// CorrectionFailures counts pipeline runs that ended without a correction.
func CorrectionFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return correctionFailuresTotal
}

// CorrectionEdits counts teacher edits by field.
func CorrectionEdits() *prometheus.CounterVec {
	RegisterMetrics()
	return correctionEditsTotal
}

// PipelineDuration observes end-to-end pipeline runs.
func PipelineDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return pipelineDuration
}

// BatchItems counts batch outcomes.
func BatchItems() *prometheus.CounterVec {
	RegisterMetrics()
	return batchItemsTotal
}

// GradingInFlight tracks running pipelines.
func GradingInFlight() prometheus.Gauge {
	RegisterMetrics()
	return gradingInFlight
}

// UploadRequests counts stored uploads.
func UploadRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRequestsTotal
}

// UploadRejected counts rejected uploads.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}

// UploadLatency observes upload handling time.
func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatency
}
