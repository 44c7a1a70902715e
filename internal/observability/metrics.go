package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	processingRunsTotal   *prometheus.CounterVec
	stageDurationSeconds  *prometheus.HistogramVec
	gradingFallbacksTotal prometheus.Counter
	regenerationsTotal    *prometheus.CounterVec
	unknownQuestionsTotal *prometheus.CounterVec
	lockContentionTotal   *prometheus.CounterVec
	serviceHealthGauge    *prometheus.GaugeVec
)

// RegisterMetrics initialises the Prometheus collectors used by the grader.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_api_requests_total",
			Help: "Total number of grading API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grading_api_latency_seconds",
			Help:    "Latency distribution for grading API requests.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_api_errors_total",
			Help: "Total number of error responses returned by grading endpoints.",
		}, []string{"method", "route", "status"})

		processingRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_processing_runs_total",
			Help: "Submission processing runs by outcome.",
		}, []string{"outcome"})

		stageDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grading_stage_duration_seconds",
			Help:    "Duration of each processing pipeline stage.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"})

		gradingFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grading_fallbacks_total",
			Help: "Gradings that used partial credit because the model response was unusable.",
		})

		regenerationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_mapping_regenerations_total",
			Help: "Mapping regenerations triggered by low valid mapping counts.",
		}, []string{"result"})

		unknownQuestionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_unknown_question_ids_total",
			Help: "Mapped question ids that did not resolve against the marking guide.",
		}, []string{"policy"})

		lockContentionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_lock_contention_total",
			Help: "Processing requests rejected because the pair was already locked.",
		}, []string{"layer"})

		serviceHealthGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grading_service_healthy",
			Help: "1 when a registered sub-service is healthy, 0 otherwise.",
		}, []string{"service"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			processingRunsTotal,
			stageDurationSeconds,
			gradingFallbacksTotal,
			regenerationsTotal,
			unknownQuestionsTotal,
			lockContentionTotal,
			serviceHealthGauge,
		)
	})
}

// APIRequests exposes the counter for grading API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for grading API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for grading API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// ProcessingRuns counts finished pipeline runs by outcome.
func ProcessingRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return processingRunsTotal
}

// StageDuration observes per-stage pipeline latency.
func StageDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return stageDurationSeconds
}

func GradingFallbacks() prometheus.Counter {
	RegisterMetrics()
	return gradingFallbacksTotal
}

func MappingRegenerations() *prometheus.CounterVec {
	RegisterMetrics()
	return regenerationsTotal
}

func UnknownQuestionIDs() *prometheus.CounterVec {
	RegisterMetrics()
	return unknownQuestionsTotal
}

func LockContention() *prometheus.CounterVec {
	RegisterMetrics()
	return lockContentionTotal
}

// ServiceHealth reports per-service health as a gauge.
func ServiceHealth() *prometheus.GaugeVec {
	RegisterMetrics()
	return serviceHealthGauge
}
