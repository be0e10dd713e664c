package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysisRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aid_analysis_requests_total",
			Help: "Eligibility analyses by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	AnalysisAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aid_analysis_attempts_total",
			Help: "Calls made to the AI provider, including retries",
		},
		[]string{"provider"},
	)

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aid_analysis_duration_seconds",
			Help:    "Duration of eligibility analysis including retries",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 45, 60, 90},
		},
		[]string{"provider"},
	)

	ApplicationsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aid_applications_submitted_total",
			Help: "Persisted applications by derived eligibility status",
		},
		[]string{"eligibility_status"},
	)

	DocumentUploadFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aid_document_upload_failures_total",
			Help: "Documents that could not be stored, by kind",
		},
		[]string{"kind"},
	)

	ApplicationJobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aid_application_jobs_active",
			Help: "Background submissions currently running",
		},
	)
)
