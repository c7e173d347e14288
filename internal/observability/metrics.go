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
	assignmentsPublished  *prometheus.CounterVec
	assignmentTransitions *prometheus.CounterVec
	autoPublishRuns       *prometheus.CounterVec
	submissionsTotal      *prometheus.CounterVec
	gradesRecorded        *prometheus.CounterVec
	enrollmentsTotal      *prometheus.CounterVec
	analyticsCache        *prometheus.CounterVec
	eventsPublished       *prometheus.CounterVec
	attachmentsTotal      *prometheus.CounterVec
	streamConnections     *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the course API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "course_api_requests_total",
			Help: "Total number of course API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "course_api_latency_seconds",
			Help:    "Latency distribution for course API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "course_api_errors_total",
			Help: "Total number of error responses returned by course API endpoints.",
		}, []string{"method", "route", "status"})

		assignmentsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "course_assignments_published_total",
			Help: "Assignments published from templates, by initial status.",
		}, []string{"status"})

		assignmentTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "course_assignment_transitions_total",
			Help: "Assignment lifecycle transitions, by action and outcome.",
		}, []string{"action", "outcome"})

		autoPublishRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "course_auto_publish_runs_total",
			Help: "Scheduled auto-publish sweeps, by outcome.",
		}, []string{"outcome"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "course_submissions_total",
			Help: "Submission lifecycle events, by resulting status.",
		}, []string{"status"})

		gradesRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "course_grades_recorded_total",
			Help: "Grades recorded, by grading mode.",
		}, []string{"mode"})

		enrollmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "course_enrollments_total",
			Help: "Enrollment attempts, by outcome.",
		}, []string{"outcome"})

		analyticsCache = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "course_analytics_cache_total",
			Help: "Analytics cache lookups, by result.",
		}, []string{"result"})

		eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "course_events_published_total",
			Help: "Domain events handed to the broker, by event type.",
		}, []string{"type"})

		attachmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "course_attachments_total",
			Help: "Submission attachment uploads, by outcome.",
		}, []string{"outcome"})

		streamConnections = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "course_event_stream_connections_total",
			Help: "Websocket event stream connections, by outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			assignmentsPublished,
			assignmentTransitions,
			autoPublishRuns,
			submissionsTotal,
			gradesRecorded,
			enrollmentsTotal,
			analyticsCache,
			eventsPublished,
			attachmentsTotal,
			streamConnections,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// AssignmentsPublished counts template publications.
func AssignmentsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return assignmentsPublished
}

// AssignmentTransitions counts schedule/publish/close/toggle requests.
func AssignmentTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return assignmentTransitions
}

// AutoPublishRuns counts scheduler sweeps.
func AutoPublishRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return autoPublishRuns
}

// Submissions counts drafts, submissions and late submissions.
func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// GradesRecorded counts grading writes.
func GradesRecorded() *prometheus.CounterVec {
	RegisterMetrics()
	return gradesRecorded
}

// Enrollments counts enrollment attempts.
func Enrollments() *prometheus.CounterVec {
	RegisterMetrics()
	return enrollmentsTotal
}

// AnalyticsCache counts analytics cache hits and misses.
func AnalyticsCache() *prometheus.CounterVec {
	RegisterMetrics()
	return analyticsCache
}

// EventsPublished counts domain events sent to Redis or NATS.
func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPublished
}

// Attachments counts attachment uploads, labelled stored or the rejection reason.
func Attachments() *prometheus.CounterVec {
	RegisterMetrics()
	return attachmentsTotal
}

// StreamConnections counts event stream connections opened and closed.
func StreamConnections() *prometheus.CounterVec {
	RegisterMetrics()
	return streamConnections
}
