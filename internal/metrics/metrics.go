// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "librarian"

var (
	// requestTransitions counts lifecycle transitions by destination state.
	requestTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "requests",
		Name:      "transitions_total",
		Help:      "Request state transitions by destination state",
	}, []string{"state"})

	// approvalDecisions counts decisions by outcome and by whether another delivery already decided.
	approvalDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "approvals",
		Name:      "decisions_total",
		Help:      "Approval decisions by outcome",
	}, []string{"outcome"})

	resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resolver",
		Name:      "resolutions_total",
		Help:      "Hash resolutions by result (single, title, timestamp, ambiguous, timeout, error)",
	}, []string{"result"})

	resolutionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "resolver",
		Name:      "duration_seconds",
		Help:      "Time from submission to hash resolution",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})

	monitorTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "ticks_total",
		Help:      "Completion monitor polling passes by result",
	}, []string{"result"})

	orphanTorrents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "orphan_torrents_total",
		Help:      "Completed torrents in the pipeline category with no owning request",
	})

	jobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "organizer",
		Name:      "jobs_in_flight",
		Help:      "Organizer jobs currently executing",
	})

	jobResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "organizer",
		Name:      "jobs_total",
		Help:      "Finished organizer jobs by target and status",
	}, []string{"target", "status"})

	jobLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "organizer",
		Name:      "job_duration_seconds",
		Help:      "Organizer job execution time",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"target"})

	remoteUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "organizer",
		Name:      "remote_uploads_total",
		Help:      "Remote organizer program uploads by result (uploaded, skipped)",
	}, []string{"result"})

	apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "HTTP API requests by route and status code",
	}, []string{"route", "code"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordTransition(state string) { requestTransitions.WithLabelValues(state).Inc() }

func RecordDecision(outcome string) { approvalDecisions.WithLabelValues(outcome).Inc() }

// RecordResolution counts a resolver outcome and, for successes, its latency.
func RecordResolution(result string, elapsed time.Duration) {
	resolutions.WithLabelValues(result).Inc()
	switch result {
	case "single", "title", "timestamp":
		resolutionLatency.Observe(elapsed.Seconds())
	}
}

func RecordTick(result string) { monitorTicks.WithLabelValues(result).Inc() }

func RecordOrphan() { orphanTorrents.Inc() }

// JobStarted increments the in-flight gauge and returns the matching decrement.
func JobStarted() func() {
	jobsInFlight.Inc()
	return jobsInFlight.Dec
}

func RecordJob(target, status string, elapsed time.Duration) {
	jobResults.WithLabelValues(target, status).Inc()
	jobLatency.WithLabelValues(target).Observe(elapsed.Seconds())
}

func RecordUpload(result string) { remoteUploads.WithLabelValues(result).Inc() }

func RecordAPIRequest(route, code string) { apiRequests.WithLabelValues(route, code).Inc() }
