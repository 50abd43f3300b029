// Package metrics exposes Prometheus collectors for the engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "habitsnap",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "habitsnap",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "habitsnap",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	streakActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "habitsnap",
			Subsystem: "streak",
			Name:      "actions_total",
			Help:      "Total number of pair streak actions by outcome.",
		},
		[]string{"outcome"},
	)

	streakCASRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "habitsnap",
			Subsystem: "streak",
			Name:      "cas_retries_total",
			Help:      "Total number of compare-and-swap retries on pair streaks.",
		},
	)

	scoringEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "habitsnap",
			Subsystem: "scoring",
			Name:      "events_total",
			Help:      "Total number of scoring events applied.",
		},
		[]string{"kind"},
	)

	scoringPoints = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "habitsnap",
			Subsystem: "scoring",
			Name:      "points_total",
			Help:      "Total score points awarded and charged.",
		},
		[]string{"direction"},
	)

	sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "habitsnap",
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Total number of penalty sweep runs.",
		},
		[]string{"result"},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "habitsnap",
			Subsystem: "sweep",
			Name:      "run_duration_seconds",
			Help:      "Duration of penalty sweep runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	sweepHabits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "habitsnap",
			Subsystem: "sweep",
			Name:      "habits_total",
			Help:      "Habits handled by the penalty sweep, by disposition.",
		},
		[]string{"disposition"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		streakActions,
		streakCASRetries,
		scoringEvents,
		scoringPoints,
		sweepRuns,
		sweepDuration,
		sweepHabits,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler serves the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one handled HTTP request.
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncInFlight tracks the start of a request; the returned func ends it.
func IncInFlight() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

// ObserveStreakAction records a pair streak action outcome
// (increased, held, reset, conflict, rejected).
func ObserveStreakAction(outcome string) {
	streakActions.WithLabelValues(outcome).Inc()
}

// ObserveStreakRetry records one CAS retry on a pair streak record.
func ObserveStreakRetry() {
	streakCASRetries.Inc()
}

// ObserveScoringEvent records an applied scoring event and its point total.
func ObserveScoringEvent(kind string, points int) {
	scoringEvents.WithLabelValues(kind).Inc()
	if points >= 0 {
		scoringPoints.WithLabelValues("awarded").Add(float64(points))
	} else {
		scoringPoints.WithLabelValues("charged").Add(float64(-points))
	}
}

// ObserveSweepRun records the outcome of a full sweep pass.
func ObserveSweepRun(result string, duration time.Duration) {
	sweepRuns.WithLabelValues(result).Inc()
	sweepDuration.Observe(duration.Seconds())
}

// ObserveSweepHabit records the disposition of one swept habit
// (completed, penalized, failed).
func ObserveSweepHabit(disposition string) {
	sweepHabits.WithLabelValues(disposition).Inc()
}
