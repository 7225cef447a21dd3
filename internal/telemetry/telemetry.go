package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// InFlightRequests tracks the request budget counter.
	InFlightRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ventctl_inflight_requests",
			Help: "Current number of in-flight device requests",
		},
	)

	// BudgetResets counts stuck-counter self-heals.
	BudgetResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ventctl_budget_resets_total",
			Help: "Total number of stuck request counter resets",
		},
	)

	// BudgetDenied counts admissions refused because the budget was full.
	BudgetDenied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ventctl_budget_denied_total",
			Help: "Total number of requests denied by the request budget",
		},
	)

	// BreakerOpened counts circuit openings per endpoint.
	BreakerOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ventctl_breaker_opened_total",
			Help: "Total number of circuit breaker openings",
		},
		[]string{"endpoint"},
	)

	// BreakerFastFail counts requests suppressed by an open circuit.
	BreakerFastFail = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ventctl_breaker_fast_fail_total",
			Help: "Total number of requests suppressed by an open circuit",
		},
		[]string{"endpoint"},
	)

	// DispatchRetries counts vent command retry attempts.
	DispatchRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ventctl_dispatch_retries_total",
			Help: "Total number of vent command retries",
		},
	)

	// DispatchFailures counts vent commands that exhausted their retries.
	DispatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ventctl_dispatch_failures_total",
			Help: "Total number of vent commands that exhausted retries",
		},
		[]string{"endpoint"},
	)

	// CycleDuration observes full control cycle durations.
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ventctl_cycle_duration_seconds",
			Help:    "Control cycle duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// CyclesSkipped counts ticks dropped because a cycle was still draining.
	CyclesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ventctl_cycles_skipped_total",
			Help: "Total number of control cycles skipped while a prior cycle was draining",
		},
	)

	// SamplesRecorded counts learned rate samples written to the history store.
	SamplesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ventctl_rate_samples_total",
			Help: "Total number of learned rate samples recorded",
		},
	)
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
