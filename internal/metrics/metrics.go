package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// IdentificationsTotal counts identify attempts by strategy and outcome code.
	IdentificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folium",
		Subsystem: "proxy",
		Name:      "identifications_total",
		Help:      "Total number of identify attempts, labeled by strategy and outcome (ok or error code).",
	}, []string{"strategy", "outcome"})

	// IdentificationDurationSeconds is the time spent reaching the identification service.
	IdentificationDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "folium",
		Subsystem: "proxy",
		Name:      "identification_duration_seconds",
		Help:      "Time from forwarding an identify attempt to its classified outcome.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 6, 8, 10, 12, 15},
	}, []string{"strategy", "outcome"})

	// PollAttemptsTotal counts status polls made under the submit-then-poll strategy.
	PollAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "folium",
		Subsystem: "proxy",
		Name:      "poll_attempts_total",
		Help:      "Total number of job status polls sent to the identification service.",
	})

	// InFlight is the number of identify attempts currently forwarded upstream.
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "folium",
		Subsystem: "proxy",
		Name:      "identifications_in_flight",
		Help:      "Identify attempts currently waiting on the identification service.",
	})

	// RateLimitedTotal counts requests refused by the proxy's own limiter.
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "folium",
		Subsystem: "proxy",
		Name:      "rate_limited_total",
		Help:      "Total number of requests refused by the proxy rate limiter.",
	})
)

// Register registers proxy metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			IdentificationsTotal,
			IdentificationDurationSeconds,
			PollAttemptsTotal,
			InFlight,
			RateLimitedTotal,
		)
	})
}
