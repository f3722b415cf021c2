// Package observability owns the Prometheus registry and the metrics the
// rest of the runner increments.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Events received on the webhook endpoint. Watch for: rejected spikes
	// (bad signatures or payloads) and the matched/ignored ratio.
	EventsReceivedTotal *prometheus.CounterVec

	// Run outcomes. Watch for: failed/succeeded ratio per workflow.
	RunsTotal *prometheus.CounterVec

	// End-to-end run duration. Watch for: p95 growth as workflows gain steps.
	RunDurationSeconds *prometheus.HistogramVec

	// Runs currently executing. Watch for: saturation against the run limit.
	RunsInFlight prometheus.Gauge

	// Step outcomes by runner type. Skipped steps indicate upstream failures.
	StepsTotal *prometheus.CounterVec

	// Step latency by runner type.
	StepDurationSeconds *prometheus.HistogramVec

	// HTTP request rate on the webhook server.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency on the webhook server.
	HTTPRequestDuration *prometheus.HistogramVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	EventsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsReceivedTotal",
			Help: "Repository events received, by type and outcome (matched, ignored, rejected)",
		},
		[]string{"type", "outcome"},
	)
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runsTotal",
			Help: "Workflow runs finished, by workflow and status",
		},
		[]string{"workflow", "status"},
	)
	RunDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runDurationSeconds",
			Help:    "End-to-end workflow run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"workflow"},
	)
	RunsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "runsInFlight",
			Help: "Workflow runs currently executing",
		},
	)
	StepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepsTotal",
			Help: "Steps finished, by runner type and status (succeeded, failed, skipped)",
		},
		[]string{"runner", "status"},
	)
	StepDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stepDurationSeconds",
			Help:    "Step execution duration in seconds, by runner type",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"runner"},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	registry.MustRegister(
		EventsReceivedTotal,
		RunsTotal, RunDurationSeconds, RunsInFlight,
		StepsTotal, StepDurationSeconds,
		HTTPRequestsTotal, HTTPRequestDuration,
	)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
