// Package metrics exposes the widget's Prometheus instruments. They are
// registered on the default registry and served by promhttp at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "calwidget"

// Fetch outcomes.
const (
	OutcomeFresh  = "fresh"
	OutcomeCached = "cached"
	OutcomeError  = "error"
)

var (
	// feedFetches counts ICS feed downloads.
	// Labels: source (config ICS ID), outcome (fresh, cached, error)
	feedFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ics",
		Name:      "fetches_total",
		Help:      "ICS feed fetches by source and outcome",
	}, []string{"source", "outcome"})

	feedEvents = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ics",
		Name:      "events",
		Help:      "Expanded events delivered by the last fetch of each source",
	}, []string{"source"})

	truncatedSeries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ics",
		Name:      "truncated_series_total",
		Help:      "Recurring events that hit the per-event occurrence cap",
	})

	renderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "widget",
		Name:      "render_duration_seconds",
		Help:      "Time to build the widget view",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"status"})

	viewCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "web",
		Name:      "view_cache_total",
		Help:      "Rendered view cache lookups",
	}, []string{"result"})

	captureLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "duration_seconds",
		Help:      "Headless browser screenshot latency",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"status"})
)

// RecordFetch counts one feed fetch.
func RecordFetch(source, outcome string) {
	feedFetches.WithLabelValues(source, outcome).Inc()
}

// SetFeedEvents publishes how many events a source produced.
func SetFeedEvents(source string, n int) {
	feedEvents.WithLabelValues(source).Set(float64(n))
}

// AddTruncated counts series cut at the occurrence cap.
func AddTruncated(n int) {
	truncatedSeries.Add(float64(n))
}

// ObserveRender records a render that started at start.
func ObserveRender(start time.Time, err error) {
	renderLatency.WithLabelValues(status(err)).Observe(time.Since(start).Seconds())
}

// RecordViewCache counts a cache hit or miss.
func RecordViewCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	viewCache.WithLabelValues(result).Inc()
}

// ObserveCapture records a screenshot that started at start.
func ObserveCapture(start time.Time, err error) {
	captureLatency.WithLabelValues(status(err)).Observe(time.Since(start).Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
