// Package metrics exposes Prometheus metrics for the natal API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. Each
// Collector owns its registry, so tests can create as many as they like.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Domain metrics
	ChartsComputed  *prometheus.CounterVec
	ChartFailures   *prometheus.CounterVec
	GeocodeLookups  *prometheus.CounterVec
	ContentMisses   *prometheus.CounterVec
	ResearchMatches prometheus.Histogram
	ContentReloads  *prometheus.CounterVec
}

// NewCollector creates a collector with the given namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ChartsComputed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "charts_computed_total",
				Help:      "Charts computed, by origin (preview, profile, research) and house system",
			},
			[]string{"origin", "house_system"},
		),
		ChartFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chart_failures_total",
				Help:      "Chart computations that failed, by origin",
			},
			[]string{"origin"},
		),
		GeocodeLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "geocode_lookups_total",
				Help:      "Geocoder lookups by outcome",
			},
			[]string{"outcome"},
		),
		ContentMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "content_misses_total",
				Help:      "Content lookups that fell back to a placeholder, by kind",
			},
			[]string{"kind"},
		),
		ResearchMatches: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "research_matches",
				Help:      "Profiles matched per research lookup",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),
		ContentReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "content_reloads_total",
				Help:      "Content index reloads by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.ChartsComputed,
		c.ChartFailures,
		c.GeocodeLookups,
		c.ContentMisses,
		c.ResearchMatches,
		c.ContentReloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry for this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ChartComputed counts a successful chart computation.
func (c *Collector) ChartComputed(origin, houseSystem string) {
	c.ChartsComputed.WithLabelValues(origin, houseSystem).Inc()
}

// ChartFailed counts a failed chart computation.
func (c *Collector) ChartFailed(origin string) {
	c.ChartFailures.WithLabelValues(origin).Inc()
}

// GeocodeLookup implements geocode.Recorder.
func (c *Collector) GeocodeLookup(outcome string) {
	c.GeocodeLookups.WithLabelValues(outcome).Inc()
}

// ContentMiss implements content.MissRecorder.
func (c *Collector) ContentMiss(kind string) {
	c.ContentMisses.WithLabelValues(kind).Inc()
}

// ContentReloaded counts a content index reload attempt.
func (c *Collector) ContentReloaded(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.ContentReloads.WithLabelValues(result).Inc()
}

// ResearchMatched records how many profiles a research lookup matched.
func (c *Collector) ResearchMatched(n int) {
	c.ResearchMatches.Observe(float64(n))
}
