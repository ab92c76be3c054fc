// Package observability holds the Prometheus collectors of the membership service.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "membership"

// Cache request outcomes.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
)

// Collectors groups every collector the service exports. A nil *Collectors records nothing.
type Collectors struct {
	aggregationDuration   prometheus.Histogram
	aggregationFailures   *prometheus.CounterVec
	skippedInvoices       prometheus.Counter
	unresolvedConversions prometheus.Gauge
	cacheRequests         *prometheus.CounterVec
	eventsIngested        *prometheus.CounterVec
}

// NewCollectors creates the collectors and registers them on reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		aggregationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of metrics aggregation passes.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		aggregationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_failures_total",
			Help:      "Aborted aggregation passes by failed read step.",
		}, []string{"step"}),
		skippedInvoices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_currency_invoices_total",
			Help:      "Invoices excluded from revenue because of a non-settlement currency.",
		}),
		unresolvedConversions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unresolved_conversions",
			Help:      "Converted members without an attributable identifier in the last pass.",
		}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metrics_cache_requests_total",
			Help:      "Metrics cache lookups by outcome.",
		}, []string{"result"}),
		eventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_total",
			Help:      "Inbound lifecycle events by type and outcome.",
		}, []string{"type", "result"}),
	}

	reg.MustRegister(
		c.aggregationDuration,
		c.aggregationFailures,
		c.skippedInvoices,
		c.unresolvedConversions,
		c.cacheRequests,
		c.eventsIngested,
	)
	return c
}

func (c *Collectors) ObserveAggregation(d time.Duration) {
	if c == nil {
		return
	}
	c.aggregationDuration.Observe(d.Seconds())
}

func (c *Collectors) AggregationFailed(step string) {
	if c == nil {
		return
	}
	if step == "" {
		step = "unknown"
	}
	c.aggregationFailures.WithLabelValues(step).Inc()
}

func (c *Collectors) SkippedInvoices(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.skippedInvoices.Add(float64(n))
}

func (c *Collectors) UnresolvedConversions(n int) {
	if c == nil {
		return
	}
	c.unresolvedConversions.Set(float64(n))
}

func (c *Collectors) CacheRequest(result string) {
	if c == nil {
		return
	}
	c.cacheRequests.WithLabelValues(result).Inc()
}

func (c *Collectors) EventIngested(eventType, result string) {
	if c == nil {
		return
	}
	c.eventsIngested.WithLabelValues(eventType, result).Inc()
}
