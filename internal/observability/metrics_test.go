package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)

	c.ObserveAggregation(2 * time.Second)
	c.AggregationFailed("list_paid_invoices")
	c.AggregationFailed("")
	c.SkippedInvoices(3)
	c.SkippedInvoices(0)
	c.UnresolvedConversions(2)
	c.CacheRequest(CacheHit)
	c.CacheRequest(CacheHit)
	c.EventIngested("invoice.paid", "inserted")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.aggregationFailures.WithLabelValues("list_paid_invoices")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.aggregationFailures.WithLabelValues("unknown")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.skippedInvoices))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.unresolvedConversions))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheRequests.WithLabelValues(CacheHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsIngested.WithLabelValues("invoice.paid", "inserted")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.aggregationDuration))
}

func TestCollectors_NilIsNoop(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.ObserveAggregation(time.Second)
		c.AggregationFailed("x")
		c.SkippedInvoices(1)
		c.UnresolvedConversions(1)
		c.CacheRequest(CacheMiss)
		c.EventIngested("t", "r")
	})
}
