package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wekeepgrowing/semo-membership/internal/clock"
	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/semo-membership/internal/domain/errors"
	"github.com/wekeepgrowing/semo-membership/internal/observability"
)

const recomputeKey = "membership-metrics"

// Aggregator computes a fresh metric set.
type Aggregator interface {
	Aggregate(ctx context.Context) (*entity.Metrics, error)
}

// MetricsCache memoizes the last successful aggregation for a TTL. Concurrent recomputes are
// collapsed into one, and a recompute outlives the request that started it.
type MetricsCache struct {
	aggregator Aggregator
	ttl        time.Duration
	clock      clock.Clock
	collectors *observability.Collectors
	logger     *zap.Logger

	group singleflight.Group

	mu       sync.RWMutex
	value    *entity.Metrics
	storedAt time.Time
	expired  bool
}

// NewMetricsCache creates a new metrics cache
func NewMetricsCache(aggregator Aggregator, ttl time.Duration, clk clock.Clock, collectors *observability.Collectors, logger *zap.Logger) *MetricsCache {
	return &MetricsCache{
		aggregator: aggregator,
		ttl:        ttl,
		clock:      clk,
		collectors: collectors,
		logger:     logger,
	}
}

// Get returns the cached metrics while they are younger than the TTL and force is false.
// Otherwise it recomputes. A failed recompute keeps the previous value, which is returned
// marked stale; without a previous value the error wraps ErrMetricsUnavailable.
func (c *MetricsCache) Get(ctx context.Context, force bool) (*entity.Metrics, error) {
	if !force {
		if m, ok := c.fresh(); ok {
			c.collectors.CacheRequest(observability.CacheHit)
			return m, nil
		}
	}
	c.collectors.CacheRequest(observability.CacheMiss)

	ch := c.group.DoChan(recomputeKey, func() (interface{}, error) {
		return c.recompute(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return c.fallback(res.Err)
		}
		m := *res.Val.(*entity.Metrics)
		return &m, nil
	case <-ctx.Done():
		return c.fallback(ctx.Err())
	}
}

// Invalidate forces the next Get to recompute. The previous value stays available as a
// stale fallback.
func (c *MetricsCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expired = true
}

// Cached returns the last successful metrics, regardless of age.
func (c *MetricsCache) Cached() (*entity.Metrics, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.value == nil {
		return nil, false
	}
	m := *c.value
	return &m, true
}

func (c *MetricsCache) fresh() (*entity.Metrics, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.value == nil || c.expired || c.clock.Now().Sub(c.storedAt) >= c.ttl {
		return nil, false
	}
	m := *c.value
	return &m, true
}

func (c *MetricsCache) recompute(ctx context.Context) (*entity.Metrics, error) {
	m, err := c.aggregator.Aggregate(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.value = m
	c.storedAt = c.clock.Now()
	c.expired = false
	c.mu.Unlock()

	return m, nil
}

func (c *MetricsCache) fallback(cause error) (*entity.Metrics, error) {
	prev, ok := c.Cached()
	if !ok {
		return nil, fmt.Errorf("%w: %w", domainErrors.ErrMetricsUnavailable, cause)
	}

	c.collectors.CacheRequest(observability.CacheStale)
	c.logger.Warn("Serving stale membership metrics",
		zap.String("run_id", prev.RunID),
		zap.Time("generated_at", prev.GeneratedAt),
		zap.Error(cause))

	prev.Stale = true
	prev.LastError = cause.Error()
	return prev, nil
}
