package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/semo-membership/internal/clock"
	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/semo-membership/internal/domain/errors"
	"github.com/wekeepgrowing/semo-membership/internal/observability"
	"github.com/wekeepgrowing/semo-membership/internal/usecase"
)

// stubAggregator returns numbered metric sets, or err when set.
type stubAggregator struct {
	calls   atomic.Int32
	mu      sync.Mutex
	err     error
	release chan struct{}
}

func (s *stubAggregator) Aggregate(ctx context.Context) (*entity.Metrics, error) {
	n := s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &entity.Metrics{RunID: fmt.Sprintf("run_%d", n), Currency: "usd", GeneratedAt: testNow}, nil
}

func (s *stubAggregator) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func newTestCache(agg usecase.Aggregator, clk clock.Clock, collectors *observability.Collectors) *usecase.MetricsCache {
	return usecase.NewMetricsCache(agg, 10*time.Minute, clk, collectors, zap.NewNop())
}

func TestMetricsCache_ServesWithinTTL(t *testing.T) {
	agg := &stubAggregator{}
	clk := clock.NewFakeClock(testNow)
	cache := newTestCache(agg, clk, nil)
	ctx := context.Background()

	first, err := cache.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "run_1", first.RunID)

	clk.Advance(9 * time.Minute)
	second, err := cache.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "run_1", second.RunID)
	assert.Equal(t, int32(1), agg.calls.Load())

	clk.Advance(time.Minute)
	third, err := cache.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "run_2", third.RunID)
}

func TestMetricsCache_ForceRecomputes(t *testing.T) {
	agg := &stubAggregator{}
	cache := newTestCache(agg, clock.NewFakeClock(testNow), nil)
	ctx := context.Background()

	_, err := cache.Get(ctx, false)
	require.NoError(t, err)
	m, err := cache.Get(ctx, true)
	require.NoError(t, err)

	assert.Equal(t, "run_2", m.RunID)
	assert.Equal(t, int32(2), agg.calls.Load())
}

func TestMetricsCache_Invalidate(t *testing.T) {
	agg := &stubAggregator{}
	cache := newTestCache(agg, clock.NewFakeClock(testNow), nil)
	ctx := context.Background()

	_, err := cache.Get(ctx, false)
	require.NoError(t, err)
	cache.Invalidate()

	cached, ok := cache.Cached()
	require.True(t, ok, "invalidation keeps the previous value")
	assert.Equal(t, "run_1", cached.RunID)

	m, err := cache.Get(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "run_2", m.RunID)
}

func TestMetricsCache_StaleFallback(t *testing.T) {
	agg := &stubAggregator{}
	reg := prometheus.NewRegistry()
	collectors := observability.NewCollectors(reg)
	cache := newTestCache(agg, clock.NewFakeClock(testNow), collectors)
	ctx := context.Background()

	_, err := cache.Get(ctx, false)
	require.NoError(t, err)

	agg.fail(domainErrors.NewUpstreamError(domainErrors.StepPaidInvoices, errors.New("rate limited")))
	m, err := cache.Get(ctx, true)
	require.NoError(t, err)

	assert.True(t, m.Stale)
	assert.Equal(t, "run_1", m.RunID)
	assert.Contains(t, m.LastError, "rate limited")
	assert.Contains(t, m.LastError, domainErrors.StepPaidInvoices)

	cached, ok := cache.Cached()
	require.True(t, ok)
	assert.False(t, cached.Stale, "stored value is not mutated")

	assert.Equal(t, 1.0, counterValue(t, reg, "membership_metrics_cache_requests_total", observability.CacheStale))
}

func TestMetricsCache_UnavailableWithoutPreviousValue(t *testing.T) {
	agg := &stubAggregator{err: errors.New("unauthorized")}
	cache := newTestCache(agg, clock.NewFakeClock(testNow), nil)

	m, err := cache.Get(context.Background(), false)
	require.Error(t, err)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, domainErrors.ErrMetricsUnavailable)
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestMetricsCache_CollapsesConcurrentRecomputes(t *testing.T) {
	agg := &stubAggregator{release: make(chan struct{})}
	cache := newTestCache(agg, clock.NewFakeClock(testNow), nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*entity.Metrics, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := cache.Get(context.Background(), false)
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}

	require.Eventually(t, func() bool { return agg.calls.Load() == 1 }, time.Second, time.Millisecond)
	// Give the remaining callers time to join the in-flight recompute.
	time.Sleep(20 * time.Millisecond)
	close(agg.release)
	wg.Wait()

	assert.Equal(t, int32(1), agg.calls.Load())
	for _, m := range results {
		require.NotNil(t, m)
		assert.Equal(t, "run_1", m.RunID)
	}
}

func TestMetricsCache_RecomputeOutlivesCanceledCaller(t *testing.T) {
	agg := &stubAggregator{release: make(chan struct{})}
	cache := newTestCache(agg, clock.NewFakeClock(testNow), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := cache.Get(ctx, false)
		done <- err
	}()

	require.Eventually(t, func() bool { return agg.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, domainErrors.ErrMetricsUnavailable)
	assert.ErrorIs(t, err, context.Canceled)

	close(agg.release)
	require.Eventually(t, func() bool {
		_, ok := cache.Cached()
		return ok
	}, time.Second, time.Millisecond)

	m, err := cache.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "run_1", m.RunID)
	assert.Equal(t, int32(1), agg.calls.Load())
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
