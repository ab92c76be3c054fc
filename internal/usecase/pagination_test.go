package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
	"github.com/wekeepgrowing/semo-membership/internal/usecase"
)

func numberedItems(n int) []string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf("item_%03d", i)
	}
	return items
}

func fetcherOver(items []string, calls *int) usecase.PageFetcher[string] {
	return func(_ context.Context, cursor string, limit int) (entity.Page[string], error) {
		*calls++
		return pageOf(items, func(s string) string { return s }, cursor, limit), nil
	}
}

func TestCollectPages(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		items         int
		limits        entity.PageLimits
		wantItems     int
		wantPages     int
		wantTruncated bool
	}{
		{name: "single page", items: 3, limits: entity.PageLimits{PageSize: 10}, wantItems: 3, wantPages: 1},
		{name: "several pages", items: 25, limits: entity.PageLimits{PageSize: 10}, wantItems: 25, wantPages: 3},
		{name: "exact multiple", items: 20, limits: entity.PageLimits{PageSize: 10}, wantItems: 20, wantPages: 2},
		{name: "empty", items: 0, limits: entity.PageLimits{PageSize: 10}, wantItems: 0, wantPages: 1},
		{name: "item cap", items: 25, limits: entity.PageLimits{PageSize: 10, MaxItems: 15}, wantItems: 15, wantPages: 2, wantTruncated: true},
		{name: "item cap equals total", items: 15, limits: entity.PageLimits{PageSize: 10, MaxItems: 15}, wantItems: 15, wantPages: 2},
		{name: "page bound", items: 50, limits: entity.PageLimits{PageSize: 10, MaxPages: 2}, wantItems: 20, wantPages: 2, wantTruncated: true},
		{name: "page size clamped", items: 250, limits: entity.PageLimits{PageSize: 1000}, wantItems: 250, wantPages: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			result, err := usecase.CollectPages(ctx, tt.limits, fetcherOver(numberedItems(tt.items), &calls))
			require.NoError(t, err)
			assert.Len(t, result.Items, tt.wantItems)
			assert.Equal(t, tt.wantPages, result.Pages)
			assert.Equal(t, tt.wantPages, calls)
			assert.Equal(t, tt.wantTruncated, result.Truncated)
		})
	}
}

func TestCollectPages_ErrorAbortsWholeRead(t *testing.T) {
	upstream := errors.New("rate limited")
	calls := 0

	result, err := usecase.CollectPages(context.Background(), entity.PageLimits{PageSize: 2},
		func(_ context.Context, cursor string, limit int) (entity.Page[string], error) {
			calls++
			if calls == 2 {
				return entity.Page[string]{}, upstream
			}
			return pageOf(numberedItems(10), func(s string) string { return s }, cursor, limit), nil
		})

	assert.ErrorIs(t, err, upstream)
	assert.Empty(t, result.Items, "no partial results")
}

func TestCollectPages_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := usecase.CollectPages(ctx, entity.PageLimits{PageSize: 10}, fetcherOver(numberedItems(5), &calls))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
