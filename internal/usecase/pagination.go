package usecase

import (
	"context"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
)

// PageFetcher fetches the page after cursor. An empty cursor fetches the first page.
type PageFetcher[T any] func(ctx context.Context, cursor string, limit int) (entity.Page[T], error)

// PageResult is the outcome of a bounded paginated read.
type PageResult[T any] struct {
	Items []T
	Pages int
	// Truncated is set when the item cap or the page bound stopped the read while the
	// upstream still reported more data.
	Truncated bool
}

// CollectPages pages through fetch until the upstream reports no more data, the item cap is
// reached or MaxPages pages were read. Any fetch error aborts the read and no items are returned.
func CollectPages[T any](ctx context.Context, limits entity.PageLimits, fetch PageFetcher[T]) (PageResult[T], error) {
	limits = limits.Normalize()

	var (
		result PageResult[T]
		cursor string
	)

	for result.Pages < limits.MaxPages {
		if err := ctx.Err(); err != nil {
			return PageResult[T]{}, err
		}

		size := limits.PageSize
		if limits.MaxItems > 0 {
			if remaining := limits.MaxItems - len(result.Items); remaining < size {
				size = remaining
			}
		}

		page, err := fetch(ctx, cursor, size)
		if err != nil {
			return PageResult[T]{}, err
		}
		result.Pages++
		result.Items = append(result.Items, page.Items...)

		if limits.MaxItems > 0 && len(result.Items) >= limits.MaxItems {
			result.Truncated = len(result.Items) > limits.MaxItems || page.HasMore
			result.Items = result.Items[:limits.MaxItems]
			return result, nil
		}
		if !page.HasMore || page.NextCursor == "" || len(page.Items) == 0 {
			return result, nil
		}
		cursor = page.NextCursor
	}

	// The page bound was hit while the upstream still had data.
	result.Truncated = true
	return result, nil
}
