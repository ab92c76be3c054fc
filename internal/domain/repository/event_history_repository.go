package repository

import (
	"context"
	"time"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
)

// EventHistoryRepository is the append-only lifecycle event history.
type EventHistoryRepository interface {
	// InsertIfAbsent stores event unless its external id is already present.
	// inserted is false for duplicates.
	InsertIfAbsent(ctx context.Context, event *entity.LifecycleEvent) (inserted bool, err error)

	// ListBySubject returns events matching the member or customer id, oldest first.
	ListBySubject(ctx context.Context, subject entity.EventSubject) ([]entity.LifecycleEvent, error)

	// LatestTrialBefore returns the newest event of the member created before cutoff whose
	// price id is one of trialPriceIDs, or nil.
	LatestTrialBefore(ctx context.Context, memberID string, trialPriceIDs []string, cutoff time.Time) (*entity.LifecycleEvent, error)

	// LatestMemberForCustomer returns the member id of the newest event for the customer
	// that carries one, or "".
	LatestMemberForCustomer(ctx context.Context, customerID string) (string, error)

	// List returns every stored event, oldest first.
	List(ctx context.Context) ([]entity.LifecycleEvent, error)
}
