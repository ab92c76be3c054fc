package repository

import (
	"context"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
)

// MemberSnapshotRepository reads the membership cache. It is written by an external sync job.
type MemberSnapshotRepository interface {
	ListAll(ctx context.Context) ([]entity.MemberSnapshot, error)
	FindByEmail(ctx context.Context, email string) (*entity.MemberSnapshot, error)
	FindByCustomerID(ctx context.Context, customerID string) (*entity.MemberSnapshot, error)
}
