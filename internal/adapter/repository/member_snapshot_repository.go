package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/semo-membership/internal/domain/errors"
	"github.com/wekeepgrowing/semo-membership/internal/domain/model"
	"github.com/wekeepgrowing/semo-membership/internal/domain/repository"
)

type memberSnapshotRepository struct {
	db *gorm.DB
}

func NewMemberSnapshotRepository(db *gorm.DB) repository.MemberSnapshotRepository {
	return &memberSnapshotRepository{
		db: db,
	}
}

// modelToEntity converts a model.MemberSnapshot to entity.MemberSnapshot
func (r *memberSnapshotRepository) modelToEntity(m *model.MemberSnapshot) *entity.MemberSnapshot {
	if m == nil {
		return nil
	}
	plan := m.Plan.Data()
	if plan.CustomerID == "" {
		plan.CustomerID = derefString(m.CustomerID)
	}
	return &entity.MemberSnapshot{
		MemberID: m.MemberID,
		Email:    m.Email,
		SignupAt: m.SignupAt.UTC(),
		Plan:     plan,
	}
}

func (r *memberSnapshotRepository) ListAll(ctx context.Context) ([]entity.MemberSnapshot, error) {
	var rows []model.MemberSnapshot
	if err := r.db.WithContext(ctx).Order("member_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list member snapshots: %w", err)
	}

	members := make([]entity.MemberSnapshot, 0, len(rows))
	for i := range rows {
		members = append(members, *r.modelToEntity(&rows[i]))
	}
	return members, nil
}

// FindByEmail matches case-insensitively; ErrMemberNotFound when nothing matches.
func (r *memberSnapshotRepository) FindByEmail(ctx context.Context, email string) (*entity.MemberSnapshot, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, domainErrors.ErrMemberNotFound
	}
	return r.first(ctx, "LOWER(email) = ?", strings.ToLower(email))
}

func (r *memberSnapshotRepository) FindByCustomerID(ctx context.Context, customerID string) (*entity.MemberSnapshot, error) {
	if customerID == "" {
		return nil, domainErrors.ErrMemberNotFound
	}
	return r.first(ctx, "customer_id = ?", customerID)
}

func (r *memberSnapshotRepository) first(ctx context.Context, query string, args ...interface{}) (*entity.MemberSnapshot, error) {
	var row model.MemberSnapshot
	err := r.db.WithContext(ctx).Where(query, args...).Order("signup_at DESC").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to find member snapshot: %w", err)
	}
	return r.modelToEntity(&row), nil
}
