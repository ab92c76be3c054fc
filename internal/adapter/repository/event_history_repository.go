package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
	"github.com/wekeepgrowing/semo-membership/internal/domain/model"
	"github.com/wekeepgrowing/semo-membership/internal/domain/repository"
)

type eventHistoryRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewEventHistoryRepository creates a new lifecycle event history repository
func NewEventHistoryRepository(db *gorm.DB, logger *zap.Logger) repository.EventHistoryRepository {
	return &eventHistoryRepository{
		db:     db,
		logger: logger,
	}
}

// InsertIfAbsent saves a new lifecycle event, ignoring duplicates of the same external id
func (r *eventHistoryRepository) InsertIfAbsent(ctx context.Context, event *entity.LifecycleEvent) (bool, error) {
	row := eventToModel(event)

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_event_id"}},
			DoNothing: true,
		}).
		Create(row)

	if result.Error != nil {
		r.logger.Error("Failed to save lifecycle event",
			zap.String("event_id", event.ExternalEventID),
			zap.String("event_type", string(event.Type)),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to save lifecycle event: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		r.logger.Debug("Lifecycle event already recorded",
			zap.String("event_id", event.ExternalEventID))
		return false, nil
	}

	return true, nil
}

// ListBySubject retrieves events of a member or customer in creation order
func (r *eventHistoryRepository) ListBySubject(ctx context.Context, subject entity.EventSubject) ([]entity.LifecycleEvent, error) {
	if subject.IsZero() {
		return nil, nil
	}

	query := r.db.WithContext(ctx)
	switch {
	case subject.MemberID != "" && subject.CustomerID != "":
		query = query.Where("member_id = ? OR customer_id = ?", subject.MemberID, subject.CustomerID)
	case subject.MemberID != "":
		query = query.Where("member_id = ?", subject.MemberID)
	default:
		query = query.Where("customer_id = ?", subject.CustomerID)
	}

	var rows []model.LifecycleEvent
	if err := query.Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		r.logger.Error("Failed to list lifecycle events",
			zap.String("member_id", subject.MemberID),
			zap.String("customer_id", subject.CustomerID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list lifecycle events: %w", err)
	}

	return modelsToEvents(rows), nil
}

// LatestTrialBefore retrieves the newest trial-priced event of a member before cutoff
func (r *eventHistoryRepository) LatestTrialBefore(ctx context.Context, memberID string, trialPriceIDs []string, cutoff time.Time) (*entity.LifecycleEvent, error) {
	if memberID == "" || len(trialPriceIDs) == 0 {
		return nil, nil
	}

	var row model.LifecycleEvent
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND price_id IN ? AND created_at < ?", memberID, trialPriceIDs, cutoff.UTC()).
		Order("created_at DESC").
		Order("id DESC").
		First(&row).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find trial event: %w", err)
	}

	event := modelToEvent(&row)
	return &event, nil
}

// LatestMemberForCustomer returns the member id most recently seen with the customer
func (r *eventHistoryRepository) LatestMemberForCustomer(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", nil
	}

	var row model.LifecycleEvent
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND member_id IS NOT NULL AND member_id <> ''", customerID).
		Order("created_at DESC").
		Order("id DESC").
		First(&row).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to find member for customer: %w", err)
	}

	return derefString(row.MemberID), nil
}

// List retrieves the whole event history in creation order
func (r *eventHistoryRepository) List(ctx context.Context) ([]entity.LifecycleEvent, error) {
	var rows []model.LifecycleEvent
	if err := r.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		r.logger.Error("Failed to list lifecycle events", zap.Error(err))
		return nil, fmt.Errorf("failed to list lifecycle events: %w", err)
	}
	return modelsToEvents(rows), nil
}

func eventToModel(e *entity.LifecycleEvent) *model.LifecycleEvent {
	payload := datatypes.JSON(e.Payload)
	if len(payload) == 0 {
		payload = datatypes.JSON("{}")
	}
	return &model.LifecycleEvent{
		ExternalEventID: e.ExternalEventID,
		EventType:       string(e.Type),
		MemberID:        optionalString(e.MemberID),
		CustomerID:      optionalString(e.CustomerID),
		SubscriptionID:  optionalString(e.SubscriptionID),
		InvoiceID:       optionalString(e.InvoiceID),
		PriceID:         optionalString(e.PriceID),
		Payload:         payload,
		CreatedAt:       e.CreatedAt.UTC(),
	}
}

func modelToEvent(m *model.LifecycleEvent) entity.LifecycleEvent {
	return entity.LifecycleEvent{
		ExternalEventID: m.ExternalEventID,
		Type:            entity.EventType(m.EventType),
		MemberID:        derefString(m.MemberID),
		CustomerID:      derefString(m.CustomerID),
		SubscriptionID:  derefString(m.SubscriptionID),
		InvoiceID:       derefString(m.InvoiceID),
		PriceID:         derefString(m.PriceID),
		CreatedAt:       m.CreatedAt.UTC(),
		Payload:         []byte(m.Payload),
	}
}

func modelsToEvents(rows []model.LifecycleEvent) []entity.LifecycleEvent {
	events := make([]entity.LifecycleEvent, 0, len(rows))
	for i := range rows {
		events = append(events, modelToEvent(&rows[i]))
	}
	return events
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
