package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/semo-membership/internal/domain/errors"
	"github.com/wekeepgrowing/semo-membership/internal/domain/provider"
	"github.com/wekeepgrowing/semo-membership/internal/domain/repository"
	"github.com/wekeepgrowing/semo-membership/internal/observability"
	"github.com/wekeepgrowing/semo-membership/pkg/messaging"
)

// Ingestion outcomes.
const (
	IngestInserted  = "inserted"
	IngestDuplicate = "duplicate"
	IngestIgnored   = "ignored"
	IngestInvalid   = "invalid"
)

// Invalidator drops cached metrics.
type Invalidator interface {
	Invalidate()
}

// LifecycleNotification is published after a new lifecycle event was recorded.
type LifecycleNotification struct {
	EventID    string           `json:"event_id"`
	EventType  entity.EventType `json:"event_type"`
	MemberID   string           `json:"member_id,omitempty"`
	RecordedAt time.Time        `json:"recorded_at"`
}

// BackfillResult summarizes a backfill run.
type BackfillResult struct {
	Pages      int  `json:"pages"`
	Seen       int  `json:"seen"`
	Inserted   int  `json:"inserted"`
	Duplicates int  `json:"duplicates"`
	Truncated  bool `json:"truncated"`
}

// IngestionService records inbound lifecycle events into the event history.
type IngestionService struct {
	events      repository.EventHistoryRepository
	members     repository.MemberSnapshotRepository
	publisher   messaging.RedisClient
	channel     string
	invalidator Invalidator
	validate    *validator.Validate
	collectors  *observability.Collectors
	logger      *zap.Logger
}

// NewIngestionService creates a new ingestion service. With a publisher, new events are
// announced on channel and every subscriber invalidates its own cache; without one the local
// invalidator is called directly. Both may be nil.
func NewIngestionService(
	events repository.EventHistoryRepository,
	members repository.MemberSnapshotRepository,
	publisher messaging.RedisClient,
	channel string,
	invalidator Invalidator,
	collectors *observability.Collectors,
	logger *zap.Logger,
) *IngestionService {
	return &IngestionService{
		events:      events,
		members:     members,
		publisher:   publisher,
		channel:     channel,
		invalidator: invalidator,
		validate:    validator.New(),
		collectors:  collectors,
		logger:      logger,
	}
}

// Record resolves the member of an inbound event and stores it once. Duplicates and untracked
// event types are acknowledged without error and report false.
func (s *IngestionService) Record(ctx context.Context, inbound *entity.InboundEvent) (bool, error) {
	if inbound == nil {
		return false, nil
	}
	event := inbound.Event

	if !event.Type.Tracked() {
		s.collectors.EventIngested(string(event.Type), IngestIgnored)
		return false, nil
	}
	if err := s.validate.Struct(event); err != nil {
		s.collectors.EventIngested(string(event.Type), IngestInvalid)
		return false, fmt.Errorf("%w: %v", domainErrors.ErrInvalidEvent, err)
	}

	memberID, err := s.resolveMember(ctx, inbound)
	if err != nil {
		return false, err
	}
	event.MemberID = memberID

	inserted, err := s.events.InsertIfAbsent(ctx, &event)
	if err != nil {
		return false, err
	}
	if !inserted {
		s.collectors.EventIngested(string(event.Type), IngestDuplicate)
		s.logger.Info("Duplicate lifecycle event acknowledged",
			zap.String("event_id", event.ExternalEventID))
		return false, nil
	}

	s.collectors.EventIngested(string(event.Type), IngestInserted)
	s.logger.Info("Lifecycle event recorded",
		zap.String("event_id", event.ExternalEventID),
		zap.String("event_type", string(event.Type)),
		zap.String("member_id", memberID),
		zap.String("customer_id", event.CustomerID),
		zap.String("subscription_id", event.SubscriptionID))

	s.notify(ctx, LifecycleNotification{
		EventID:    event.ExternalEventID,
		EventType:  event.Type,
		MemberID:   memberID,
		RecordedAt: time.Now().UTC(),
	})
	return true, nil
}

// resolveMember tries processor metadata, then earlier events of the same customer, then the
// membership snapshot by email and by customer id. An unresolved member is not an error.
func (s *IngestionService) resolveMember(ctx context.Context, inbound *entity.InboundEvent) (string, error) {
	if inbound.MetadataMemberID != "" {
		return inbound.MetadataMemberID, nil
	}
	if inbound.Event.MemberID != "" {
		return inbound.Event.MemberID, nil
	}

	customerID := inbound.Event.CustomerID
	if customerID != "" {
		memberID, err := s.events.LatestMemberForCustomer(ctx, customerID)
		if err != nil {
			return "", err
		}
		if memberID != "" {
			return memberID, nil
		}
	}

	if inbound.CustomerEmail != "" {
		member, err := s.members.FindByEmail(ctx, inbound.CustomerEmail)
		switch {
		case err == nil:
			return member.MemberID, nil
		case !errors.Is(err, domainErrors.ErrMemberNotFound):
			return "", err
		}
	}

	if customerID != "" {
		member, err := s.members.FindByCustomerID(ctx, customerID)
		switch {
		case err == nil:
			return member.MemberID, nil
		case !errors.Is(err, domainErrors.ErrMemberNotFound):
			return "", err
		}
	}

	s.logger.Warn("Lifecycle event has no resolvable member",
		zap.String("event_id", inbound.Event.ExternalEventID),
		zap.String("customer_id", customerID))
	return "", nil
}

func (s *IngestionService) notify(ctx context.Context, n LifecycleNotification) {
	if s.publisher == nil {
		if s.invalidator != nil {
			s.invalidator.Invalidate()
		}
		return
	}

	if err := s.publisher.Publish(ctx, s.channel, n); err != nil {
		s.logger.Warn("Failed to publish lifecycle notification, invalidating locally",
			zap.String("event_id", n.EventID),
			zap.Error(err))
		if s.invalidator != nil {
			s.invalidator.Invalidate()
		}
	}
}

// Backfill pages through the processor's event log since the given time and records every
// tracked event. It fills gaps left by missed webhooks.
func (s *IngestionService) Backfill(ctx context.Context, source provider.EventSource, since time.Time, limits entity.PageLimits) (BackfillResult, error) {
	var result BackfillResult

	pages, err := CollectPages(ctx, limits, func(ctx context.Context, cursor string, limit int) (entity.Page[entity.InboundEvent], error) {
		return source.ListEvents(ctx, since, cursor, limit)
	})
	if err != nil {
		return result, fmt.Errorf("failed to list %s events: %w", source.GetProviderName(), err)
	}
	result.Pages = pages.Pages
	result.Truncated = pages.Truncated

	// The processor lists newest first; record oldest first so member resolution can use
	// earlier events of the same customer.
	for i := len(pages.Items) - 1; i >= 0; i-- {
		inbound := pages.Items[i]
		result.Seen++

		inserted, err := s.Record(ctx, &inbound)
		if err != nil {
			if errors.Is(err, domainErrors.ErrInvalidEvent) {
				s.logger.Warn("Skipping invalid event during backfill",
					zap.String("event_id", inbound.Event.ExternalEventID),
					zap.Error(err))
				continue
			}
			return result, err
		}
		if inserted {
			result.Inserted++
		} else {
			result.Duplicates++
		}
	}

	s.logger.Info("Lifecycle event backfill finished",
		zap.Time("since", since),
		zap.Int("pages", result.Pages),
		zap.Int("seen", result.Seen),
		zap.Int("inserted", result.Inserted),
		zap.Int("duplicates", result.Duplicates),
		zap.Bool("truncated", result.Truncated))
	return result, nil
}

// ListenForInvalidations invalidates the cache whenever a lifecycle notification arrives on
// channel. It returns when ctx is done or the subscription closes.
func ListenForInvalidations(ctx context.Context, client messaging.RedisClient, channel string, invalidator Invalidator, logger *zap.Logger) error {
	messages, err := client.Subscribe(ctx, channel)
	if err != nil {
		return err
	}

	logger.Info("Listening for lifecycle notifications", zap.String("channel", channel))
	for msg := range messages {
		invalidator.Invalidate()
		logger.Debug("Metrics cache invalidated by notification",
			zap.String("channel", msg.Channel),
			zap.ByteString("payload", msg.Payload))
	}
	return ctx.Err()
}
