package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/semo-membership/internal/domain/errors"
	"github.com/wekeepgrowing/semo-membership/internal/usecase"
	"github.com/wekeepgrowing/semo-membership/pkg/messaging"
)

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) Invalidate() {
	c.calls++
}

func inboundEvent(id string, eventType entity.EventType, customerID string, at time.Time) entity.InboundEvent {
	return entity.InboundEvent{
		Event: entity.LifecycleEvent{
			ExternalEventID: id,
			Type:            eventType,
			CustomerID:      customerID,
			CreatedAt:       at,
			Payload:         []byte(`{}`),
		},
	}
}

func TestIngestionService_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("metadata member wins", func(t *testing.T) {
		events := new(MockEventHistoryRepository)
		members := new(MockMemberSnapshotRepository)
		invalidator := &countingInvalidator{}
		events.On("InsertIfAbsent", ctx, mock.MatchedBy(func(e *entity.LifecycleEvent) bool {
			return e.MemberID == "mem_meta"
		})).Return(true, nil)

		svc := usecase.NewIngestionService(events, members, nil, "", invalidator, nil, zap.NewNop())
		inbound := inboundEvent("evt_1", entity.EventTypeCheckoutCompleted, "cus_1", daysAgo(1))
		inbound.MetadataMemberID = "mem_meta"

		inserted, err := svc.Record(ctx, &inbound)

		require.NoError(t, err)
		assert.True(t, inserted)
		assert.Equal(t, 1, invalidator.calls)
		events.AssertExpectations(t)
		events.AssertNotCalled(t, "LatestMemberForCustomer", mock.Anything, mock.Anything)
	})

	t.Run("earlier event of the same customer", func(t *testing.T) {
		events := new(MockEventHistoryRepository)
		members := new(MockMemberSnapshotRepository)
		events.On("LatestMemberForCustomer", ctx, "cus_1").Return("mem_history", nil)
		events.On("InsertIfAbsent", ctx, mock.MatchedBy(func(e *entity.LifecycleEvent) bool {
			return e.MemberID == "mem_history"
		})).Return(true, nil)

		svc := usecase.NewIngestionService(events, members, nil, "", nil, nil, zap.NewNop())
		inbound := inboundEvent("evt_2", entity.EventTypeInvoicePaid, "cus_1", daysAgo(1))
		inbound.CustomerEmail = "someone@example.com"

		inserted, err := svc.Record(ctx, &inbound)

		require.NoError(t, err)
		assert.True(t, inserted)
		members.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything)
	})

	t.Run("snapshot email then customer id", func(t *testing.T) {
		events := new(MockEventHistoryRepository)
		members := new(MockMemberSnapshotRepository)
		events.On("LatestMemberForCustomer", ctx, "cus_1").Return("", nil)
		members.On("FindByEmail", ctx, "someone@example.com").Return(nil, domainErrors.ErrMemberNotFound)
		members.On("FindByCustomerID", ctx, "cus_1").Return(&entity.MemberSnapshot{MemberID: "mem_snapshot"}, nil)
		events.On("InsertIfAbsent", ctx, mock.MatchedBy(func(e *entity.LifecycleEvent) bool {
			return e.MemberID == "mem_snapshot"
		})).Return(true, nil)

		svc := usecase.NewIngestionService(events, members, nil, "", nil, nil, zap.NewNop())
		inbound := inboundEvent("evt_3", entity.EventTypeSubscriptionCreated, "cus_1", daysAgo(1))
		inbound.CustomerEmail = "someone@example.com"

		inserted, err := svc.Record(ctx, &inbound)

		require.NoError(t, err)
		assert.True(t, inserted)
		members.AssertExpectations(t)
	})

	t.Run("unresolved member is stored", func(t *testing.T) {
		events := new(MockEventHistoryRepository)
		members := new(MockMemberSnapshotRepository)
		events.On("LatestMemberForCustomer", ctx, "cus_9").Return("", nil)
		members.On("FindByCustomerID", ctx, "cus_9").Return(nil, domainErrors.ErrMemberNotFound)
		events.On("InsertIfAbsent", ctx, mock.MatchedBy(func(e *entity.LifecycleEvent) bool {
			return e.MemberID == ""
		})).Return(true, nil)

		svc := usecase.NewIngestionService(events, members, nil, "", nil, nil, zap.NewNop())
		inbound := inboundEvent("evt_4", entity.EventTypeInvoicePaid, "cus_9", daysAgo(1))

		inserted, err := svc.Record(ctx, &inbound)

		require.NoError(t, err)
		assert.True(t, inserted)
	})

	t.Run("snapshot failure is returned", func(t *testing.T) {
		events := new(MockEventHistoryRepository)
		members := new(MockMemberSnapshotRepository)
		events.On("LatestMemberForCustomer", ctx, "cus_1").Return("", nil)
		members.On("FindByEmail", ctx, "someone@example.com").Return(nil, errors.New("connection reset"))

		svc := usecase.NewIngestionService(events, members, nil, "", nil, nil, zap.NewNop())
		inbound := inboundEvent("evt_5", entity.EventTypeInvoicePaid, "cus_1", daysAgo(1))
		inbound.CustomerEmail = "someone@example.com"

		_, err := svc.Record(ctx, &inbound)

		require.Error(t, err)
		events.AssertNotCalled(t, "InsertIfAbsent", mock.Anything, mock.Anything)
	})

	t.Run("duplicate is acknowledged", func(t *testing.T) {
		events := new(MockEventHistoryRepository)
		members := new(MockMemberSnapshotRepository)
		invalidator := &countingInvalidator{}
		events.On("InsertIfAbsent", ctx, mock.Anything).Return(false, nil)

		svc := usecase.NewIngestionService(events, members, nil, "", invalidator, nil, zap.NewNop())
		inbound := inboundEvent("evt_6", entity.EventTypeInvoicePaid, "", daysAgo(1))
		inbound.MetadataMemberID = "mem_1"

		inserted, err := svc.Record(ctx, &inbound)

		require.NoError(t, err)
		assert.False(t, inserted)
		assert.Zero(t, invalidator.calls)
	})

	t.Run("untracked type is ignored", func(t *testing.T) {
		events := new(MockEventHistoryRepository)
		svc := usecase.NewIngestionService(events, new(MockMemberSnapshotRepository), nil, "", nil, nil, zap.NewNop())
		inbound := inboundEvent("evt_7", entity.EventType("customer.created"), "cus_1", daysAgo(1))

		inserted, err := svc.Record(ctx, &inbound)

		require.NoError(t, err)
		assert.False(t, inserted)
		events.AssertNotCalled(t, "InsertIfAbsent", mock.Anything, mock.Anything)
	})

	t.Run("missing event id is invalid", func(t *testing.T) {
		svc := usecase.NewIngestionService(new(MockEventHistoryRepository), new(MockMemberSnapshotRepository), nil, "", nil, nil, zap.NewNop())
		inbound := inboundEvent("", entity.EventTypeInvoicePaid, "cus_1", daysAgo(1))

		_, err := svc.Record(ctx, &inbound)

		assert.ErrorIs(t, err, domainErrors.ErrInvalidEvent)
	})
}

func TestIngestionService_Notify(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes notification", func(t *testing.T) {
		events := new(MockEventHistoryRepository)
		events.On("InsertIfAbsent", ctx, mock.Anything).Return(true, nil)
		publisher := new(MockRedisClient)
		publisher.On("Publish", ctx, "membership.lifecycle", mock.MatchedBy(func(n usecase.LifecycleNotification) bool {
			return n.EventID == "evt_1" && n.MemberID == "mem_1" && n.EventType == entity.EventTypeInvoicePaid
		})).Return(nil)
		invalidator := &countingInvalidator{}

		svc := usecase.NewIngestionService(events, new(MockMemberSnapshotRepository), publisher, "membership.lifecycle", invalidator, nil, zap.NewNop())
		inbound := inboundEvent("evt_1", entity.EventTypeInvoicePaid, "", daysAgo(1))
		inbound.MetadataMemberID = "mem_1"

		_, err := svc.Record(ctx, &inbound)

		require.NoError(t, err)
		publisher.AssertExpectations(t)
		assert.Zero(t, invalidator.calls, "subscribers invalidate on delivery")
	})

	t.Run("publish failure invalidates locally", func(t *testing.T) {
		events := new(MockEventHistoryRepository)
		events.On("InsertIfAbsent", ctx, mock.Anything).Return(true, nil)
		publisher := new(MockRedisClient)
		publisher.On("Publish", ctx, "membership.lifecycle", mock.Anything).Return(errors.New("connection refused"))
		invalidator := &countingInvalidator{}

		svc := usecase.NewIngestionService(events, new(MockMemberSnapshotRepository), publisher, "membership.lifecycle", invalidator, nil, zap.NewNop())
		inbound := inboundEvent("evt_1", entity.EventTypeInvoicePaid, "", daysAgo(1))
		inbound.MetadataMemberID = "mem_1"

		inserted, err := svc.Record(ctx, &inbound)

		require.NoError(t, err)
		assert.True(t, inserted)
		assert.Equal(t, 1, invalidator.calls)
	})
}

func TestIngestionService_Backfill(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	ledger.events = []entity.InboundEvent{
		inboundEvent("evt_old", entity.EventTypeCheckoutCompleted, "cus_1", daysAgo(5)),
		inboundEvent("evt_mid", entity.EventTypeSubscriptionCreated, "cus_1", daysAgo(4)),
		inboundEvent("evt_new", entity.EventTypeInvoicePaid, "cus_1", daysAgo(3)),
		inboundEvent("evt_bad", entity.EventTypeInvoicePaid, "cus_1", daysAgo(2)),
		inboundEvent("evt_before", entity.EventTypeInvoicePaid, "cus_1", daysAgo(30)),
	}
	ledger.events[0].MetadataMemberID = "mem_1"
	ledger.events[3].Event.ExternalEventID = ""

	var order []string
	record := func(args mock.Arguments) {
		order = append(order, args.Get(1).(*entity.LifecycleEvent).ExternalEventID)
	}
	events := new(MockEventHistoryRepository)
	events.On("LatestMemberForCustomer", ctx, "cus_1").Return("mem_1", nil)
	events.On("InsertIfAbsent", ctx, mock.Anything).Run(record).Return(true, nil).Times(2)
	events.On("InsertIfAbsent", ctx, mock.Anything).Run(record).Return(false, nil)

	svc := usecase.NewIngestionService(events, new(MockMemberSnapshotRepository), nil, "", &countingInvalidator{}, nil, zap.NewNop())

	result, err := svc.Backfill(ctx, ledger, daysAgo(7), entity.PageLimits{PageSize: 2})

	require.NoError(t, err)
	assert.Equal(t, []string{"evt_old", "evt_mid", "evt_new"}, order)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 4, result.Seen)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Duplicates)
	assert.False(t, result.Truncated)
}

func TestListenForInvalidations(t *testing.T) {
	messages := make(chan messaging.Message, 2)
	messages <- messaging.Message{Channel: "membership.lifecycle", Payload: []byte(`{"event_id":"evt_1"}`)}
	messages <- messaging.Message{Channel: "membership.lifecycle", Payload: []byte(`{"event_id":"evt_2"}`)}
	close(messages)

	client := new(MockRedisClient)
	client.On("Subscribe", mock.Anything, "membership.lifecycle").Return((<-chan messaging.Message)(messages), nil)
	invalidator := &countingInvalidator{}

	err := usecase.ListenForInvalidations(context.Background(), client, "membership.lifecycle", invalidator, zap.NewNop())

	require.NoError(t, err)
	assert.Equal(t, 2, invalidator.calls)
}

func TestListenForInvalidations_SubscribeError(t *testing.T) {
	client := new(MockRedisClient)
	client.On("Subscribe", mock.Anything, "membership.lifecycle").Return(nil, errors.New("connection refused"))

	err := usecase.ListenForInvalidations(context.Background(), client, "membership.lifecycle", &countingInvalidator{}, zap.NewNop())

	assert.Error(t, err)
}
