package usecase_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
	"github.com/wekeepgrowing/semo-membership/pkg/messaging"
)

// MockEventHistoryRepository is a mock implementation of EventHistoryRepository
type MockEventHistoryRepository struct {
	mock.Mock
}

func (m *MockEventHistoryRepository) InsertIfAbsent(ctx context.Context, event *entity.LifecycleEvent) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

func (m *MockEventHistoryRepository) ListBySubject(ctx context.Context, subject entity.EventSubject) ([]entity.LifecycleEvent, error) {
	args := m.Called(ctx, subject)
	return args.Get(0).([]entity.LifecycleEvent), args.Error(1)
}

func (m *MockEventHistoryRepository) LatestTrialBefore(ctx context.Context, memberID string, trialPriceIDs []string, cutoff time.Time) (*entity.LifecycleEvent, error) {
	args := m.Called(ctx, memberID, trialPriceIDs, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.LifecycleEvent), args.Error(1)
}

func (m *MockEventHistoryRepository) LatestMemberForCustomer(ctx context.Context, customerID string) (string, error) {
	args := m.Called(ctx, customerID)
	return args.String(0), args.Error(1)
}

func (m *MockEventHistoryRepository) List(ctx context.Context) ([]entity.LifecycleEvent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.LifecycleEvent), args.Error(1)
}

// MockMemberSnapshotRepository is a mock implementation of MemberSnapshotRepository
type MockMemberSnapshotRepository struct {
	mock.Mock
}

func (m *MockMemberSnapshotRepository) ListAll(ctx context.Context) ([]entity.MemberSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.MemberSnapshot), args.Error(1)
}

func (m *MockMemberSnapshotRepository) FindByEmail(ctx context.Context, email string) (*entity.MemberSnapshot, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.MemberSnapshot), args.Error(1)
}

func (m *MockMemberSnapshotRepository) FindByCustomerID(ctx context.Context, customerID string) (*entity.MemberSnapshot, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.MemberSnapshot), args.Error(1)
}

// MockRedisClient is a mock implementation of messaging.RedisClient
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func (m *MockRedisClient) Subscribe(ctx context.Context, channel string) (<-chan messaging.Message, error) {
	args := m.Called(ctx, channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan messaging.Message), args.Error(1)
}

func (m *MockRedisClient) Close() error {
	return m.Called().Error(0)
}

// fakeLedger serves subscriptions, invoices, refunds and events from memory, one page at a time.
type fakeLedger struct {
	mu sync.Mutex

	subscriptions map[entity.SubscriptionStatus][]entity.Subscription
	invoices      []entity.Invoice
	refunds       map[string][]entity.Refund
	events        []entity.InboundEvent

	subscriptionErr map[entity.SubscriptionStatus]error
	invoiceErr      error
	refundErr       error

	invoiceCalls int
	refundCalls  map[string]int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		subscriptions:   make(map[entity.SubscriptionStatus][]entity.Subscription),
		refunds:         make(map[string][]entity.Refund),
		subscriptionErr: make(map[entity.SubscriptionStatus]error),
		refundCalls:     make(map[string]int),
	}
}

func (f *fakeLedger) addSubscription(sub entity.Subscription) {
	f.subscriptions[sub.Status] = append(f.subscriptions[sub.Status], sub)
}

func (f *fakeLedger) ListSubscriptions(_ context.Context, status entity.SubscriptionStatus, cursor string, limit int) (entity.Page[entity.Subscription], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.subscriptionErr[status]; err != nil {
		return entity.Page[entity.Subscription]{}, err
	}
	return pageOf(f.subscriptions[status], func(s entity.Subscription) string { return s.ID }, cursor, limit), nil
}

func (f *fakeLedger) ListPaidInvoices(_ context.Context, createdAfter *time.Time, cursor string, limit int) (entity.Page[entity.Invoice], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoiceCalls++
	if f.invoiceErr != nil {
		return entity.Page[entity.Invoice]{}, f.invoiceErr
	}
	var invoices []entity.Invoice
	for _, inv := range f.invoices {
		if createdAfter == nil || inv.CreatedAt.After(*createdAfter) {
			invoices = append(invoices, inv)
		}
	}
	return pageOf(invoices, func(i entity.Invoice) string { return i.ID }, cursor, limit), nil
}

func (f *fakeLedger) ListRefunds(_ context.Context, chargeID, cursor string, limit int) (entity.Page[entity.Refund], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refundCalls[chargeID]++
	if f.refundErr != nil {
		return entity.Page[entity.Refund]{}, f.refundErr
	}
	return pageOf(f.refunds[chargeID], func(r entity.Refund) string { return r.ID }, cursor, limit), nil
}

func (f *fakeLedger) ListEvents(_ context.Context, since time.Time, cursor string, limit int) (entity.Page[entity.InboundEvent], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var events []entity.InboundEvent
	for _, e := range f.events {
		if !e.Event.CreatedAt.Before(since) {
			events = append(events, e)
		}
	}
	// Processor order: newest first.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Event.CreatedAt.After(events[j].Event.CreatedAt)
	})
	return pageOf(events, func(e entity.InboundEvent) string { return e.Event.ExternalEventID }, cursor, limit), nil
}

func (f *fakeLedger) ParseWebhook(_ context.Context, payload []byte, signature string) (*entity.InboundEvent, error) {
	return nil, nil
}

func (f *fakeLedger) GetProviderName() string {
	return "fake"
}

func pageOf[T any](items []T, id func(T) string, cursor string, limit int) entity.Page[T] {
	start := 0
	if cursor != "" {
		for i, item := range items {
			if id(item) == cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}

	page := entity.Page[T]{
		Items:   append([]T(nil), items[start:end]...),
		HasMore: end < len(items),
	}
	if len(page.Items) > 0 {
		page.NextCursor = id(page.Items[len(page.Items)-1])
	}
	return page
}
