package provider

import (
	"context"
	"time"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
)

// LedgerSource reads single pages of the payment processor's subscription and invoice ledger.
// cursor is the identifier of the last item already seen; empty starts from the beginning.
type LedgerSource interface {
	// ListSubscriptions returns one page of subscriptions with the given status.
	ListSubscriptions(ctx context.Context, status entity.SubscriptionStatus, cursor string, limit int) (entity.Page[entity.Subscription], error)

	// ListPaidInvoices returns one page of paid invoices, optionally created after createdAfter.
	ListPaidInvoices(ctx context.Context, createdAfter *time.Time, cursor string, limit int) (entity.Page[entity.Invoice], error)
}

// RefundSource reads refunds issued against a charge.
type RefundSource interface {
	ListRefunds(ctx context.Context, chargeID, cursor string, limit int) (entity.Page[entity.Refund], error)
}

// EventSource reads lifecycle notifications from the processor.
type EventSource interface {
	// ListEvents returns one page of processor events created at or after since.
	ListEvents(ctx context.Context, since time.Time, cursor string, limit int) (entity.Page[entity.InboundEvent], error)

	// ParseWebhook verifies a signed webhook payload and converts it.
	// It returns nil without error for event types that are not tracked.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*entity.InboundEvent, error)

	// GetProviderName returns the provider name
	GetProviderName() string
}
