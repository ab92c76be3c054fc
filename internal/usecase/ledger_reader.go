package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/semo-membership/internal/config"
	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
	"github.com/wekeepgrowing/semo-membership/internal/domain/provider"
)

// InvoiceBatch is the result of a capped paid-invoice read.
type InvoiceBatch struct {
	Invoices   []entity.Invoice
	CapReached bool
}

// LedgerReader pages through the processor's subscription and invoice ledger.
type LedgerReader struct {
	source     provider.LedgerSource
	pageSize   int
	maxPages   int
	invoiceCap int
	logger     *zap.Logger
}

// NewLedgerReader creates a new ledger reader
func NewLedgerReader(source provider.LedgerSource, cfg config.MetricsConfig, logger *zap.Logger) *LedgerReader {
	return &LedgerReader{
		source:     source,
		pageSize:   cfg.PageSize,
		maxPages:   cfg.MaxPages,
		invoiceCap: cfg.InvoiceCap,
		logger:     logger,
	}
}

// ListSubscriptions returns every subscription in the given status.
func (r *LedgerReader) ListSubscriptions(ctx context.Context, status entity.SubscriptionStatus) ([]entity.Subscription, error) {
	result, err := CollectPages(ctx, entity.PageLimits{PageSize: r.pageSize, MaxPages: r.maxPages},
		func(ctx context.Context, cursor string, limit int) (entity.Page[entity.Subscription], error) {
			return r.source.ListSubscriptions(ctx, status, cursor, limit)
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s subscriptions: %w", status, err)
	}

	if result.Truncated {
		r.logger.Warn("Subscription listing stopped at page bound",
			zap.String("status", string(status)),
			zap.Int("pages", result.Pages),
			zap.Int("subscriptions", len(result.Items)))
	}

	return result.Items, nil
}

// ListPaidInvoices returns paid invoices, optionally created after createdAfter, up to the
// configured invoice cap.
func (r *LedgerReader) ListPaidInvoices(ctx context.Context, createdAfter *time.Time) (InvoiceBatch, error) {
	result, err := CollectPages(ctx, entity.PageLimits{PageSize: r.pageSize, MaxPages: r.maxPages, MaxItems: r.invoiceCap},
		func(ctx context.Context, cursor string, limit int) (entity.Page[entity.Invoice], error) {
			return r.source.ListPaidInvoices(ctx, createdAfter, cursor, limit)
		})
	if err != nil {
		return InvoiceBatch{}, fmt.Errorf("failed to list paid invoices: %w", err)
	}

	batch := InvoiceBatch{
		Invoices:   make([]entity.Invoice, 0, len(result.Items)),
		CapReached: result.Truncated,
	}
	for _, inv := range result.Items {
		if inv.Paid {
			batch.Invoices = append(batch.Invoices, inv)
		}
	}

	if batch.CapReached {
		r.logger.Warn("Paid invoice listing truncated",
			zap.Int("cap", r.invoiceCap),
			zap.Int("pages", result.Pages),
			zap.Int("invoices", len(batch.Invoices)))
	}

	return batch, nil
}
