package usecase

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/semo-membership/internal/domain/errors"
	"github.com/wekeepgrowing/semo-membership/internal/domain/provider"
)

// RefundResolver nets paid invoices against their refunds. It lives for one aggregation pass:
// refund totals are memoized per charge and it is not safe for concurrent use.
type RefundResolver struct {
	source   provider.RefundSource
	currency string
	limits   entity.PageLimits
	logger   *zap.Logger

	refundedByCharge map[string]decimal.Decimal
	skipped          int
}

// NewRefundResolver creates a refund resolver for one pass in the settlement currency
func NewRefundResolver(source provider.RefundSource, currency string, limits entity.PageLimits, logger *zap.Logger) *RefundResolver {
	return &RefundResolver{
		source:           source,
		currency:         strings.ToLower(currency),
		limits:           limits,
		logger:           logger,
		refundedByCharge: make(map[string]decimal.Decimal),
	}
}

// NetAmount returns the invoice amount net of refunds in minor units, floored at zero.
// Invoices outside the settlement currency yield zero and are counted as skipped.
func (r *RefundResolver) NetAmount(ctx context.Context, inv entity.Invoice) (decimal.Decimal, error) {
	if !strings.EqualFold(inv.Currency, r.currency) {
		r.skipped++
		r.logger.Debug("Skipping invoice in non-settlement currency",
			zap.String("invoice_id", inv.ID),
			zap.String("currency", inv.Currency))
		return decimal.Zero, nil
	}

	if inv.AmountRefunded != nil {
		net := decimal.NewFromInt(inv.AmountPaid).Sub(decimal.NewFromInt(*inv.AmountRefunded))
		return floorZero(net), nil
	}

	total := decimal.NewFromInt(inv.Total)
	if inv.ChargeID == "" {
		return floorZero(total), nil
	}

	refunded, err := r.refundedForCharge(ctx, inv.ChargeID)
	if err != nil {
		return decimal.Zero, domainErrors.NewUpstreamError(domainErrors.StepRefunds, err)
	}

	return floorZero(total.Sub(refunded)), nil
}

// Skipped returns how many invoices were skipped for their currency.
func (r *RefundResolver) Skipped() int {
	return r.skipped
}

func (r *RefundResolver) refundedForCharge(ctx context.Context, chargeID string) (decimal.Decimal, error) {
	if refunded, ok := r.refundedByCharge[chargeID]; ok {
		return refunded, nil
	}

	result, err := CollectPages(ctx, r.limits,
		func(ctx context.Context, cursor string, limit int) (entity.Page[entity.Refund], error) {
			return r.source.ListRefunds(ctx, chargeID, cursor, limit)
		})
	if err != nil {
		r.logger.Error("Failed to list refunds",
			zap.String("charge_id", chargeID),
			zap.Error(err))
		return decimal.Zero, err
	}

	refunded := decimal.Zero
	for _, refund := range result.Items {
		if refund.Status == "failed" || refund.Status == "canceled" {
			continue
		}
		refunded = refunded.Add(decimal.NewFromInt(refund.Amount))
	}

	r.refundedByCharge[chargeID] = refunded
	return refunded, nil
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
