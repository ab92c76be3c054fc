package stripe

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v79"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
)

// ListRefunds returns one page of refunds issued against a charge.
func (s *StripeProvider) ListRefunds(ctx context.Context, chargeID, cursor string, limit int) (entity.Page[entity.Refund], error) {
	params := &stripe.RefundListParams{
		Charge: stripe.String(chargeID),
	}
	params.Context = ctx
	singlePage(&params.ListParams, cursor, limit)

	return collectPage(s.api.Refunds.List(params).Iter, func(r *stripe.Refund) entity.Refund {
		refund := entity.Refund{
			ID:       r.ID,
			ChargeID: chargeID,
			Amount:   r.Amount,
			Currency: strings.ToLower(string(r.Currency)),
			Status:   string(r.Status),
		}
		return refund
	}, func(r *stripe.Refund) string {
		return r.ID
	})
}
