package stripe

import (
	"context"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
)

// ListSubscriptions returns one page of subscriptions in the given status with customer and
// price references expanded.
func (s *StripeProvider) ListSubscriptions(ctx context.Context, status entity.SubscriptionStatus, cursor string, limit int) (entity.Page[entity.Subscription], error) {
	params := &stripe.SubscriptionListParams{
		Status: stripe.String(string(status)),
	}
	params.Context = ctx
	singlePage(&params.ListParams, cursor, limit)
	params.AddExpand("data.customer")
	params.AddExpand("data.items.data.price")

	return collectPage(s.api.Subscriptions.List(params).Iter, toSubscription, func(sub *stripe.Subscription) string {
		return sub.ID
	})
}

// ListPaidInvoices returns one page of paid invoices with charge and subscription expanded.
// Stripe cannot filter invoices by currency; callers filter on read.
func (s *StripeProvider) ListPaidInvoices(ctx context.Context, createdAfter *time.Time, cursor string, limit int) (entity.Page[entity.Invoice], error) {
	params := &stripe.InvoiceListParams{
		Status: stripe.String(string(stripe.InvoiceStatusPaid)),
	}
	if createdAfter != nil {
		params.CreatedRange = &stripe.RangeQueryParams{GreaterThan: createdAfter.Unix()}
	}
	params.Context = ctx
	singlePage(&params.ListParams, cursor, limit)
	params.AddExpand("data.charge")
	params.AddExpand("data.subscription")

	return collectPage(s.api.Invoices.List(params).Iter, toInvoice, func(inv *stripe.Invoice) string {
		return inv.ID
	})
}

func toSubscription(sub *stripe.Subscription) entity.Subscription {
	out := entity.Subscription{
		ID:                sub.ID,
		Status:            entity.SubscriptionStatus(sub.Status),
		CreatedAt:         unixTime(sub.Created),
		CurrentPeriodEnd:  optionalUnix(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		EndedAt:           optionalUnix(sub.EndedAt),
		TrialEnd:          optionalUnix(sub.TrialEnd),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
		out.CustomerEmail = sub.Customer.Email
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item == nil || item.Price == nil {
				continue
			}
			line := entity.LineItem{
				PriceID:    item.Price.ID,
				UnitAmount: item.Price.UnitAmount,
				Quantity:   item.Quantity,
			}
			if item.Price.Recurring != nil {
				line.Interval = entity.Interval(item.Price.Recurring.Interval)
			}
			out.Items = append(out.Items, line)
		}
	}
	return out
}

func toInvoice(inv *stripe.Invoice) entity.Invoice {
	out := entity.Invoice{
		ID:            inv.ID,
		Currency:      strings.ToLower(string(inv.Currency)),
		Total:         inv.Total,
		AmountPaid:    inv.AmountPaid,
		BillingReason: entity.BillingReason(inv.BillingReason),
		CreatedAt:     unixTime(inv.Created),
		Paid:          inv.Paid,
	}
	if inv.Subscription != nil {
		out.SubscriptionID = inv.Subscription.ID
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	if inv.Charge != nil {
		out.ChargeID = inv.Charge.ID
		// An unexpanded charge only carries its id.
		if inv.Charge.Object == "charge" {
			refunded := inv.Charge.AmountRefunded
			out.AmountRefunded = &refunded
		}
	}
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line != nil && line.Price != nil {
				out.PriceIDs = append(out.PriceIDs, line.Price.ID)
			}
		}
	}
	return out
}
