package entity

import "time"

type BillingReason string

const (
	BillingReasonSubscriptionCreate BillingReason = "subscription_create"
	BillingReasonSubscriptionCycle  BillingReason = "subscription_cycle"
	BillingReasonManual             BillingReason = "manual"
)

// Invoice is a paid processor invoice. Amounts are minor units of Currency.
type Invoice struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	CustomerID     string `json:"customer_id,omitempty"`
	Currency       string `json:"currency"`
	Total          int64  `json:"total"`
	AmountPaid     int64  `json:"amount_paid"`
	// AmountRefunded is nil when the processor response did not include refund totals.
	AmountRefunded *int64        `json:"amount_refunded,omitempty"`
	ChargeID       string        `json:"charge_id,omitempty"`
	BillingReason  BillingReason `json:"billing_reason"`
	CreatedAt      time.Time     `json:"created_at"`
	Paid           bool          `json:"paid"`
	PriceIDs       []string      `json:"price_ids,omitempty"`
}

// IsFirstInvoice reports whether the invoice opened its subscription.
func (i Invoice) IsFirstInvoice() bool {
	return i.BillingReason == BillingReasonSubscriptionCreate
}

// HasAnnualPrice reports whether any invoice line bills a known annual price.
func (i Invoice) HasAnnualPrice(catalog PriceCatalog) bool {
	for _, id := range i.PriceIDs {
		if catalog.IsAnnualPrice(id) {
			return true
		}
	}
	return false
}

// Refund is a refund issued against a charge.
type Refund struct {
	ID       string `json:"id"`
	ChargeID string `json:"charge_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}
