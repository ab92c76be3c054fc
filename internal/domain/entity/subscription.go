package entity

import "time"

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

type Interval string

const (
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// Subscription is a point-in-time copy of a processor subscription.
type Subscription struct {
	ID                string             `json:"id"`
	CustomerID        string             `json:"customer_id"`
	CustomerEmail     string             `json:"customer_email,omitempty"`
	Status            SubscriptionStatus `json:"status"`
	CreatedAt         time.Time          `json:"created_at"`
	CurrentPeriodEnd  *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool               `json:"cancel_at_period_end"`
	EndedAt           *time.Time         `json:"ended_at,omitempty"`
	TrialEnd          *time.Time         `json:"trial_end,omitempty"`
	Items             []LineItem         `json:"items"`
}

// LineItem is one priced item of a subscription. UnitAmount is in minor units.
type LineItem struct {
	PriceID    string   `json:"price_id"`
	Interval   Interval `json:"interval"`
	UnitAmount int64    `json:"unit_amount"`
	Quantity   int64    `json:"quantity"`
}

// Amount returns UnitAmount × Quantity, treating a missing quantity as one.
func (l LineItem) Amount() int64 {
	if l.Quantity <= 0 {
		return l.UnitAmount
	}
	return l.UnitAmount * l.Quantity
}

// HasTrialEnded reports whether the subscription carries a trial end before now.
func (s Subscription) HasTrialEnded(now time.Time) bool {
	return s.TrialEnd != nil && s.TrialEnd.Before(now)
}

// PeriodEndsWithin reports whether the current period ends in [now, now+window].
func (s Subscription) PeriodEndsWithin(now time.Time, window time.Duration) bool {
	if s.CurrentPeriodEnd == nil {
		return false
	}
	end := *s.CurrentPeriodEnd
	return !end.Before(now) && !end.After(now.Add(window))
}

// PriceCatalog holds the program's known annual and trial price identifiers.
type PriceCatalog struct {
	annual map[string]struct{}
	trial  map[string]struct{}
}

func NewPriceCatalog(annualPriceIDs, trialPriceIDs []string) PriceCatalog {
	c := PriceCatalog{
		annual: make(map[string]struct{}, len(annualPriceIDs)),
		trial:  make(map[string]struct{}, len(trialPriceIDs)),
	}
	for _, id := range annualPriceIDs {
		c.annual[id] = struct{}{}
	}
	for _, id := range trialPriceIDs {
		c.trial[id] = struct{}{}
	}
	return c
}

func (c PriceCatalog) IsAnnualPrice(priceID string) bool {
	_, ok := c.annual[priceID]
	return ok
}

func (c PriceCatalog) IsTrialPrice(priceID string) bool {
	if priceID == "" {
		return false
	}
	_, ok := c.trial[priceID]
	return ok
}

func (c PriceCatalog) TrialPriceIDs() []string {
	ids := make([]string, 0, len(c.trial))
	for id := range c.trial {
		ids = append(ids, id)
	}
	return ids
}

// IsAnnual is true iff at least one line item bills yearly on a known annual price.
func (c PriceCatalog) IsAnnual(s Subscription) bool {
	for _, item := range s.Items {
		if item.Interval == IntervalYear && c.IsAnnualPrice(item.PriceID) {
			return true
		}
	}
	return false
}

// HasTrialPrice reports whether any line item uses a trial price.
func (c PriceCatalog) HasTrialPrice(s Subscription) bool {
	for _, item := range s.Items {
		if c.IsTrialPrice(item.PriceID) {
			return true
		}
	}
	return false
}

// AnnualAmount sums amount × quantity over the subscription's annual line items.
func (c PriceCatalog) AnnualAmount(s Subscription) int64 {
	var total int64
	for _, item := range s.Items {
		if item.Interval == IntervalYear && c.IsAnnualPrice(item.PriceID) {
			total += item.Amount()
		}
	}
	return total
}
