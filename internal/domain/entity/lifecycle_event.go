package entity

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventTypeCheckoutCompleted   EventType = "checkout.session.completed"
	EventTypeSubscriptionCreated EventType = "customer.subscription.created"
	EventTypeSubscriptionUpdated EventType = "customer.subscription.updated"
	EventTypeSubscriptionDeleted EventType = "customer.subscription.deleted"
	EventTypeInvoicePaid         EventType = "invoice.paid"
)

// Tracked reports whether events of this type are recorded in the history.
func (t EventType) Tracked() bool {
	switch t {
	case EventTypeCheckoutCompleted,
		EventTypeSubscriptionCreated,
		EventTypeSubscriptionUpdated,
		EventTypeSubscriptionDeleted,
		EventTypeInvoicePaid:
		return true
	}
	return false
}

// LifecycleEvent is an immutable payment lifecycle record.
type LifecycleEvent struct {
	ExternalEventID string          `json:"external_event_id" validate:"required"`
	Type            EventType       `json:"type" validate:"required"`
	MemberID        string          `json:"member_id,omitempty"`
	CustomerID      string          `json:"customer_id,omitempty"`
	SubscriptionID  string          `json:"subscription_id,omitempty"`
	InvoiceID       string          `json:"invoice_id,omitempty"`
	PriceID         string          `json:"price_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at" validate:"required"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// EventSubject selects events by member or customer. Either field may be empty.
type EventSubject struct {
	MemberID   string
	CustomerID string
}

func (s EventSubject) IsZero() bool {
	return s.MemberID == "" && s.CustomerID == ""
}

// InboundEvent is a lifecycle event as received from the processor, before the
// member identifier has been resolved.
type InboundEvent struct {
	Event LifecycleEvent
	// MetadataMemberID is the member id carried in processor metadata, if any.
	MetadataMemberID string
	CustomerEmail    string
}
