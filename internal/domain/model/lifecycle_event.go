package model

import (
	"time"

	"gorm.io/datatypes"
)

// LifecycleEvent is a stored processor lifecycle notification. Rows are insert-only.
type LifecycleEvent struct {
	ID              int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalEventID string         `gorm:"uniqueIndex;not null;size:255" json:"external_event_id"`
	EventType       string         `gorm:"not null;size:100;index" json:"event_type"`
	MemberID        *string        `gorm:"size:64;index:idx_lifecycle_events_member_created,priority:1" json:"member_id,omitempty"`
	CustomerID      *string        `gorm:"size:255;index:idx_lifecycle_events_customer_created,priority:1" json:"customer_id,omitempty"`
	SubscriptionID  *string        `gorm:"size:255;index" json:"subscription_id,omitempty"`
	InvoiceID       *string        `gorm:"size:255" json:"invoice_id,omitempty"`
	PriceID         *string        `gorm:"size:255" json:"price_id,omitempty"`
	Payload         datatypes.JSON `json:"payload"`
	CreatedAt       time.Time      `gorm:"not null;autoCreateTime:false;index:idx_lifecycle_events_member_created,priority:2;index:idx_lifecycle_events_customer_created,priority:2" json:"created_at"`
	RecordedAt      time.Time      `gorm:"autoCreateTime" json:"recorded_at"`
}

// TableName specifies the table name for GORM
func (LifecycleEvent) TableName() string {
	return "lifecycle_events"
}
