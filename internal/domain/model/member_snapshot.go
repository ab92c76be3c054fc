package model

import (
	"time"

	"gorm.io/datatypes"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
)

// MemberSnapshot is one row of the membership cache written by the external sync job.
type MemberSnapshot struct {
	MemberID   string                                 `gorm:"primaryKey;size:64" json:"member_id"`
	Email      string                                 `gorm:"size:320;index" json:"email"`
	CustomerID *string                                `gorm:"size:255;index" json:"customer_id,omitempty"`
	SignupAt   time.Time                              `gorm:"not null" json:"signup_at"`
	Plan       datatypes.JSONType[entity.PlanSummary] `json:"plan"`
	SyncedAt   time.Time                              `gorm:"autoUpdateTime" json:"synced_at"`
}

// TableName specifies the table name for GORM
func (MemberSnapshot) TableName() string {
	return "member_snapshots"
}
