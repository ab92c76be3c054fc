package entity

import "time"

type PlanType string

const (
	PlanTypeTrial  PlanType = "trial"
	PlanTypeAnnual PlanType = "annual"
)

// PlanSummary is the plan state recorded on a membership snapshot row.
type PlanSummary struct {
	PlanID         string     `json:"plan_id,omitempty"`
	Status         string     `json:"status,omitempty"`
	PlanType       PlanType   `json:"plan_type,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	PeriodEnd      *time.Time `json:"period_end,omitempty"`
	IsTrial        bool       `json:"is_trial"`
	IsPaid         bool       `json:"is_paid"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
	CustomerID     string     `json:"customer_id,omitempty"`
}

// MemberSnapshot is a point-in-time membership record maintained by an external sync.
type MemberSnapshot struct {
	MemberID string      `json:"member_id"`
	Email    string      `json:"email"`
	SignupAt time.Time   `json:"signup_at"`
	Plan     PlanSummary `json:"plan"`
}

func (m MemberSnapshot) OnAnnualPlan() bool {
	return m.Plan.PlanType == PlanTypeAnnual && m.Plan.IsPaid
}

func (m MemberSnapshot) OnTrialPlan() bool {
	return m.Plan.IsTrial || m.Plan.PlanType == PlanTypeTrial
}
