package errors

import (
	"errors"
	"fmt"
)

// Read steps of an aggregation pass.
const (
	StepActiveSubscriptions   = "list_active_subscriptions"
	StepTrialingSubscriptions = "list_trialing_subscriptions"
	StepCanceledSubscriptions = "list_canceled_subscriptions"
	StepPaidInvoices          = "list_paid_invoices"
	StepMemberSnapshot        = "load_member_snapshot"
	StepEventHistory          = "load_event_history"
	StepRefunds               = "list_refunds"
)

// UpstreamError is returned when a ledger or store read aborts an aggregation pass.
type UpstreamError struct {
	Step  string
	Cause error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream read %s failed: %v", e.Step, e.Cause)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// NewUpstreamError tags err with the read step that failed.
func NewUpstreamError(step string, err error) *UpstreamError {
	return &UpstreamError{Step: step, Cause: err}
}

// StepOf returns the failed step carried by err, or "" when err is not an UpstreamError.
func StepOf(err error) string {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Step
	}
	return ""
}
