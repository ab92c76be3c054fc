package entity

import "time"

// Metrics is the published membership metric set. Money fields are major units of Currency.
// Rates are percentages in [0, 100]; a nil rate means its denominator was zero.
type Metrics struct {
	Currency    string    `json:"currency"`
	GeneratedAt time.Time `json:"generated_at"`
	RunID       string    `json:"run_id"`
	Stale       bool      `json:"stale"`
	LastError   string    `json:"last_error,omitempty"`

	AnnualActiveCount          int     `json:"annual_active_count"`
	TrialingSubscriptionsCount int     `json:"trialing_subscriptions_count"`
	TrialMembersCount          int     `json:"trial_members_count"`
	Expiring30dCount           int     `json:"expiring_30d_count"`
	AtRiskAnnualCount          int     `json:"at_risk_annual_count"`
	RevenueAtRisk30d           float64 `json:"revenue_at_risk_30d"`

	ChurnedAnnual90d int      `json:"churned_annual_90d"`
	ChurnRate90d     *float64 `json:"churn_rate_90d"`

	// TrialCohortCount is the trial-marked subscriptions plus every conversion, including
	// conversions found only in member history with no trial-marked subscription in the ledger.
	// Such a conversion alone yields a 100% ConversionRate rather than null.
	TrialCohortCount      int              `json:"trial_cohort_count"`
	Conversions30d        int              `json:"conversions_30d"`
	ConversionsAllTime    int              `json:"conversions_all_time"`
	ConversionRate        *float64         `json:"conversion_rate"`
	DropOffRate           *float64         `json:"drop_off_rate"`
	ConversionsByDetector map[Detector]int `json:"conversions_by_detector"`

	TotalRevenueAllTime           float64 `json:"total_revenue_all_time"`
	TotalRevenue30d               float64 `json:"total_revenue_30d"`
	AnnualRevenueAllTime          float64 `json:"annual_revenue_all_time"`
	AnnualRevenue30d              float64 `json:"annual_revenue_30d"`
	RevenueFromConversionsAllTime float64 `json:"revenue_from_conversions_all_time"`
	RevenueFromConversions30d     float64 `json:"revenue_from_conversions_30d"`
	RevenueFromDirectAllTime      float64 `json:"revenue_from_direct_all_time"`
	RevenueFromDirect30d          float64 `json:"revenue_from_direct_30d"`
	AnnualRunRate                 float64 `json:"annual_run_rate"`

	InvoicesScanned         int  `json:"invoices_scanned"`
	InvoiceCapReached       bool `json:"invoice_cap_reached"`
	SkippedCurrencyInvoices int  `json:"skipped_currency_invoices"`
	UnresolvedConversions   int  `json:"unresolved_conversions"`
}

// Age returns how long ago the metrics were generated.
func (m *Metrics) Age(now time.Time) time.Duration {
	return now.Sub(m.GeneratedAt)
}
