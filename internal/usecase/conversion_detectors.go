package usecase

import (
	"time"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
)

// signupGapThreshold is the minimum delay between signup and the first annual payment that
// counts as a trial conversion. Same-day purchases are direct signups.
const signupGapThreshold = 24 * time.Hour

// MemberHistory is everything known about one annual member during classification.
type MemberHistory struct {
	Member entity.MemberSnapshot
	// Events holds the member's and the member's customer's events, oldest first.
	Events []entity.LifecycleEvent
	// FirstAnnualPaymentAt is the earliest successful annual payment seen in the ledger or
	// the event history.
	FirstAnnualPaymentAt *time.Time
}

// ConversionDetector is one trial-conversion signal.
type ConversionDetector interface {
	Name() entity.Detector
	Detect(history MemberHistory) bool
}

// DefaultDetectors returns the detectors in priority order.
func DefaultDetectors(catalog entity.PriceCatalog) []ConversionDetector {
	return []ConversionDetector{
		trialCheckoutDetector{catalog: catalog},
		trialPriceHistoryDetector{catalog: catalog},
		signupGapDetector{},
	}
}

// trialCheckoutDetector matches a completed checkout on a trial price.
type trialCheckoutDetector struct {
	catalog entity.PriceCatalog
}

func (d trialCheckoutDetector) Name() entity.Detector {
	return entity.DetectorTrialCheckout
}

func (d trialCheckoutDetector) Detect(history MemberHistory) bool {
	for _, e := range history.Events {
		if e.Type == entity.EventTypeCheckoutCompleted && d.catalog.IsTrialPrice(e.PriceID) {
			return true
		}
	}
	return false
}

// trialPriceHistoryDetector matches any event carrying a trial price, in any order.
type trialPriceHistoryDetector struct {
	catalog entity.PriceCatalog
}

func (d trialPriceHistoryDetector) Name() entity.Detector {
	return entity.DetectorTrialPriceHistory
}

func (d trialPriceHistoryDetector) Detect(history MemberHistory) bool {
	for _, e := range history.Events {
		if d.catalog.IsTrialPrice(e.PriceID) {
			return true
		}
	}
	return false
}

// signupGapDetector matches members whose first annual payment came more than a day
// after signup.
type signupGapDetector struct{}

func (signupGapDetector) Name() entity.Detector {
	return entity.DetectorSignupGap
}

func (signupGapDetector) Detect(history MemberHistory) bool {
	if history.FirstAnnualPaymentAt == nil || history.Member.SignupAt.IsZero() {
		return false
	}
	return history.FirstAnnualPaymentAt.Sub(history.Member.SignupAt) > signupGapThreshold
}

// detect returns the first matching detector.
func detect(detectors []ConversionDetector, history MemberHistory) (entity.Detector, bool) {
	for _, d := range detectors {
		if d.Detect(history) {
			return d.Name(), true
		}
	}
	return "", false
}
