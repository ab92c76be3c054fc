package entity

import "sort"

// Detector names a conversion signal.
type Detector string

const (
	DetectorTrialCheckout     Detector = "trial_checkout"
	DetectorTrialPriceHistory Detector = "trial_price_history"
	DetectorSignupGap         Detector = "signup_gap"
	DetectorSubscriptionTrial Detector = "subscription_trial_end"
)

// ConversionRecord marks one member's (or subscription's) annual plan as trial-derived.
type ConversionRecord struct {
	MemberID       string   `json:"member_id,omitempty"`
	SubscriptionID string   `json:"subscription_id,omitempty"`
	CustomerID     string   `json:"customer_id,omitempty"`
	Detector       Detector `json:"detector"`
}

// ConversionSet is the result of one classification pass.
type ConversionSet struct {
	subscriptions map[string]ConversionRecord
	customers     map[string]ConversionRecord
	// covered holds customers that already own a subscription-keyed record.
	covered map[string]struct{}
	// Unresolved holds members that converted but had no identifier to attribute.
	Unresolved []string
}

func NewConversionSet() *ConversionSet {
	return &ConversionSet{
		subscriptions: make(map[string]ConversionRecord),
		customers:     make(map[string]ConversionRecord),
		covered:       make(map[string]struct{}),
	}
}

// Add records a conversion keyed by subscription id, or by customer id when no
// subscription id is known. The first record for a conversion wins and nothing is removed:
// a subscription-keyed record takes over a customer-keyed record of the same customer and
// keeps its member and detector, and a customer-keyed record is ignored once the customer
// owns a subscription-keyed record. It reports whether the set grew.
func (s *ConversionSet) Add(rec ConversionRecord) bool {
	if rec.SubscriptionID != "" {
		if _, ok := s.subscriptions[rec.SubscriptionID]; ok {
			return false
		}
		grew := true
		if rec.CustomerID != "" {
			if prev, ok := s.customers[rec.CustomerID]; ok {
				rec.MemberID = prev.MemberID
				rec.Detector = prev.Detector
				delete(s.customers, rec.CustomerID)
				grew = false
			}
			s.covered[rec.CustomerID] = struct{}{}
		}
		s.subscriptions[rec.SubscriptionID] = rec
		return grew
	}
	if rec.CustomerID == "" {
		return false
	}
	if _, ok := s.covered[rec.CustomerID]; ok {
		return false
	}
	if _, ok := s.customers[rec.CustomerID]; ok {
		return false
	}
	s.customers[rec.CustomerID] = rec
	return true
}

func (s *ConversionSet) HasSubscription(id string) bool {
	_, ok := s.subscriptions[id]
	return ok
}

func (s *ConversionSet) HasCustomer(id string) bool {
	_, ok := s.customers[id]
	return ok
}

// Contains reports whether an invoice for this subscription/customer pair belongs to a conversion.
func (s *ConversionSet) Contains(subscriptionID, customerID string) bool {
	if subscriptionID != "" && s.HasSubscription(subscriptionID) {
		return true
	}
	return customerID != "" && s.HasCustomer(customerID)
}

// Records returns every record sorted by subscription id then customer id.
func (s *ConversionSet) Records() []ConversionRecord {
	out := make([]ConversionRecord, 0, len(s.subscriptions)+len(s.customers))
	for _, r := range s.subscriptions {
		out = append(out, r)
	}
	for _, r := range s.customers {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubscriptionID != out[j].SubscriptionID {
			return out[i].SubscriptionID < out[j].SubscriptionID
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	return out
}

// SubscriptionIDs returns the subscription keyed members of the set, sorted.
func (s *ConversionSet) SubscriptionIDs() []string {
	ids := make([]string, 0, len(s.subscriptions))
	for id := range s.subscriptions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *ConversionSet) Len() int {
	return len(s.subscriptions) + len(s.customers)
}

// CountByDetector tallies records per detector.
func (s *ConversionSet) CountByDetector() map[Detector]int {
	counts := make(map[Detector]int)
	for _, r := range s.Records() {
		counts[r.Detector]++
	}
	return counts
}
