package usecase

import (
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
)

// ClassificationInput is the data one classification pass works on.
type ClassificationInput struct {
	Members       []entity.MemberSnapshot
	Events        []entity.LifecycleEvent
	Subscriptions []entity.Subscription
	Invoices      []entity.Invoice
	// InvoicesTruncated marks an invoice read cut short by the cap. Renewals may then be the
	// oldest invoice seen for a subscription, so only first invoices date an annual payment.
	InvoicesTruncated bool
	Now               time.Time
}

// ConversionClassifier decides which annual subscriptions came from a trial.
type ConversionClassifier struct {
	catalog   entity.PriceCatalog
	detectors []ConversionDetector
	logger    *zap.Logger
}

// NewConversionClassifier creates a classifier. Without detectors the default chain is used.
func NewConversionClassifier(catalog entity.PriceCatalog, logger *zap.Logger, detectors ...ConversionDetector) *ConversionClassifier {
	if len(detectors) == 0 {
		detectors = DefaultDetectors(catalog)
	}
	return &ConversionClassifier{
		catalog:   catalog,
		detectors: detectors,
		logger:    logger,
	}
}

// Classify builds the conversion set from member history and from the subscriptions' own
// trial state. It does not mutate its input.
func (c *ConversionClassifier) Classify(in ClassificationInput) *entity.ConversionSet {
	idx := c.buildIndex(in)
	set := entity.NewConversionSet()

	for _, member := range in.Members {
		if !member.OnAnnualPlan() {
			continue
		}

		history := idx.history(member)
		detector, ok := detect(c.detectors, history)
		if !ok {
			continue
		}

		rec := c.resolve(idx, history)
		rec.Detector = detector
		if rec.SubscriptionID == "" && rec.CustomerID == "" {
			c.logger.Warn("Converted member has no subscription or customer to attribute",
				zap.String("member_id", member.MemberID),
				zap.String("detector", string(detector)))
			set.Unresolved = append(set.Unresolved, member.MemberID)
			continue
		}
		set.Add(rec)
	}

	for _, sub := range idx.sortedSubscriptions() {
		if c.catalog.IsAnnual(sub) && sub.HasTrialEnded(in.Now) {
			set.Add(entity.ConversionRecord{
				SubscriptionID: sub.ID,
				CustomerID:     sub.CustomerID,
				Detector:       entity.DetectorSubscriptionTrial,
			})
		}
	}

	return set
}

// resolve picks the subscription to attribute, in order: subscription-created payloads,
// invoice-paid payloads, the plan summary. A candidate known to the ledger as an annual
// subscription is preferred over the first candidate. Without any candidate the record falls
// back to the customer id.
func (c *ConversionClassifier) resolve(idx *classificationIndex, history MemberHistory) entity.ConversionRecord {
	member := history.Member
	rec := entity.ConversionRecord{
		MemberID:   member.MemberID,
		CustomerID: idx.customerOf(history),
	}

	var candidates []string
	for _, e := range history.Events {
		if e.Type != entity.EventTypeSubscriptionCreated {
			continue
		}
		if id, ok := c.subscriptionFromCreatedPayload(e); ok {
			candidates = append(candidates, id)
		}
	}
	for _, e := range history.Events {
		if e.Type != entity.EventTypeInvoicePaid {
			continue
		}
		if id, ok := c.subscriptionFromInvoicePayload(e); ok {
			candidates = append(candidates, id)
		}
	}
	if member.Plan.SubscriptionID != "" {
		candidates = append(candidates, member.Plan.SubscriptionID)
	}

	if len(candidates) == 0 {
		return rec
	}

	rec.SubscriptionID = candidates[0]
	for _, id := range candidates {
		if sub, ok := idx.subscriptions[id]; ok && c.catalog.IsAnnual(sub) {
			rec.SubscriptionID = id
			break
		}
	}
	if sub, ok := idx.subscriptions[rec.SubscriptionID]; ok && sub.CustomerID != "" {
		rec.CustomerID = sub.CustomerID
	}
	return rec
}

type subscriptionObject struct {
	ID     string `json:"id"`
	Object string `json:"object"`
}

func (c *ConversionClassifier) subscriptionFromCreatedPayload(e entity.LifecycleEvent) (string, bool) {
	var obj subscriptionObject
	if err := json.Unmarshal(e.Payload, &obj); err != nil {
		c.logger.Debug("Skipping malformed subscription payload",
			zap.String("event_id", e.ExternalEventID),
			zap.Error(err))
		return "", false
	}
	if obj.ID == "" || (obj.Object != "" && obj.Object != "subscription") {
		return "", false
	}
	return obj.ID, true
}

func (c *ConversionClassifier) subscriptionFromInvoicePayload(e entity.LifecycleEvent) (string, bool) {
	var inv struct {
		Subscription json.RawMessage `json:"subscription"`
	}
	if err := json.Unmarshal(e.Payload, &inv); err != nil {
		c.logger.Debug("Skipping malformed invoice payload",
			zap.String("event_id", e.ExternalEventID),
			zap.Error(err))
		return "", false
	}
	if len(inv.Subscription) == 0 || string(inv.Subscription) == "null" {
		return "", false
	}

	// The subscription is either an id or an expanded object.
	var id string
	if err := json.Unmarshal(inv.Subscription, &id); err == nil {
		return id, id != ""
	}
	var obj subscriptionObject
	if err := json.Unmarshal(inv.Subscription, &obj); err != nil {
		c.logger.Debug("Skipping malformed invoice subscription reference",
			zap.String("event_id", e.ExternalEventID),
			zap.Error(err))
		return "", false
	}
	return obj.ID, obj.ID != ""
}

// classificationIndex holds lookups shared by every member of one pass.
type classificationIndex struct {
	subscriptions      map[string]entity.Subscription
	eventsByMember     map[string][]entity.LifecycleEvent
	eventsByCustomer   map[string][]entity.LifecycleEvent
	annualPaidByKey    map[string]time.Time
	annualPaidByMember map[string]time.Time
}

func (c *ConversionClassifier) buildIndex(in ClassificationInput) *classificationIndex {
	idx := &classificationIndex{
		subscriptions:      make(map[string]entity.Subscription, len(in.Subscriptions)),
		eventsByMember:     make(map[string][]entity.LifecycleEvent),
		eventsByCustomer:   make(map[string][]entity.LifecycleEvent),
		annualPaidByKey:    make(map[string]time.Time),
		annualPaidByMember: make(map[string]time.Time),
	}

	for _, sub := range in.Subscriptions {
		idx.subscriptions[sub.ID] = sub
	}

	for _, e := range in.Events {
		if e.MemberID != "" {
			idx.eventsByMember[e.MemberID] = append(idx.eventsByMember[e.MemberID], e)
		}
		if e.CustomerID != "" {
			idx.eventsByCustomer[e.CustomerID] = append(idx.eventsByCustomer[e.CustomerID], e)
		}
		if e.Type == entity.EventTypeInvoicePaid && c.catalog.IsAnnualPrice(e.PriceID) {
			earliest(idx.annualPaidByMember, e.MemberID, e.CreatedAt)
			earliest(idx.annualPaidByKey, e.CustomerID, e.CreatedAt)
			earliest(idx.annualPaidByKey, e.SubscriptionID, e.CreatedAt)
		}
	}

	for _, inv := range in.Invoices {
		if !inv.Paid || (in.InvoicesTruncated && !inv.IsFirstInvoice()) {
			continue
		}
		sub, known := idx.subscriptions[inv.SubscriptionID]
		if !inv.HasAnnualPrice(c.catalog) && !(known && c.catalog.IsAnnual(sub)) {
			continue
		}
		earliest(idx.annualPaidByKey, inv.CustomerID, inv.CreatedAt)
		earliest(idx.annualPaidByKey, inv.SubscriptionID, inv.CreatedAt)
	}

	return idx
}

func earliest(m map[string]time.Time, key string, t time.Time) {
	if key == "" || t.IsZero() {
		return
	}
	if cur, ok := m[key]; !ok || t.Before(cur) {
		m[key] = t
	}
}

// history merges the member's events with its customer's events, oldest first.
func (idx *classificationIndex) history(member entity.MemberSnapshot) MemberHistory {
	seen := make(map[string]struct{})
	var events []entity.LifecycleEvent
	add := func(list []entity.LifecycleEvent) {
		for _, e := range list {
			if _, ok := seen[e.ExternalEventID]; ok {
				continue
			}
			seen[e.ExternalEventID] = struct{}{}
			events = append(events, e)
		}
	}
	add(idx.eventsByMember[member.MemberID])
	add(idx.eventsByCustomer[member.Plan.CustomerID])
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})

	history := MemberHistory{Member: member, Events: events}

	var first time.Time
	consider := func(t time.Time, ok bool) {
		if ok && (first.IsZero() || t.Before(first)) {
			first = t
		}
	}
	t, ok := idx.annualPaidByMember[member.MemberID]
	consider(t, ok)
	customerID := idx.customerOf(history)
	if customerID != "" {
		t, ok = idx.annualPaidByKey[customerID]
		consider(t, ok)
	}
	if member.Plan.SubscriptionID != "" {
		t, ok = idx.annualPaidByKey[member.Plan.SubscriptionID]
		consider(t, ok)
	}
	if !first.IsZero() {
		history.FirstAnnualPaymentAt = &first
	}

	return history
}

// customerOf returns the member's processor customer: the plan summary's, else the newest
// one seen in its events.
func (idx *classificationIndex) customerOf(history MemberHistory) string {
	if history.Member.Plan.CustomerID != "" {
		return history.Member.Plan.CustomerID
	}
	for i := len(history.Events) - 1; i >= 0; i-- {
		if history.Events[i].CustomerID != "" {
			return history.Events[i].CustomerID
		}
	}
	return ""
}

func (idx *classificationIndex) sortedSubscriptions() []entity.Subscription {
	subs := make([]entity.Subscription, 0, len(idx.subscriptions))
	for _, sub := range idx.subscriptions {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs
}
