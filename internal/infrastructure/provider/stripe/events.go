package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/semo-membership/internal/domain/entity"
)

const memberIDMetadataKey = "member_id"

var trackedEventTypes = []string{
	string(entity.EventTypeCheckoutCompleted),
	string(entity.EventTypeSubscriptionCreated),
	string(entity.EventTypeSubscriptionUpdated),
	string(entity.EventTypeSubscriptionDeleted),
	string(entity.EventTypeInvoicePaid),
}

// ListEvents returns one page of tracked events created at or after since, newest first.
// Events whose payload cannot be decoded are logged and left out of the page.
func (s *StripeProvider) ListEvents(ctx context.Context, since time.Time, cursor string, limit int) (entity.Page[entity.InboundEvent], error) {
	params := &stripe.EventListParams{
		CreatedRange: &stripe.RangeQueryParams{GreaterThanOrEqual: since.Unix()},
		Types:        stripe.StringSlice(trackedEventTypes),
	}
	params.Context = ctx
	singlePage(&params.ListParams, cursor, limit)

	page, err := collectPage(s.api.Events.List(params).Iter, func(e *stripe.Event) *entity.InboundEvent {
		inbound, err := ToInboundEvent(e)
		if err != nil {
			s.logger.Warn("Skipping undecodable Stripe event",
				zap.String("event_id", e.ID),
				zap.String("event_type", string(e.Type)),
				zap.Error(err))
			return nil
		}
		return inbound
	}, func(e *stripe.Event) string {
		return e.ID
	})
	if err != nil {
		return entity.Page[entity.InboundEvent]{}, err
	}

	out := entity.Page[entity.InboundEvent]{HasMore: page.HasMore, NextCursor: page.NextCursor}
	for _, inbound := range page.Items {
		if inbound != nil {
			s.resolveCheckoutPrice(ctx, inbound)
			out.Items = append(out.Items, *inbound)
		}
	}
	return out, nil
}

// ParseWebhook verifies the Stripe-Signature header and converts the event.
func (s *StripeProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*entity.InboundEvent, error) {
	event, err := webhook.ConstructEventWithOptions(
		payload,
		signature,
		s.webhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	inbound, err := ToInboundEvent(&event)
	if err != nil {
		return nil, err
	}
	s.resolveCheckoutPrice(ctx, inbound)
	return inbound, nil
}

// resolveCheckoutPrice fills the price of a completed checkout whose payload has no line items.
// Stripe leaves line_items out of event payloads, so they are listed from the session, with the
// subscription's first item as fallback. Lookup failures leave the price empty.
func (s *StripeProvider) resolveCheckoutPrice(ctx context.Context, inbound *entity.InboundEvent) {
	if inbound == nil || inbound.Event.Type != entity.EventTypeCheckoutCompleted || inbound.Event.PriceID != "" {
		return
	}

	var session struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(inbound.Event.Payload, &session); err == nil && session.ID != "" {
		params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(session.ID)}
		params.Context = ctx
		singlePage(&params.ListParams, "", 10)

		it := s.api.CheckoutSessions.ListLineItems(params)
		for it.Next() {
			if item := it.LineItem(); item != nil && item.Price != nil {
				inbound.Event.PriceID = item.Price.ID
				return
			}
		}
		if err := it.Err(); err != nil {
			s.logger.Warn("Failed to list checkout line items",
				zap.String("session_id", session.ID),
				zap.Error(err))
		}
	}

	if inbound.Event.SubscriptionID == "" {
		return
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := s.api.Subscriptions.Get(inbound.Event.SubscriptionID, params)
	if err != nil {
		s.logger.Warn("Failed to get checkout subscription",
			zap.String("subscription_id", inbound.Event.SubscriptionID),
			zap.Error(err))
		return
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.Price != nil {
				inbound.Event.PriceID = item.Price.ID
				return
			}
		}
	}
}

// ToInboundEvent converts a Stripe event into a lifecycle event. Untracked event types
// yield nil without error.
func ToInboundEvent(e *stripe.Event) (*entity.InboundEvent, error) {
	eventType := entity.EventType(e.Type)
	if !eventType.Tracked() {
		return nil, nil
	}
	if e.Data == nil {
		return nil, fmt.Errorf("event %s has no data", e.ID)
	}

	inbound := &entity.InboundEvent{
		Event: entity.LifecycleEvent{
			ExternalEventID: e.ID,
			Type:            eventType,
			CreatedAt:       unixTime(e.Created),
			Payload:         json.RawMessage(e.Data.Raw),
		},
	}

	switch eventType {
	case entity.EventTypeCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(e.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("failed to parse checkout session: %w", err)
		}
		applyCheckoutSession(inbound, &session)

	case entity.EventTypeSubscriptionCreated, entity.EventTypeSubscriptionUpdated, entity.EventTypeSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(e.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("failed to parse subscription: %w", err)
		}
		applySubscription(inbound, &sub)

	case entity.EventTypeInvoicePaid:
		var inv stripe.Invoice
		if err := json.Unmarshal(e.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("failed to parse invoice: %w", err)
		}
		applyInvoice(inbound, &inv)
	}

	return inbound, nil
}

func applyCheckoutSession(inbound *entity.InboundEvent, session *stripe.CheckoutSession) {
	if session.Customer != nil {
		inbound.Event.CustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		inbound.Event.SubscriptionID = session.Subscription.ID
	}
	if session.Invoice != nil {
		inbound.Event.InvoiceID = session.Invoice.ID
	}

	inbound.MetadataMemberID = session.Metadata[memberIDMetadataKey]
	if inbound.MetadataMemberID == "" {
		inbound.MetadataMemberID = session.ClientReferenceID
	}

	inbound.CustomerEmail = session.CustomerEmail
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		inbound.CustomerEmail = session.CustomerDetails.Email
	}

	if session.LineItems != nil {
		for _, item := range session.LineItems.Data {
			if item != nil && item.Price != nil {
				inbound.Event.PriceID = item.Price.ID
				break
			}
		}
	}
	if inbound.Event.PriceID == "" {
		inbound.Event.PriceID = session.Metadata["price_id"]
	}
}

func applySubscription(inbound *entity.InboundEvent, sub *stripe.Subscription) {
	inbound.Event.SubscriptionID = sub.ID
	if sub.Customer != nil {
		inbound.Event.CustomerID = sub.Customer.ID
		inbound.CustomerEmail = sub.Customer.Email
	}
	inbound.MetadataMemberID = sub.Metadata[memberIDMetadataKey]

	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.Price != nil {
				inbound.Event.PriceID = item.Price.ID
				break
			}
		}
	}
}

func applyInvoice(inbound *entity.InboundEvent, inv *stripe.Invoice) {
	inbound.Event.InvoiceID = inv.ID
	if inv.Subscription != nil {
		inbound.Event.SubscriptionID = inv.Subscription.ID
	}
	if inv.Customer != nil {
		inbound.Event.CustomerID = inv.Customer.ID
	}
	inbound.CustomerEmail = inv.CustomerEmail
	inbound.MetadataMemberID = inv.Metadata[memberIDMetadataKey]
	if inbound.MetadataMemberID == "" && inv.SubscriptionDetails != nil {
		inbound.MetadataMemberID = inv.SubscriptionDetails.Metadata[memberIDMetadataKey]
	}

	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line != nil && line.Price != nil {
				inbound.Event.PriceID = line.Price.ID
				break
			}
		}
	}
}
