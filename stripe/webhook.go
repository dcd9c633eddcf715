package stripe

import (
	"encoding/json"
	"errors"

	stripeapi "github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
	"github.com/vocdoni/payments-backend/db"
	"go.vocdoni.io/dvote/log"
)

// EventHandler reacts to a validated webhook event.
type EventHandler func(event *stripeapi.Event) error

// RegisterHandler binds a handler to a webhook event type, replacing
// any previous binding for that type.
func (s *Service) RegisterHandler(eventType string, handler EventHandler) {
	s.handlers[eventType] = handler
}

func (s *Service) registerDefaultHandlers() {
	for _, t := range []string{"customer.created", "customer.updated"} {
		s.RegisterHandler(t, s.handleCustomerEvent)
	}
	s.RegisterHandler("customer.deleted", s.handleCustomerDeleted)
	for _, t := range []string{
		"charge.succeeded", "charge.failed", "charge.captured",
		"charge.refunded", "charge.updated",
	} {
		s.RegisterHandler(t, s.handleChargeEvent)
	}
	for _, t := range []string{
		"customer.subscription.created", "customer.subscription.updated",
	} {
		s.RegisterHandler(t, s.handleSubscriptionEvent)
	}
	s.RegisterHandler("customer.subscription.deleted", s.handleSubscriptionDeleted)
	for _, t := range []string{
		"invoice.created", "invoice.updated",
		"invoice.payment_succeeded", "invoice.payment_failed",
	} {
		s.RegisterHandler(t, s.handleInvoiceEvent)
	}
	for _, t := range []string{
		"product.created", "product.updated",
		"price.created", "price.updated",
	} {
		s.RegisterHandler(t, s.handlePlanEvent)
	}
}

// ProcessWebhookEvent runs a webhook delivery through validation,
// deduplication and dispatch. Deliveries without a registered handler
// are accepted and marked processed. A handler failure leaves the
// stored record unprocessed so a redelivery retries it.
func (s *Service) ProcessWebhookEvent(payload []byte, signatureHeader string) error {
	event, err := s.validateWebhookEvent(payload, signatureHeader)
	if err != nil {
		if event != nil && event.ID != "" {
			rejected := &db.WebhookEvent{
				StripeID: event.ID,
				Kind:     string(event.Type),
				Payload:  payload,
			}
			if storeErr := s.events.MarkWebhookEventRejected(rejected); storeErr != nil {
				log.Warnw("failed to record rejected webhook event",
					"event", event.ID, "error", storeErr)
			}
		}
		return err
	}
	record := &db.WebhookEvent{
		StripeID: event.ID,
		Kind:     string(event.Type),
		Payload:  payload,
	}
	proceed, err := s.events.ReserveWebhookEvent(record)
	if err != nil {
		return newError(KindInternal, "failed to record webhook event", err)
	}
	if !proceed {
		log.Debugw("webhook event already processed", "event", event.ID, "type", event.Type)
		return nil
	}
	if handler, ok := s.handlers[string(event.Type)]; ok {
		if err := handler(event); err != nil {
			return err
		}
	} else {
		log.Debugw("unhandled webhook event type", "event", event.ID, "type", event.Type)
	}
	if err := s.events.MarkWebhookEventProcessed(event.ID); err != nil {
		return newError(KindInternal, "failed to mark webhook event processed", err)
	}
	return nil
}

// validateWebhookEvent parses a delivery and, when a webhook secret is
// configured, verifies its signature. On failure the parsed event is
// still returned when possible so the rejection can be recorded.
func (s *Service) validateWebhookEvent(payload []byte, signatureHeader string) (*stripeapi.Event, error) {
	event := &stripeapi.Event{}
	if err := json.Unmarshal(payload, event); err != nil {
		return nil, newError(KindMalformedPayload, "failed to parse webhook payload", err)
	}
	if event.ID == "" || event.Type == "" {
		return event, newError(KindMalformedPayload, "webhook payload missing event id or type", nil)
	}
	if s.config.WebhookSecret != "" {
		// deliveries carry the account's API version, not the SDK's
		// pinned one, so only the signature is checked
		verified, err := stripewebhook.ConstructEventWithOptions(payload, signatureHeader,
			s.config.WebhookSecret, stripewebhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		if err != nil {
			return event, newError(KindSignatureInvalid, "webhook signature verification failed", err)
		}
		return &verified, nil
	}
	return event, nil
}

// eventObjectID extracts the id of the object the event is about.
func eventObjectID(event *stripeapi.Event) (string, error) {
	var object struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil || object.ID == "" {
		return "", newError(KindMalformedPayload, "webhook event carries no object id", err)
	}
	return object.ID, nil
}

func (s *Service) handleCustomerEvent(event *stripeapi.Event) error {
	id, err := eventObjectID(event)
	if err != nil {
		return err
	}
	_, err = s.SyncCustomer(id)
	return err
}

// handleCustomerDeleted strips the local mirror without calling the
// remote service, which already reported the deletion.
func (s *Service) handleCustomerDeleted(event *stripeapi.Event) error {
	id, err := eventObjectID(event)
	if err != nil {
		return err
	}
	unlock := s.lockManager.LockCustomer(id)
	defer unlock()

	customer, err := s.repo.Customer(id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil
		}
		return err
	}
	clearCustomerData(customer)
	return s.repo.SetCustomer(customer)
}

func (s *Service) handleChargeEvent(event *stripeapi.Event) error {
	id, err := eventObjectID(event)
	if err != nil {
		return err
	}
	_, err = s.SyncCharge(id)
	return err
}

func (s *Service) handleSubscriptionEvent(event *stripeapi.Event) error {
	id, err := eventObjectID(event)
	if err != nil {
		return err
	}
	_, err = s.SyncSubscription(id)
	return err
}

// handleSubscriptionDeleted stores the final state carried by the
// event itself since the remote object may no longer be retrievable.
func (s *Service) handleSubscriptionDeleted(event *stripeapi.Event) error {
	snap, err := decodeSnapshot[SubscriptionSnapshot](event.Data.Raw)
	if err != nil {
		return err
	}
	if snap.Status == "" {
		snap.Status = "canceled"
	}
	_, err = s.applySubscriptionSnapshot(snap)
	return err
}

func (s *Service) handleInvoiceEvent(event *stripeapi.Event) error {
	id, err := eventObjectID(event)
	if err != nil {
		return err
	}
	_, err = s.SyncInvoice(id)
	return err
}

func (s *Service) handlePlanEvent(*stripeapi.Event) error {
	_, err := s.SyncPlans()
	return err
}
