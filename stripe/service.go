// Package stripe mirrors remote payment objects (customers, charges,
// subscriptions, invoices and plans) into local storage and keeps the
// mirror in sync through explicit operations and webhook events.
package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/vocdoni/payments-backend/db"
	"github.com/vocdoni/payments-backend/notifications"
	"go.vocdoni.io/dvote/log"
)

// Repository is the local storage surface needed by the Service. It is
// implemented by db.MongoStorage.
type Repository interface {
	SetCustomer(customer *db.Customer) error
	Customer(stripeID string) (*db.Customer, error)
	CustomerBySubscriber(subscriber string) (*db.Customer, error)
	SetCharge(charge *db.Charge) error
	Charge(stripeID string) (*db.Charge, error)
	SetSubscription(subscription *db.Subscription) error
	Subscription(stripeID string) (*db.Subscription, error)
	SetInvoice(invoice *db.Invoice) error
	Invoice(stripeID string) (*db.Invoice, error)
	SetPlan(plan *db.Plan) error
	Plan(stripeID string) (*db.Plan, error)
	DefaultPlan() (*db.Plan, error)
	Plans() ([]*db.Plan, error)
	NewIdempotencyKey(action string) (*db.IdempotencyKey, error)
}

// EventStore persists webhook delivery records for deduplication. It
// is implemented by db.MongoStorage and by MemoryEventStore.
type EventStore interface {
	ReserveWebhookEvent(event *db.WebhookEvent) (bool, error)
	MarkWebhookEventProcessed(stripeID string) error
	MarkWebhookEventRejected(event *db.WebhookEvent) error
}

// Service provides the main business logic for the payment mirror.
type Service struct {
	gateway     Gateway
	repo        Repository
	events      EventStore
	notifier    notifications.NotificationService
	lockManager *LockManager
	handlers    map[string]EventHandler
	config      *Config
}

// NewService creates the payment service. The notifier may be nil, in
// which case charge receipts are not sent.
func NewService(config *Config, gateway Gateway, repo Repository, events EventStore,
	notifier notifications.NotificationService,
) (*Service, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if events == nil {
		return nil, fmt.Errorf("event store is required")
	}

	s := &Service{
		gateway:     gateway,
		repo:        repo,
		events:      events,
		notifier:    notifier,
		lockManager: NewLockManager(),
		handlers:    make(map[string]EventHandler),
		config:      config,
	}
	s.registerDefaultHandlers()
	return s, nil
}

// SyncCustomer fetches the current remote state of a customer and
// overwrites the local mirror. Locally-owned fields survive the sync.
func (s *Service) SyncCustomer(stripeID string) (*db.Customer, error) {
	snap, err := s.gateway.Customer(stripeID)
	if err != nil {
		return nil, err
	}
	customer := customerFromSnapshot(snap)
	if current, err := s.repo.Customer(stripeID); err == nil {
		customer.Subscriber = current.Subscriber
		customer.DatePurged = current.DatePurged
		customer.CreatedAt = current.CreatedAt
	}
	if err := s.repo.SetCustomer(customer); err != nil {
		return nil, newError(KindInternal, "failed to store customer", err)
	}
	return customer, nil
}

// CreateCustomer provisions a remote customer for a subscriber and
// mirrors it locally. If the subscriber already has a customer, the
// existing mirror is returned. When a default plan is configured the
// new customer is also subscribed to it, with the trial period decided
// by the configured hook.
func (s *Service) CreateCustomer(subscriber, email, cardToken string) (*db.Customer, error) {
	if subscriber == "" {
		return nil, newError(KindInvalidRequest, "subscriber is required", nil)
	}
	if existing, err := s.repo.CustomerBySubscriber(subscriber); err == nil {
		return existing, nil
	}
	key, err := s.repo.NewIdempotencyKey("customer.create")
	if err != nil {
		return nil, newError(KindInternal, "failed to reserve idempotency key", err)
	}
	snap, err := s.gateway.CreateCustomer(&CustomerParams{
		Email:     email,
		CardToken: cardToken,
	}, key.Key)
	if err != nil {
		return nil, err
	}
	customer := customerFromSnapshot(snap)
	customer.Subscriber = subscriber
	if err := s.repo.SetCustomer(customer); err != nil {
		return nil, newError(KindInternal, "failed to store customer", err)
	}
	if s.config.DefaultPlanID != "" {
		if err := s.subscribeToDefaultPlan(customer); err != nil {
			log.Warnw("failed to subscribe new customer to default plan",
				"customer", customer.StripeID, "error", err)
		}
	}
	log.Infow("created customer", "customer", customer.StripeID, "subscriber", subscriber)
	return customer, nil
}

func (s *Service) subscribeToDefaultPlan(customer *db.Customer) error {
	plan, err := s.repo.Plan(s.config.DefaultPlanID)
	if err != nil {
		return fmt.Errorf("default plan %s not mirrored: %w", s.config.DefaultPlanID, err)
	}
	var trialDays int64
	if s.config.TrialPeriodFor != nil {
		trialDays = s.config.TrialPeriodFor(customer.Subscriber)
	}
	key, err := s.repo.NewIdempotencyKey("subscription.create")
	if err != nil {
		return err
	}
	snap, err := s.gateway.CreateSubscription(&SubscriptionParams{
		CustomerID:      customer.StripeID,
		PriceID:         plan.PriceID,
		TrialPeriodDays: trialDays,
	}, key.Key)
	if err != nil {
		return err
	}
	_, err = s.applySubscriptionSnapshot(snap)
	return err
}

// PurgeCustomer deletes the remote customer and strips the local
// mirror of personal data. A remote answer proving the object is
// already gone does not block the purge; any other remote failure
// leaves the local record untouched.
func (s *Service) PurgeCustomer(stripeID string) (*db.Customer, error) {
	unlock := s.lockManager.LockCustomer(stripeID)
	defer unlock()

	customer, err := s.repo.Customer(stripeID)
	if err != nil {
		return nil, err
	}
	if err := s.gateway.DeleteCustomer(stripeID); err != nil {
		if ClassifyPurgeError(err) == PurgeFatal {
			return nil, err
		}
		log.Debugw("remote customer already deleted", "customer", stripeID, "error", err)
	}
	clearCustomerData(customer)
	if err := s.repo.SetCustomer(customer); err != nil {
		return nil, newError(KindInternal, "failed to store purged customer", err)
	}
	log.Infow("purged customer", "customer", stripeID)
	return customer, nil
}

// clearCustomerData strips every piece of personal data from a
// customer mirror, keeping the remote id as a tombstone. Repeated
// calls keep the first purge date.
func clearCustomerData(customer *db.Customer) {
	customer.Subscriber = ""
	customer.Email = ""
	customer.CardFingerprint = ""
	customer.CardLast4 = ""
	customer.CardKind = ""
	if customer.DatePurged == nil {
		now := time.Now()
		customer.DatePurged = &now
	}
}

// SyncCharge fetches the current remote state of a charge and
// overwrites the local mirror.
func (s *Service) SyncCharge(stripeID string) (*db.Charge, error) {
	snap, err := s.gateway.Charge(stripeID)
	if err != nil {
		return nil, err
	}
	return s.applyChargeSnapshot(snap)
}

// CreateCharge charges a customer the given decimal amount. The
// idempotency key is reserved before the remote call is issued so a
// retry after a crash cannot double charge.
func (s *Service) CreateCharge(customerID string, amount db.Amount, description string) (*db.Charge, error) {
	if amount.Cents() <= 0 {
		return nil, newError(KindInvalidRequest, "charge amount must be positive", nil)
	}
	customer, err := s.repo.Customer(customerID)
	if err != nil {
		return nil, err
	}
	key, err := s.repo.NewIdempotencyKey("charge.create")
	if err != nil {
		return nil, newError(KindInternal, "failed to reserve idempotency key", err)
	}
	snap, err := s.gateway.CreateCharge(&ChargeParams{
		CustomerID:  customer.StripeID,
		AmountCents: amount.Cents(),
		Currency:    s.config.Currency,
		Description: description,
	}, key.Key)
	if err != nil {
		return nil, err
	}
	charge, err := s.applyChargeSnapshot(snap)
	if err != nil {
		return nil, err
	}
	s.sendChargeReceipt(charge, customer)
	return charge, nil
}

// RefundCharge refunds a charge and refreshes the local mirror from
// the resulting remote state. A nil amount, or an amount above what
// was originally charged, refunds the full charge.
func (s *Service) RefundCharge(stripeID string, amount *db.Amount) (*db.Charge, error) {
	if amount != nil && amount.Cents() <= 0 {
		return nil, newError(KindInvalidRequest, "refund amount must be positive", nil)
	}
	charge, err := s.repo.Charge(stripeID)
	if err != nil {
		return nil, err
	}
	snap, err := s.gateway.RefundCharge(stripeID, calculateRefundCents(charge, amount))
	if err != nil {
		return nil, err
	}
	return s.applyChargeSnapshot(snap)
}

// calculateRefundCents converts a requested decimal refund into the
// integer minor units sent to the remote service, clamped to the
// amount that was originally charged.
func calculateRefundCents(charge *db.Charge, amount *db.Amount) int64 {
	if amount == nil || amount.GreaterThan(charge.Amount.Decimal) {
		return charge.Amount.Cents()
	}
	return amount.Cents()
}

// CaptureCharge captures a previously authorized charge and refreshes
// the local mirror.
func (s *Service) CaptureCharge(stripeID string) (*db.Charge, error) {
	snap, err := s.gateway.CaptureCharge(stripeID)
	if err != nil {
		return nil, err
	}
	return s.applyChargeSnapshot(snap)
}

// SyncSubscription fetches the current remote state of a subscription
// and overwrites the local mirror.
func (s *Service) SyncSubscription(stripeID string) (*db.Subscription, error) {
	snap, err := s.gateway.Subscription(stripeID)
	if err != nil {
		return nil, err
	}
	return s.applySubscriptionSnapshot(snap)
}

// SyncInvoice fetches the current remote state of an invoice and
// overwrites the local mirror.
func (s *Service) SyncInvoice(stripeID string) (*db.Invoice, error) {
	snap, err := s.gateway.Invoice(stripeID)
	if err != nil {
		return nil, err
	}
	return s.applyInvoiceSnapshot(snap)
}

// SyncPlans mirrors the remote recurring price catalog locally. When a
// default plan is configured it overrides the remote default flag.
func (s *Service) SyncPlans() ([]*db.Plan, error) {
	snaps, err := s.gateway.Plans()
	if err != nil {
		return nil, err
	}
	var plans []*db.Plan
	for _, snap := range snaps {
		plan := planFromSnapshot(snap)
		if s.config.DefaultPlanID != "" {
			plan.Default = plan.StripeID == s.config.DefaultPlanID
		}
		if err := s.repo.SetPlan(plan); err != nil {
			return nil, newError(KindInternal, "failed to store plan", err)
		}
		plans = append(plans, plan)
	}
	log.Infow("synced plans", "count", len(plans))
	return plans, nil
}

func (s *Service) applyChargeSnapshot(snap *ChargeSnapshot) (*db.Charge, error) {
	charge := chargeFromSnapshot(snap)
	if err := s.repo.SetCharge(charge); err != nil {
		return nil, newError(KindInternal, "failed to store charge", err)
	}
	return charge, nil
}

func (s *Service) applySubscriptionSnapshot(snap *SubscriptionSnapshot) (*db.Subscription, error) {
	subscription := subscriptionFromSnapshot(snap)
	if err := s.repo.SetSubscription(subscription); err != nil {
		return nil, newError(KindInternal, "failed to store subscription", err)
	}
	return subscription, nil
}

func (s *Service) applyInvoiceSnapshot(snap *InvoiceSnapshot) (*db.Invoice, error) {
	invoice := invoiceFromSnapshot(snap)
	if err := s.repo.SetInvoice(invoice); err != nil {
		return nil, newError(KindInternal, "failed to store invoice", err)
	}
	return invoice, nil
}

// sendChargeReceipt emails a receipt for a paid charge. Delivery is
// best effort and never fails the charge.
func (s *Service) sendChargeReceipt(charge *db.Charge, customer *db.Customer) {
	if s.notifier == nil || !charge.Paid || charge.ReceiptSent || customer.Email == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	body := fmt.Sprintf("Your card was charged %s %s for %q (charge %s).",
		charge.Amount, s.config.Currency, charge.Description, charge.StripeID)
	notification := &notifications.Notification{
		ToAddress: customer.Email,
		Subject:   "Payment receipt",
		Body:      body,
		PlainBody: body,
	}
	if err := s.notifier.SendNotification(ctx, notification); err != nil {
		log.Warnw("failed to send charge receipt", "charge", charge.StripeID, "error", err)
		return
	}
	charge.ReceiptSent = true
	if err := s.repo.SetCharge(charge); err != nil {
		log.Warnw("failed to record sent receipt", "charge", charge.StripeID, "error", err)
	}
}
