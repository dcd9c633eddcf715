package stripe

import (
	"fmt"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/payments-backend/db"
)

// fakeGateway is an in-memory Gateway used to exercise the service
// without touching the remote API.
type fakeGateway struct {
	customers     map[string]*CustomerSnapshot
	charges       map[string]*ChargeSnapshot
	subscriptions map[string]*SubscriptionSnapshot
	invoices      map[string]*InvoiceSnapshot
	plans         []*PlanSnapshot

	deleteErr          error
	deletedCustomers   []string
	chargeParams       []*ChargeParams
	chargeKeys         []string
	subscriptionParams []*SubscriptionParams
	refundedCents      []int64
	chargeGets         int
	customerGets       int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		customers:     make(map[string]*CustomerSnapshot),
		charges:       make(map[string]*ChargeSnapshot),
		subscriptions: make(map[string]*SubscriptionSnapshot),
		invoices:      make(map[string]*InvoiceSnapshot),
	}
}

func (g *fakeGateway) Customer(id string) (*CustomerSnapshot, error) {
	g.customerGets++
	snap, ok := g.customers[id]
	if !ok {
		return nil, newError(KindNotFound, "No such customer: "+id, nil)
	}
	return snap, nil
}

func (g *fakeGateway) CreateCustomer(params *CustomerParams, _ string) (*CustomerSnapshot, error) {
	snap := &CustomerSnapshot{
		ID:    fmt.Sprintf("cus_fake%d", len(g.customers)+1),
		Email: params.Email,
	}
	g.customers[snap.ID] = snap
	return snap, nil
}

func (g *fakeGateway) DeleteCustomer(id string) error {
	if g.deleteErr != nil {
		return g.deleteErr
	}
	g.deletedCustomers = append(g.deletedCustomers, id)
	delete(g.customers, id)
	return nil
}

func (g *fakeGateway) Charge(id string) (*ChargeSnapshot, error) {
	g.chargeGets++
	snap, ok := g.charges[id]
	if !ok {
		return nil, newError(KindNotFound, "No such charge: "+id, nil)
	}
	return snap, nil
}

func (g *fakeGateway) CreateCharge(params *ChargeParams, idempotencyKey string) (*ChargeSnapshot, error) {
	g.chargeParams = append(g.chargeParams, params)
	g.chargeKeys = append(g.chargeKeys, idempotencyKey)
	snap := &ChargeSnapshot{
		ID:          fmt.Sprintf("ch_fake%d", len(g.charges)+1),
		Customer:    ObjectID(params.CustomerID),
		Amount:      params.AmountCents,
		Description: params.Description,
		Paid:        true,
		Captured:    true,
		Created:     time.Now().Unix(),
	}
	g.charges[snap.ID] = snap
	return snap, nil
}

func (g *fakeGateway) RefundCharge(id string, amountCents int64) (*ChargeSnapshot, error) {
	snap, ok := g.charges[id]
	if !ok {
		return nil, newError(KindNotFound, "No such charge: "+id, nil)
	}
	g.refundedCents = append(g.refundedCents, amountCents)
	refunded := amountCents
	if snap.AmountRefunded != nil {
		refunded += *snap.AmountRefunded
	}
	snap.AmountRefunded = &refunded
	snap.Refunded = refunded >= snap.Amount
	return snap, nil
}

func (g *fakeGateway) CaptureCharge(id string) (*ChargeSnapshot, error) {
	snap, ok := g.charges[id]
	if !ok {
		return nil, newError(KindNotFound, "No such charge: "+id, nil)
	}
	snap.Captured = true
	return snap, nil
}

func (g *fakeGateway) Subscription(id string) (*SubscriptionSnapshot, error) {
	snap, ok := g.subscriptions[id]
	if !ok {
		return nil, newError(KindNotFound, "No such subscription: "+id, nil)
	}
	return snap, nil
}

func (g *fakeGateway) CreateSubscription(params *SubscriptionParams, _ string) (*SubscriptionSnapshot, error) {
	g.subscriptionParams = append(g.subscriptionParams, params)
	status := "active"
	if params.TrialPeriodDays > 0 {
		status = "trialing"
	}
	snap := &SubscriptionSnapshot{
		ID:       fmt.Sprintf("sub_fake%d", len(g.subscriptions)+1),
		Customer: ObjectID(params.CustomerID),
		Status:   status,
		Quantity: 1,
		Plan:     &PlanReference{ID: params.PriceID},
	}
	g.subscriptions[snap.ID] = snap
	return snap, nil
}

func (g *fakeGateway) Invoice(id string) (*InvoiceSnapshot, error) {
	snap, ok := g.invoices[id]
	if !ok {
		return nil, newError(KindNotFound, "No such invoice: "+id, nil)
	}
	return snap, nil
}

func (g *fakeGateway) Plans() ([]*PlanSnapshot, error) {
	return g.plans, nil
}

// memRepo is an in-memory Repository mimicking the Mongo storage
// semantics the service relies on.
type memRepo struct {
	customers     map[string]*db.Customer
	charges       map[string]*db.Charge
	subscriptions map[string]*db.Subscription
	invoices      map[string]*db.Invoice
	plans         map[string]*db.Plan
	keys          []*db.IdempotencyKey
}

func newMemRepo() *memRepo {
	return &memRepo{
		customers:     make(map[string]*db.Customer),
		charges:       make(map[string]*db.Charge),
		subscriptions: make(map[string]*db.Subscription),
		invoices:      make(map[string]*db.Invoice),
		plans:         make(map[string]*db.Plan),
	}
}

func (r *memRepo) SetCustomer(customer *db.Customer) error {
	stored := *customer
	r.customers[customer.StripeID] = &stored
	return nil
}

func (r *memRepo) Customer(stripeID string) (*db.Customer, error) {
	customer, ok := r.customers[stripeID]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *customer
	return &copied, nil
}

func (r *memRepo) CustomerBySubscriber(subscriber string) (*db.Customer, error) {
	for _, customer := range r.customers {
		if customer.Subscriber == subscriber {
			copied := *customer
			return &copied, nil
		}
	}
	return nil, db.ErrNotFound
}

func (r *memRepo) SetCharge(charge *db.Charge) error {
	// receipt bookkeeping is local state, same as the Mongo storage
	if current, ok := r.charges[charge.StripeID]; ok && current.ReceiptSent {
		charge.ReceiptSent = true
	}
	stored := *charge
	r.charges[charge.StripeID] = &stored
	return nil
}

func (r *memRepo) Charge(stripeID string) (*db.Charge, error) {
	charge, ok := r.charges[stripeID]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *charge
	return &copied, nil
}

func (r *memRepo) SetSubscription(subscription *db.Subscription) error {
	stored := *subscription
	r.subscriptions[subscription.StripeID] = &stored
	return nil
}

func (r *memRepo) Subscription(stripeID string) (*db.Subscription, error) {
	subscription, ok := r.subscriptions[stripeID]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *subscription
	return &copied, nil
}

func (r *memRepo) SetInvoice(invoice *db.Invoice) error {
	stored := *invoice
	r.invoices[invoice.StripeID] = &stored
	return nil
}

func (r *memRepo) Invoice(stripeID string) (*db.Invoice, error) {
	invoice, ok := r.invoices[stripeID]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *invoice
	return &copied, nil
}

func (r *memRepo) SetPlan(plan *db.Plan) error {
	stored := *plan
	r.plans[plan.StripeID] = &stored
	return nil
}

func (r *memRepo) Plan(stripeID string) (*db.Plan, error) {
	plan, ok := r.plans[stripeID]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *plan
	return &copied, nil
}

func (r *memRepo) DefaultPlan() (*db.Plan, error) {
	for _, plan := range r.plans {
		if plan.Default {
			copied := *plan
			return &copied, nil
		}
	}
	return nil, db.ErrNotFound
}

func (r *memRepo) Plans() ([]*db.Plan, error) {
	var plans []*db.Plan
	for _, plan := range r.plans {
		copied := *plan
		plans = append(plans, &copied)
	}
	return plans, nil
}

func (r *memRepo) NewIdempotencyKey(action string) (*db.IdempotencyKey, error) {
	key := &db.IdempotencyKey{
		Key:       uuid.NewString(),
		Action:    action,
		CreatedAt: time.Now(),
	}
	r.keys = append(r.keys, key)
	return key, nil
}

func newTestService(t *testing.T, config *Config) (*Service, *fakeGateway, *memRepo) {
	t.Helper()
	if config == nil {
		config = &Config{APIKey: "sk_test_fake"}
	}
	gateway := newFakeGateway()
	repo := newMemRepo()
	service, err := NewService(config, gateway, repo, NewMemoryEventStore(time.Hour), nil)
	qt.Assert(t, err, qt.IsNil)
	return service, gateway, repo
}

func mustAmount(t *testing.T, s string) db.Amount {
	t.Helper()
	amount, err := db.NewAmount(s)
	qt.Assert(t, err, qt.IsNil)
	return amount
}

func TestCalculateRefundCents(t *testing.T) {
	c := qt.New(t)

	charge := &db.Charge{Amount: mustAmount(t, "500.00")}
	partial := mustAmount(t, "300")
	tooLarge := mustAmount(t, "600.00")
	exact := mustAmount(t, "500.00")

	c.Assert(calculateRefundCents(charge, nil), qt.Equals, int64(50000))
	c.Assert(calculateRefundCents(charge, &partial), qt.Equals, int64(30000))
	c.Assert(calculateRefundCents(charge, &tooLarge), qt.Equals, int64(50000))
	c.Assert(calculateRefundCents(charge, &exact), qt.Equals, int64(50000))
}

func TestCreateCharge(t *testing.T) {
	c := qt.New(t)
	service, gateway, repo := newTestService(t, nil)

	err := repo.SetCustomer(&db.Customer{StripeID: "cus_1", Subscriber: "alice"})
	c.Assert(err, qt.IsNil)

	charge, err := service.CreateCharge("cus_1", mustAmount(t, "10.50"), "a glass of wine")
	c.Assert(err, qt.IsNil)
	c.Assert(charge.Amount.Equal(mustAmount(t, "10.50")), qt.IsTrue)
	c.Assert(charge.CustomerID, qt.Equals, "cus_1")

	// the remote call carries integer minor units
	c.Assert(gateway.chargeParams, qt.HasLen, 1)
	c.Assert(gateway.chargeParams[0].AmountCents, qt.Equals, int64(1050))
	c.Assert(gateway.chargeParams[0].Currency, qt.Equals, DefaultCurrency)

	// the idempotency key was reserved before the remote call
	c.Assert(repo.keys, qt.HasLen, 1)
	c.Assert(repo.keys[0].Action, qt.Equals, "charge.create")
	c.Assert(gateway.chargeKeys[0], qt.Equals, repo.keys[0].Key)

	stored, err := repo.Charge(charge.StripeID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Paid, qt.IsTrue)
}

func TestCreateChargeRejectsNonPositiveAmount(t *testing.T) {
	c := qt.New(t)
	service, gateway, repo := newTestService(t, nil)

	err := repo.SetCustomer(&db.Customer{StripeID: "cus_1"})
	c.Assert(err, qt.IsNil)

	_, err = service.CreateCharge("cus_1", mustAmount(t, "0"), "nothing")
	c.Assert(IsKind(err, KindInvalidRequest), qt.IsTrue)
	c.Assert(gateway.chargeParams, qt.HasLen, 0)
	c.Assert(repo.keys, qt.HasLen, 0)
}

func TestRefundCharge(t *testing.T) {
	c := qt.New(t)
	service, gateway, repo := newTestService(t, nil)

	gateway.charges["ch_1"] = &ChargeSnapshot{
		ID:       "ch_1",
		Customer: "cus_1",
		Amount:   50000,
		Paid:     true,
		Captured: true,
	}
	err := repo.SetCharge(&db.Charge{
		StripeID:   "ch_1",
		CustomerID: "cus_1",
		Amount:     mustAmount(t, "500.00"),
		Paid:       true,
	})
	c.Assert(err, qt.IsNil)

	partial := mustAmount(t, "300.00")
	charge, err := service.RefundCharge("ch_1", &partial)
	c.Assert(err, qt.IsNil)
	c.Assert(gateway.refundedCents, qt.DeepEquals, []int64{30000})
	c.Assert(charge.AmountRefunded, qt.Not(qt.IsNil))
	c.Assert(charge.AmountRefunded.Equal(mustAmount(t, "300.00")), qt.IsTrue)
	c.Assert(charge.Refunded, qt.IsFalse)

	// refunding more than what remains is clamped to the full amount
	tooLarge := mustAmount(t, "900.00")
	_, err = service.RefundCharge("ch_1", &tooLarge)
	c.Assert(err, qt.IsNil)
	c.Assert(gateway.refundedCents[1], qt.Equals, int64(50000))
}

func TestRefundChargeRejectsNonPositiveAmount(t *testing.T) {
	c := qt.New(t)
	service, gateway, repo := newTestService(t, nil)

	gateway.charges["ch_1"] = &ChargeSnapshot{ID: "ch_1", Amount: 50000, Paid: true}
	err := repo.SetCharge(&db.Charge{
		StripeID:   "ch_1",
		CustomerID: "cus_1",
		Amount:     mustAmount(t, "500.00"),
		Paid:       true,
	})
	c.Assert(err, qt.IsNil)

	for _, raw := range []string{"0", "-10.00"} {
		amount := mustAmount(t, raw)
		_, err := service.RefundCharge("ch_1", &amount)
		c.Assert(IsKind(err, KindInvalidRequest), qt.IsTrue, qt.Commentf("amount %s", raw))
	}
	c.Assert(gateway.refundedCents, qt.HasLen, 0)
}

func TestPurgeCustomer(t *testing.T) {
	c := qt.New(t)
	service, gateway, repo := newTestService(t, nil)

	customer := &db.Customer{
		StripeID:        "cus_1",
		Subscriber:      "alice",
		Email:           "alice@example.com",
		CardFingerprint: "fp_1",
		CardLast4:       "4242",
		CardKind:        "Visa",
	}
	err := repo.SetCustomer(customer)
	c.Assert(err, qt.IsNil)
	gateway.customers["cus_1"] = &CustomerSnapshot{ID: "cus_1", Email: customer.Email}

	purged, err := service.PurgeCustomer("cus_1")
	c.Assert(err, qt.IsNil)
	c.Assert(gateway.deletedCustomers, qt.DeepEquals, []string{"cus_1"})
	c.Assert(purged.StripeID, qt.Equals, "cus_1")
	c.Assert(purged.Subscriber, qt.Equals, "")
	c.Assert(purged.Email, qt.Equals, "")
	c.Assert(purged.CardFingerprint, qt.Equals, "")
	c.Assert(purged.CardLast4, qt.Equals, "")
	c.Assert(purged.CardKind, qt.Equals, "")
	c.Assert(purged.DatePurged, qt.Not(qt.IsNil))
	firstPurge := *purged.DatePurged

	// a second purge against an already deleted remote customer is a
	// recoverable no-op that keeps the original purge date
	gateway.deleteErr = newError(KindInvalidRequest, "No such customer: cus_1", nil)
	again, err := service.PurgeCustomer("cus_1")
	c.Assert(err, qt.IsNil)
	c.Assert(again.DatePurged.Equal(firstPurge), qt.IsTrue)
}

func TestPurgeCustomerFatalRemoteError(t *testing.T) {
	c := qt.New(t)
	service, gateway, repo := newTestService(t, nil)

	err := repo.SetCustomer(&db.Customer{
		StripeID: "cus_1",
		Email:    "alice@example.com",
	})
	c.Assert(err, qt.IsNil)
	gateway.deleteErr = newError(KindAuth, "Invalid API key provided", nil)

	_, err = service.PurgeCustomer("cus_1")
	c.Assert(IsKind(err, KindAuth), qt.IsTrue)

	// the local mirror is untouched
	stored, err := repo.Customer("cus_1")
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Email, qt.Equals, "alice@example.com")
	c.Assert(stored.DatePurged, qt.IsNil)
}

func TestCreateCustomerSubscribesToDefaultPlan(t *testing.T) {
	c := qt.New(t)
	service, gateway, repo := newTestService(t, &Config{
		APIKey:        "sk_test_fake",
		DefaultPlanID: "prod_default",
		TrialPeriodFor: func(subscriber string) int64 {
			if subscriber == "alice" {
				return 14
			}
			return 0
		},
	})
	err := repo.SetPlan(&db.Plan{
		StripeID: "prod_default",
		PriceID:  "price_default",
		Default:  true,
	})
	c.Assert(err, qt.IsNil)

	customer, err := service.CreateCustomer("alice", "alice@example.com", "")
	c.Assert(err, qt.IsNil)
	c.Assert(customer.Subscriber, qt.Equals, "alice")

	c.Assert(gateway.subscriptionParams, qt.HasLen, 1)
	c.Assert(gateway.subscriptionParams[0].PriceID, qt.Equals, "price_default")
	c.Assert(gateway.subscriptionParams[0].TrialPeriodDays, qt.Equals, int64(14))
	c.Assert(gateway.subscriptionParams[0].CustomerID, qt.Equals, customer.StripeID)

	subscriptions, err := repo.Subscription("sub_fake1")
	c.Assert(err, qt.IsNil)
	c.Assert(subscriptions.CustomerID, qt.Equals, customer.StripeID)
	c.Assert(subscriptions.Status, qt.Equals, "trialing")

	// creating again for the same subscriber returns the mirror
	same, err := service.CreateCustomer("alice", "alice@example.com", "")
	c.Assert(err, qt.IsNil)
	c.Assert(same.StripeID, qt.Equals, customer.StripeID)
	c.Assert(gateway.customers, qt.HasLen, 1)
}

func TestSyncCustomerPreservesLocalFields(t *testing.T) {
	c := qt.New(t)
	service, gateway, repo := newTestService(t, nil)

	purgedAt := time.Now().Add(-time.Hour)
	err := repo.SetCustomer(&db.Customer{
		StripeID:   "cus_1",
		Subscriber: "alice",
		Email:      "old@example.com",
		DatePurged: &purgedAt,
	})
	c.Assert(err, qt.IsNil)
	gateway.customers["cus_1"] = &CustomerSnapshot{
		ID:    "cus_1",
		Email: "new@example.com",
		ActiveCard: &CardSnapshot{
			Last4:       "4242",
			Type:        "Visa",
			Fingerprint: "fp_1",
		},
	}

	customer, err := service.SyncCustomer("cus_1")
	c.Assert(err, qt.IsNil)
	c.Assert(customer.Email, qt.Equals, "new@example.com")
	c.Assert(customer.CardLast4, qt.Equals, "4242")
	c.Assert(customer.CardKind, qt.Equals, "Visa")
	c.Assert(customer.Subscriber, qt.Equals, "alice")
	c.Assert(customer.DatePurged, qt.Not(qt.IsNil))
}

func TestSyncPlansFlagsConfiguredDefault(t *testing.T) {
	c := qt.New(t)
	service, gateway, repo := newTestService(t, &Config{
		APIKey:        "sk_test_fake",
		DefaultPlanID: "prod_basic",
	})
	gateway.plans = []*PlanSnapshot{
		{ProductID: "prod_basic", PriceID: "price_1", Name: "Basic", AmountCents: 999, Currency: "usd", Interval: "month", IntervalCount: 1},
		{ProductID: "prod_pro", PriceID: "price_2", Name: "Pro", AmountCents: 4999, Currency: "usd", Interval: "month", IntervalCount: 1, Default: true},
	}

	plans, err := service.SyncPlans()
	c.Assert(err, qt.IsNil)
	c.Assert(plans, qt.HasLen, 2)

	basic, err := repo.Plan("prod_basic")
	c.Assert(err, qt.IsNil)
	c.Assert(basic.Default, qt.IsTrue)
	c.Assert(basic.Amount.Equal(mustAmount(t, "9.99")), qt.IsTrue)

	pro, err := repo.Plan("prod_pro")
	c.Assert(err, qt.IsNil)
	c.Assert(pro.Default, qt.IsFalse)
}
