package stripe

import (
	"encoding/json"
	"time"

	"github.com/vocdoni/payments-backend/db"
)

// ObjectID unmarshals a JSON field that holds either a bare id string
// or an expanded object carrying an "id" key.
type ObjectID string

func (o *ObjectID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*o = ObjectID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*o = ObjectID(obj.ID)
	return nil
}

// CardSnapshot is the nested card object carried by remote customers
// and charges. Older API versions name the brand "type".
type CardSnapshot struct {
	Last4       string `json:"last4"`
	Brand       string `json:"brand"`
	Type        string `json:"type"`
	Fingerprint string `json:"fingerprint"`
}

func (c *CardSnapshot) kind() string {
	if c.Brand != "" {
		return c.Brand
	}
	return c.Type
}

// CustomerSnapshot mirrors the wire form of a remote customer.
type CustomerSnapshot struct {
	ID         string        `json:"id"`
	Email      string        `json:"email"`
	Delinquent bool          `json:"delinquent"`
	ActiveCard *CardSnapshot `json:"active_card"`
	Deleted    bool          `json:"deleted"`
}

// ChargeSnapshot mirrors the wire form of a remote charge. Optional
// money fields are pointers because a missing amount and a zero amount
// are different remote states.
type ChargeSnapshot struct {
	ID             string        `json:"id"`
	Customer       ObjectID      `json:"customer"`
	Card           *CardSnapshot `json:"card"`
	Source         *CardSnapshot `json:"source"`
	Amount         int64         `json:"amount"`
	AmountRefunded *int64        `json:"amount_refunded"`
	Fee            int64         `json:"fee"`
	Description    string        `json:"description"`
	Paid           bool          `json:"paid"`
	Refunded       bool          `json:"refunded"`
	Captured       bool          `json:"captured"`
	Dispute        *ObjectID     `json:"dispute"`
	Created        int64         `json:"created"`
}

func (snap *ChargeSnapshot) card() *CardSnapshot {
	if snap.Card != nil {
		return snap.Card
	}
	return snap.Source
}

// SubscriptionSnapshot mirrors the wire form of a remote subscription.
type SubscriptionSnapshot struct {
	ID                 string         `json:"id"`
	Customer           ObjectID       `json:"customer"`
	Status             string         `json:"status"`
	Quantity           int64          `json:"quantity"`
	CancelAtPeriodEnd  bool           `json:"cancel_at_period_end"`
	Plan               *PlanReference `json:"plan"`
	CurrentPeriodStart int64          `json:"current_period_start"`
	CurrentPeriodEnd   int64          `json:"current_period_end"`
	TrialStart         *int64         `json:"trial_start"`
	TrialEnd           *int64         `json:"trial_end"`
	CanceledAt         *int64         `json:"canceled_at"`
	EndedAt            *int64         `json:"ended_at"`
}

// PlanReference is the plan object nested inside a subscription.
type PlanReference struct {
	ID      string   `json:"id"`
	Product ObjectID `json:"product"`
}

// InvoiceSnapshot mirrors the wire form of a remote invoice.
type InvoiceSnapshot struct {
	ID           string   `json:"id"`
	Customer     ObjectID `json:"customer"`
	Subscription ObjectID `json:"subscription"`
	AmountDue    int64    `json:"amount_due"`
	Subtotal     int64    `json:"subtotal"`
	Total        int64    `json:"total"`
	Paid         bool     `json:"paid"`
	Attempted    bool     `json:"attempted"`
	Closed       bool     `json:"closed"`
	PeriodStart  int64    `json:"period_start"`
	PeriodEnd    int64    `json:"period_end"`
	Date         int64    `json:"date"`
}

// PlanSnapshot is built by the gateway from a remote recurring price
// and its product.
type PlanSnapshot struct {
	ProductID       string
	PriceID         string
	Name            string
	AmountCents     int64
	Currency        string
	Interval        string
	IntervalCount   int64
	TrialPeriodDays int64
	Default         bool
}

// decodeSnapshot parses the raw JSON body of a remote object into the
// given snapshot type.
func decodeSnapshot[T any](raw []byte) (*T, error) {
	snap := new(T)
	if err := json.Unmarshal(raw, snap); err != nil {
		return nil, newError(KindMalformedPayload, "failed to decode remote object", err)
	}
	return snap, nil
}

// customerFromSnapshot flattens a remote customer into its local
// mirror. Card fields come from the active card when present.
func customerFromSnapshot(snap *CustomerSnapshot) *db.Customer {
	customer := &db.Customer{
		StripeID:   snap.ID,
		Email:      snap.Email,
		Delinquent: snap.Delinquent,
	}
	if card := snap.ActiveCard; card != nil {
		customer.CardFingerprint = card.Fingerprint
		customer.CardLast4 = card.Last4
		customer.CardKind = card.kind()
	}
	return customer
}

// chargeFromSnapshot converts remote integer cents into local decimal
// currency units. A missing amount_refunded stays unset while a zero
// one becomes the decimal zero.
func chargeFromSnapshot(snap *ChargeSnapshot) *db.Charge {
	charge := &db.Charge{
		StripeID:      snap.ID,
		CustomerID:    string(snap.Customer),
		Amount:        db.AmountFromCents(snap.Amount),
		Fee:           db.AmountFromCents(snap.Fee),
		Description:   snap.Description,
		Paid:          snap.Paid,
		Refunded:      snap.Refunded,
		Captured:      snap.Captured,
		Disputed:      snap.Dispute != nil && *snap.Dispute != "",
		ChargeCreated: time.Unix(snap.Created, 0),
	}
	if snap.AmountRefunded != nil {
		refunded := db.AmountFromCents(*snap.AmountRefunded)
		charge.AmountRefunded = &refunded
	}
	if card := snap.card(); card != nil {
		charge.CardLast4 = card.Last4
		charge.CardKind = card.kind()
	}
	return charge
}

func subscriptionFromSnapshot(snap *SubscriptionSnapshot) *db.Subscription {
	subscription := &db.Subscription{
		StripeID:           snap.ID,
		CustomerID:         string(snap.Customer),
		Status:             snap.Status,
		Quantity:           snap.Quantity,
		CancelAtPeriodEnd:  snap.CancelAtPeriodEnd,
		CurrentPeriodStart: time.Unix(snap.CurrentPeriodStart, 0),
		CurrentPeriodEnd:   time.Unix(snap.CurrentPeriodEnd, 0),
		TrialStart:         unixTimePtr(snap.TrialStart),
		TrialEnd:           unixTimePtr(snap.TrialEnd),
		CanceledAt:         unixTimePtr(snap.CanceledAt),
		EndedAt:            unixTimePtr(snap.EndedAt),
	}
	if plan := snap.Plan; plan != nil {
		subscription.PlanID = string(plan.Product)
		if subscription.PlanID == "" {
			subscription.PlanID = plan.ID
		}
	}
	return subscription
}

func invoiceFromSnapshot(snap *InvoiceSnapshot) *db.Invoice {
	return &db.Invoice{
		StripeID:       snap.ID,
		CustomerID:     string(snap.Customer),
		SubscriptionID: string(snap.Subscription),
		AmountDue:      db.AmountFromCents(snap.AmountDue),
		Subtotal:       db.AmountFromCents(snap.Subtotal),
		Total:          db.AmountFromCents(snap.Total),
		Paid:           snap.Paid,
		Attempted:      snap.Attempted,
		Closed:         snap.Closed,
		PeriodStart:    time.Unix(snap.PeriodStart, 0),
		PeriodEnd:      time.Unix(snap.PeriodEnd, 0),
		Date:           time.Unix(snap.Date, 0),
	}
}

func planFromSnapshot(snap *PlanSnapshot) *db.Plan {
	return &db.Plan{
		StripeID:        snap.ProductID,
		PriceID:         snap.PriceID,
		Name:            snap.Name,
		Amount:          db.AmountFromCents(snap.AmountCents),
		Currency:        snap.Currency,
		Interval:        snap.Interval,
		IntervalCount:   snap.IntervalCount,
		TrialPeriodDays: snap.TrialPeriodDays,
		Default:         snap.Default,
	}
}

func unixTimePtr(ts *int64) *time.Time {
	if ts == nil {
		return nil
	}
	t := time.Unix(*ts, 0)
	return &t
}
