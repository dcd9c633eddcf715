package db

import (
	"time"
)

// Customer mirrors a remote Stripe customer. The StripeID is the join key
// with the remote object; every other field is a cache of the last-known
// remote snapshot and is never authoritative.
type Customer struct {
	StripeID        string     `json:"stripeID" bson:"_id"`
	Subscriber      string     `json:"subscriber" bson:"subscriber"`
	Email           string     `json:"email" bson:"email"`
	CardFingerprint string     `json:"cardFingerprint" bson:"cardFingerprint"`
	CardLast4       string     `json:"cardLast4" bson:"cardLast4"`
	CardKind        string     `json:"cardKind" bson:"cardKind"`
	Delinquent      bool       `json:"delinquent" bson:"delinquent"`
	DatePurged      *time.Time `json:"datePurged" bson:"datePurged,omitempty"`
	CreatedAt       time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// Charge mirrors a remote Stripe charge. AmountRefunded is a pointer
// because "never refunded" and "refunded zero" are different states on
// the remote side.
type Charge struct {
	StripeID       string    `json:"stripeID" bson:"_id"`
	CustomerID     string    `json:"customerID" bson:"customerID"`
	CardLast4      string    `json:"cardLast4" bson:"cardLast4"`
	CardKind       string    `json:"cardKind" bson:"cardKind"`
	Amount         Amount    `json:"amount" bson:"amount"`
	AmountRefunded *Amount   `json:"amountRefunded" bson:"amountRefunded,omitempty"`
	Fee            Amount    `json:"fee" bson:"fee"`
	Description    string    `json:"description" bson:"description"`
	Paid           bool      `json:"paid" bson:"paid"`
	Refunded       bool      `json:"refunded" bson:"refunded"`
	Captured       bool      `json:"captured" bson:"captured"`
	Disputed       bool      `json:"disputed" bson:"disputed"`
	ReceiptSent    bool      `json:"receiptSent" bson:"receiptSent"`
	ChargeCreated  time.Time `json:"chargeCreated" bson:"chargeCreated"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Subscription mirrors a remote Stripe subscription.
type Subscription struct {
	StripeID           string     `json:"stripeID" bson:"_id"`
	CustomerID         string     `json:"customerID" bson:"customerID"`
	PlanID             string     `json:"planID" bson:"planID"`
	Status             string     `json:"status" bson:"status"`
	Quantity           int64      `json:"quantity" bson:"quantity"`
	CancelAtPeriodEnd  bool       `json:"cancelAtPeriodEnd" bson:"cancelAtPeriodEnd"`
	CurrentPeriodStart time.Time  `json:"currentPeriodStart" bson:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time  `json:"currentPeriodEnd" bson:"currentPeriodEnd"`
	TrialStart         *time.Time `json:"trialStart" bson:"trialStart,omitempty"`
	TrialEnd           *time.Time `json:"trialEnd" bson:"trialEnd,omitempty"`
	CanceledAt         *time.Time `json:"canceledAt" bson:"canceledAt,omitempty"`
	EndedAt            *time.Time `json:"endedAt" bson:"endedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// Invoice mirrors a remote Stripe invoice.
type Invoice struct {
	StripeID       string    `json:"stripeID" bson:"_id"`
	CustomerID     string    `json:"customerID" bson:"customerID"`
	SubscriptionID string    `json:"subscriptionID" bson:"subscriptionID"`
	AmountDue      Amount    `json:"amountDue" bson:"amountDue"`
	Subtotal       Amount    `json:"subtotal" bson:"subtotal"`
	Total          Amount    `json:"total" bson:"total"`
	Paid           bool      `json:"paid" bson:"paid"`
	Attempted      bool      `json:"attempted" bson:"attempted"`
	Closed         bool      `json:"closed" bson:"closed"`
	PeriodStart    time.Time `json:"periodStart" bson:"periodStart"`
	PeriodEnd      time.Time `json:"periodEnd" bson:"periodEnd"`
	Date           time.Time `json:"date" bson:"date"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Plan mirrors a remote Stripe product with its recurring price.
type Plan struct {
	StripeID        string    `json:"stripeID" bson:"_id"`
	PriceID         string    `json:"priceID" bson:"priceID"`
	Name            string    `json:"name" bson:"name"`
	Amount          Amount    `json:"amount" bson:"amount"`
	Currency        string    `json:"currency" bson:"currency"`
	Interval        string    `json:"interval" bson:"interval"`
	IntervalCount   int64     `json:"intervalCount" bson:"intervalCount"`
	TrialPeriodDays int64     `json:"trialPeriodDays" bson:"trialPeriodDays"`
	Default         bool      `json:"default" bson:"default"`
	CreatedAt       time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt" bson:"updatedAt"`
}

// WebhookEventStatus is the lifecycle state of a received webhook event.
type WebhookEventStatus string

const (
	WebhookEventReceived  WebhookEventStatus = "received"
	WebhookEventProcessed WebhookEventStatus = "processed"
	WebhookEventRejected  WebhookEventStatus = "rejected"
)

// WebhookEvent records a received webhook delivery. The StripeID (the
// remote event id) acts as the dedup key: the unique _id constraint is
// the concurrency-correctness mechanism, not application locking.
type WebhookEvent struct {
	StripeID    string             `json:"stripeID" bson:"_id"`
	Kind        string             `json:"kind" bson:"kind"`
	Payload     []byte             `json:"payload" bson:"payload"`
	Status      WebhookEventStatus `json:"status" bson:"status"`
	ReceivedAt  time.Time          `json:"receivedAt" bson:"receivedAt"`
	ProcessedAt *time.Time         `json:"processedAt" bson:"processedAt,omitempty"`
}

// IdempotencyKey maps a generated key to its creation time. Keys are
// write-once; the same key must be reused when retrying the same logical
// outbound action.
type IdempotencyKey struct {
	Key       string    `json:"key" bson:"_id"`
	Action    string    `json:"action" bson:"action"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}
