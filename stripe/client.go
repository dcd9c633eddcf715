package stripe

import (
	"net/http"
	"time"

	stripeapi "github.com/stripe/stripe-go/v82"
	stripecharge "github.com/stripe/stripe-go/v82/charge"
	stripecustomer "github.com/stripe/stripe-go/v82/customer"
	stripeinvoice "github.com/stripe/stripe-go/v82/invoice"
	stripeprice "github.com/stripe/stripe-go/v82/price"
	striperefund "github.com/stripe/stripe-go/v82/refund"
	stripesubscription "github.com/stripe/stripe-go/v82/subscription"
)

// Gateway is the remote payment service surface used by the Service.
// The production implementation is Client; tests plug in fakes.
type Gateway interface {
	Customer(id string) (*CustomerSnapshot, error)
	CreateCustomer(params *CustomerParams, idempotencyKey string) (*CustomerSnapshot, error)
	DeleteCustomer(id string) error
	Charge(id string) (*ChargeSnapshot, error)
	CreateCharge(params *ChargeParams, idempotencyKey string) (*ChargeSnapshot, error)
	RefundCharge(id string, amountCents int64) (*ChargeSnapshot, error)
	CaptureCharge(id string) (*ChargeSnapshot, error)
	Subscription(id string) (*SubscriptionSnapshot, error)
	CreateSubscription(params *SubscriptionParams, idempotencyKey string) (*SubscriptionSnapshot, error)
	Invoice(id string) (*InvoiceSnapshot, error)
	Plans() ([]*PlanSnapshot, error)
}

// CustomerParams holds the parameters for creating a remote customer.
type CustomerParams struct {
	Email       string
	Description string
	CardToken   string
}

// ChargeParams holds the parameters for creating a remote charge.
// AmountCents is in the provider's integer minor units.
type ChargeParams struct {
	CustomerID  string
	AmountCents int64
	Currency    string
	Description string
	Capture     *bool
}

// SubscriptionParams holds the parameters for subscribing a customer
// to a recurring price.
type SubscriptionParams struct {
	CustomerID      string
	PriceID         string
	TrialPeriodDays int64
}

// Client implements Gateway on top of the stripe-go SDK. Snapshots are
// decoded from the raw response body so that optional remote fields
// keep their null/zero distinction.
type Client struct {
	config     *Config
	httpClient *http.Client
}

// NewClient creates a new remote payment service client with the given
// configuration.
func NewClient(config *Config) *Client {
	stripeapi.Key = config.APIKey

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Customer retrieves the current remote snapshot of a customer.
func (*Client) Customer(id string) (*CustomerSnapshot, error) {
	customer, err := stripecustomer.Get(id, nil)
	if err != nil {
		return nil, wrapRemoteError("get customer", err)
	}
	return decodeSnapshot[CustomerSnapshot](customer.LastResponse.RawJSON)
}

// CreateCustomer creates a remote customer. The idempotency key must
// be reserved by the caller before this call is issued.
func (*Client) CreateCustomer(params *CustomerParams, idempotencyKey string) (*CustomerSnapshot, error) {
	apiParams := &stripeapi.CustomerParams{}
	if params.Email != "" {
		apiParams.Email = stripeapi.String(params.Email)
	}
	if params.Description != "" {
		apiParams.Description = stripeapi.String(params.Description)
	}
	if params.CardToken != "" {
		apiParams.Source = stripeapi.String(params.CardToken)
	}
	if idempotencyKey != "" {
		apiParams.SetIdempotencyKey(idempotencyKey)
	}
	customer, err := stripecustomer.New(apiParams)
	if err != nil {
		return nil, wrapRemoteError("create customer", err)
	}
	return decodeSnapshot[CustomerSnapshot](customer.LastResponse.RawJSON)
}

// DeleteCustomer deletes the remote customer.
func (*Client) DeleteCustomer(id string) error {
	if _, err := stripecustomer.Del(id, nil); err != nil {
		return wrapRemoteError("delete customer", err)
	}
	return nil
}

// Charge retrieves the current remote snapshot of a charge.
func (*Client) Charge(id string) (*ChargeSnapshot, error) {
	charge, err := stripecharge.Get(id, nil)
	if err != nil {
		return nil, wrapRemoteError("get charge", err)
	}
	return decodeSnapshot[ChargeSnapshot](charge.LastResponse.RawJSON)
}

// CreateCharge creates a remote charge. The idempotency key must be
// reserved by the caller before this call is issued.
func (*Client) CreateCharge(params *ChargeParams, idempotencyKey string) (*ChargeSnapshot, error) {
	apiParams := &stripeapi.ChargeParams{
		Amount:   stripeapi.Int64(params.AmountCents),
		Currency: stripeapi.String(params.Currency),
		Customer: stripeapi.String(params.CustomerID),
	}
	if params.Description != "" {
		apiParams.Description = stripeapi.String(params.Description)
	}
	if params.Capture != nil {
		apiParams.Capture = stripeapi.Bool(*params.Capture)
	}
	if idempotencyKey != "" {
		apiParams.SetIdempotencyKey(idempotencyKey)
	}
	charge, err := stripecharge.New(apiParams)
	if err != nil {
		return nil, wrapRemoteError("create charge", err)
	}
	return decodeSnapshot[ChargeSnapshot](charge.LastResponse.RawJSON)
}

// RefundCharge refunds the given minor-unit amount of a charge and
// returns the fresh charge snapshot.
func (c *Client) RefundCharge(id string, amountCents int64) (*ChargeSnapshot, error) {
	params := &stripeapi.RefundParams{
		Charge: stripeapi.String(id),
		Amount: stripeapi.Int64(amountCents),
	}
	if _, err := striperefund.New(params); err != nil {
		return nil, wrapRemoteError("refund charge", err)
	}
	return c.Charge(id)
}

// CaptureCharge captures a previously authorized charge.
func (*Client) CaptureCharge(id string) (*ChargeSnapshot, error) {
	charge, err := stripecharge.Capture(id, nil)
	if err != nil {
		return nil, wrapRemoteError("capture charge", err)
	}
	return decodeSnapshot[ChargeSnapshot](charge.LastResponse.RawJSON)
}

// Subscription retrieves the current remote snapshot of a
// subscription.
func (*Client) Subscription(id string) (*SubscriptionSnapshot, error) {
	subscription, err := stripesubscription.Get(id, nil)
	if err != nil {
		return nil, wrapRemoteError("get subscription", err)
	}
	return decodeSnapshot[SubscriptionSnapshot](subscription.LastResponse.RawJSON)
}

// CreateSubscription subscribes a customer to a recurring price. The
// idempotency key must be reserved by the caller before this call is
// issued.
func (*Client) CreateSubscription(params *SubscriptionParams, idempotencyKey string) (*SubscriptionSnapshot, error) {
	apiParams := &stripeapi.SubscriptionParams{
		Customer: stripeapi.String(params.CustomerID),
		Items: []*stripeapi.SubscriptionItemsParams{
			{Price: stripeapi.String(params.PriceID)},
		},
	}
	if params.TrialPeriodDays > 0 {
		apiParams.TrialPeriodDays = stripeapi.Int64(params.TrialPeriodDays)
	}
	if idempotencyKey != "" {
		apiParams.SetIdempotencyKey(idempotencyKey)
	}
	subscription, err := stripesubscription.New(apiParams)
	if err != nil {
		return nil, wrapRemoteError("create subscription", err)
	}
	return decodeSnapshot[SubscriptionSnapshot](subscription.LastResponse.RawJSON)
}

// Invoice retrieves the current remote snapshot of an invoice.
func (*Client) Invoice(id string) (*InvoiceSnapshot, error) {
	invoice, err := stripeinvoice.Get(id, nil)
	if err != nil {
		return nil, wrapRemoteError("get invoice", err)
	}
	return decodeSnapshot[InvoiceSnapshot](invoice.LastResponse.RawJSON)
}

// Plans lists all active recurring prices with their products and
// converts them to plan snapshots.
func (*Client) Plans() ([]*PlanSnapshot, error) {
	params := &stripeapi.PriceListParams{
		Active: stripeapi.Bool(true),
	}
	params.AddExpand("data.product")

	var plans []*PlanSnapshot
	iter := stripeprice.List(params)
	for iter.Next() {
		price := iter.Price()
		if price.Recurring == nil || price.Product == nil {
			continue
		}
		plans = append(plans, &PlanSnapshot{
			ProductID:       price.Product.ID,
			PriceID:         price.ID,
			Name:            price.Product.Name,
			AmountCents:     price.UnitAmount,
			Currency:        string(price.Currency),
			Interval:        string(price.Recurring.Interval),
			IntervalCount:   price.Recurring.IntervalCount,
			TrialPeriodDays: price.Recurring.TrialPeriodDays,
			Default:         price.Metadata["default"] == "true",
		})
	}
	if err := iter.Err(); err != nil {
		return nil, wrapRemoteError("list prices", err)
	}
	return plans, nil
}
