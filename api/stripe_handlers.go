package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/payments-backend/db"
	"github.com/vocdoni/payments-backend/errors"
	"github.com/vocdoni/payments-backend/stripe"
	"go.vocdoni.io/dvote/log"
)

// maxWebhookBodyBytes caps the webhook payload size accepted from the
// provider.
const maxWebhookBodyBytes = int64(65536)

// writeServiceError maps a payment service error to an API error
// response. The notFound error is used when the remote or local object
// does not exist.
func writeServiceError(w http.ResponseWriter, err error, notFound errors.Error) {
	switch {
	case err == db.ErrNotFound || stripe.IsKind(err, stripe.KindNotFound):
		notFound.WithErr(err).Write(w)
	case stripe.IsKind(err, stripe.KindInvalidRequest):
		errors.ErrInvalidData.WithErr(err).Write(w)
	default:
		errors.ErrStripeError.WithErr(err).Write(w)
	}
}

// webhookHandler receives a webhook delivery from the payment provider,
// hands it to the payment service and maps the outcome to an HTTP status.
// A rejected delivery reports the reason so the provider retries only
// what can succeed.
func (a *API) webhookHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		errors.ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	signatureHeader := r.Header.Get("Stripe-Signature")
	if err := a.stripe.ProcessWebhookEvent(payload, signatureHeader); err != nil {
		switch {
		case stripe.IsKind(err, stripe.KindSignatureInvalid):
			errors.ErrInvalidSignature.WithErr(err).Write(w)
		case stripe.IsKind(err, stripe.KindMalformedPayload):
			errors.ErrMalformedEvent.WithErr(err).Write(w)
		default:
			// a transient failure must come back as a retry from the provider
			errors.ErrStripeWebhookError.WithErr(err).Write(w)
		}
		return
	}
	httpWriteOK(w)
}

// createCustomerHandler creates a remote customer and stores its local
// mirror. Repeated for the same subscriber, it returns the existing
// mirror instead of creating a duplicate remote customer.
func (a *API) createCustomerHandler(w http.ResponseWriter, r *http.Request) {
	req := &CreateCustomerRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		errors.ErrMalformedBody.Write(w)
		return
	}
	if req.Subscriber == "" {
		errors.ErrMalformedBody.Withf("subscriber is required").Write(w)
		return
	}
	customer, err := a.stripe.CreateCustomer(req.Subscriber, req.Email, req.CardToken)
	if err != nil {
		writeServiceError(w, err, errors.ErrCustomerNotFound)
		return
	}
	httpWriteJSON(w, customer)
}

// customerInfoHandler returns the local mirror of a customer.
func (a *API) customerInfoHandler(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	customer, err := a.db.Customer(customerID)
	if err != nil {
		if err == db.ErrNotFound {
			errors.ErrCustomerNotFound.Write(w)
			return
		}
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, customer)
}

// syncCustomerHandler refreshes the local mirror of a customer from its
// current remote state.
func (a *API) syncCustomerHandler(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	customer, err := a.stripe.SyncCustomer(customerID)
	if err != nil {
		writeServiceError(w, err, errors.ErrCustomerNotFound)
		return
	}
	httpWriteJSON(w, customer)
}

// purgeCustomerHandler deletes the remote customer and strips the
// personal data from the local mirror. The purge is idempotent: purging
// an already purged customer succeeds without changing the purge date.
func (a *API) purgeCustomerHandler(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	customer, err := a.stripe.PurgeCustomer(customerID)
	if err != nil {
		writeServiceError(w, err, errors.ErrCustomerNotFound)
		return
	}
	log.Infow("customer purged", "customer", customerID)
	httpWriteJSON(w, customer)
}

// customerChargesHandler lists the mirrored charges of a customer, most
// recent first.
func (a *API) customerChargesHandler(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	charges, err := a.db.ChargesByCustomer(customerID)
	if err != nil {
		if err == db.ErrInvalidData {
			errors.ErrMalformedURLParam.Write(w)
			return
		}
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, charges)
}

// customerSubscriptionsHandler lists the mirrored subscriptions of a
// customer.
func (a *API) customerSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	subscriptions, err := a.db.SubscriptionsByCustomer(customerID)
	if err != nil {
		if err == db.ErrInvalidData {
			errors.ErrMalformedURLParam.Write(w)
			return
		}
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, subscriptions)
}

// customerInvoicesHandler lists the mirrored invoices of a customer.
func (a *API) customerInvoicesHandler(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	invoices, err := a.db.InvoicesByCustomer(customerID)
	if err != nil {
		if err == db.ErrInvalidData {
			errors.ErrMalformedURLParam.Write(w)
			return
		}
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, invoices)
}

// createChargeHandler creates a charge against an existing customer and
// stores its local mirror.
func (a *API) createChargeHandler(w http.ResponseWriter, r *http.Request) {
	req := &CreateChargeRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		errors.ErrMalformedBody.Write(w)
		return
	}
	if req.CustomerID == "" {
		errors.ErrMalformedBody.Withf("customerID is required").Write(w)
		return
	}
	amount, err := db.NewAmount(req.Amount)
	if err != nil {
		errors.ErrInvalidAmount.WithErr(err).Write(w)
		return
	}
	charge, err := a.stripe.CreateCharge(req.CustomerID, amount, req.Description)
	if err != nil {
		if stripe.IsKind(err, stripe.KindInvalidRequest) {
			errors.ErrInvalidAmount.WithErr(err).Write(w)
			return
		}
		writeServiceError(w, err, errors.ErrCustomerNotFound)
		return
	}
	httpWriteJSON(w, charge)
}

// chargeInfoHandler returns the local mirror of a charge.
func (a *API) chargeInfoHandler(w http.ResponseWriter, r *http.Request) {
	chargeID := chi.URLParam(r, "chargeID")
	charge, err := a.db.Charge(chargeID)
	if err != nil {
		if err == db.ErrNotFound {
			errors.ErrChargeNotFound.Write(w)
			return
		}
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, charge)
}

// syncChargeHandler refreshes the local mirror of a charge from its
// current remote state.
func (a *API) syncChargeHandler(w http.ResponseWriter, r *http.Request) {
	chargeID := chi.URLParam(r, "chargeID")
	charge, err := a.stripe.SyncCharge(chargeID)
	if err != nil {
		writeServiceError(w, err, errors.ErrChargeNotFound)
		return
	}
	httpWriteJSON(w, charge)
}

// refundChargeHandler refunds a charge. Without an amount, or with an
// amount above the original charge, the full charge is refunded.
func (a *API) refundChargeHandler(w http.ResponseWriter, r *http.Request) {
	chargeID := chi.URLParam(r, "chargeID")
	req := &RefundChargeRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil && err != io.EOF {
		errors.ErrMalformedBody.Write(w)
		return
	}
	var amount *db.Amount
	if req.Amount != "" {
		parsed, err := db.NewAmount(req.Amount)
		if err != nil {
			errors.ErrInvalidAmount.WithErr(err).Write(w)
			return
		}
		amount = &parsed
	}
	charge, err := a.stripe.RefundCharge(chargeID, amount)
	if err != nil {
		writeServiceError(w, err, errors.ErrChargeNotFound)
		return
	}
	httpWriteJSON(w, charge)
}

// captureChargeHandler captures a previously authorized uncaptured
// charge.
func (a *API) captureChargeHandler(w http.ResponseWriter, r *http.Request) {
	chargeID := chi.URLParam(r, "chargeID")
	charge, err := a.stripe.CaptureCharge(chargeID)
	if err != nil {
		writeServiceError(w, err, errors.ErrChargeNotFound)
		return
	}
	httpWriteJSON(w, charge)
}

// subscriptionInfoHandler returns the local mirror of a subscription.
func (a *API) subscriptionInfoHandler(w http.ResponseWriter, r *http.Request) {
	subscriptionID := chi.URLParam(r, "subscriptionID")
	subscription, err := a.db.Subscription(subscriptionID)
	if err != nil {
		if err == db.ErrNotFound {
			errors.ErrSubscriptionNotFound.Write(w)
			return
		}
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, subscription)
}

// syncSubscriptionHandler refreshes the local mirror of a subscription
// from its current remote state.
func (a *API) syncSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	subscriptionID := chi.URLParam(r, "subscriptionID")
	subscription, err := a.stripe.SyncSubscription(subscriptionID)
	if err != nil {
		writeServiceError(w, err, errors.ErrSubscriptionNotFound)
		return
	}
	httpWriteJSON(w, subscription)
}

// invoiceInfoHandler returns the local mirror of an invoice.
func (a *API) invoiceInfoHandler(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "invoiceID")
	invoice, err := a.db.Invoice(invoiceID)
	if err != nil {
		if err == db.ErrNotFound {
			errors.ErrInvoiceNotFound.Write(w)
			return
		}
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, invoice)
}

// syncInvoiceHandler refreshes the local mirror of an invoice from its
// current remote state.
func (a *API) syncInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "invoiceID")
	invoice, err := a.stripe.SyncInvoice(invoiceID)
	if err != nil {
		writeServiceError(w, err, errors.ErrInvoiceNotFound)
		return
	}
	httpWriteJSON(w, invoice)
}

// plansHandler lists the mirrored plan catalog.
func (a *API) plansHandler(w http.ResponseWriter, _ *http.Request) {
	plans, err := a.db.Plans()
	if err != nil {
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	if plans == nil {
		plans = []*db.Plan{}
	}
	httpWriteJSON(w, plans)
}

// planInfoHandler returns a single mirrored plan.
func (a *API) planInfoHandler(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	plan, err := a.db.Plan(planID)
	if err != nil {
		if err == db.ErrNotFound {
			errors.ErrPlanNotFound.Write(w)
			return
		}
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, plan)
}

// syncPlansHandler refreshes the plan catalog from the remote provider.
func (a *API) syncPlansHandler(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	plans, err := a.stripe.SyncPlans()
	if err != nil {
		writeServiceError(w, err, errors.ErrPlanNotFound)
		return
	}
	log.Infow("plan catalog synced", "plans", len(plans), "took", time.Since(start).String())
	httpWriteJSON(w, plans)
}
