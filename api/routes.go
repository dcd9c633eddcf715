package api

const (
	// auth routes

	// POST /auth/login to login and get a JWT token
	authLoginEndpoint = "/auth/login"
	// POST /auth/refresh to refresh the JWT token
	authRefreshTokenEndpoint = "/auth/refresh"

	// customer routes

	// POST /customers to create a remote customer and its local mirror
	customersEndpoint = "/customers"
	// GET /customers/{customerID} to get the local mirror of a customer
	customerEndpoint = "/customers/{customerID}"
	// POST /customers/{customerID}/sync to refresh the mirror from remote
	customerSyncEndpoint = "/customers/{customerID}/sync"
	// GET /customers/{customerID}/charges to list the customer charges
	customerChargesEndpoint = "/customers/{customerID}/charges"
	// GET /customers/{customerID}/subscriptions to list the customer subscriptions
	customerSubscriptionsEndpoint = "/customers/{customerID}/subscriptions"
	// GET /customers/{customerID}/invoices to list the customer invoices
	customerInvoicesEndpoint = "/customers/{customerID}/invoices"

	// charge routes

	// POST /charges to create a charge against an existing customer
	chargesEndpoint = "/charges"
	// GET /charges/{chargeID} to get the local mirror of a charge
	chargeEndpoint = "/charges/{chargeID}"
	// POST /charges/{chargeID}/sync to refresh the mirror from remote
	chargeSyncEndpoint = "/charges/{chargeID}/sync"
	// POST /charges/{chargeID}/refund to refund a charge, fully or partially
	chargeRefundEndpoint = "/charges/{chargeID}/refund"
	// POST /charges/{chargeID}/capture to capture a pre-authorized charge
	chargeCaptureEndpoint = "/charges/{chargeID}/capture"

	// subscription and invoice routes

	// GET /subscriptions/{subscriptionID} to get the local mirror
	subscriptionEndpoint = "/subscriptions/{subscriptionID}"
	// POST /subscriptions/{subscriptionID}/sync to refresh the mirror
	subscriptionSyncEndpoint = "/subscriptions/{subscriptionID}/sync"
	// GET /invoices/{invoiceID} to get the local mirror
	invoiceEndpoint = "/invoices/{invoiceID}"
	// POST /invoices/{invoiceID}/sync to refresh the mirror
	invoiceSyncEndpoint = "/invoices/{invoiceID}/sync"

	// plan routes

	// GET /plans to list the mirrored plans
	plansEndpoint = "/plans"
	// GET /plans/{planID} to get a single mirrored plan
	planInfoEndpoint = "/plans/{planID}"
	// POST /plans/sync to refresh the plan catalog from remote
	plansSyncEndpoint = "/plans/sync"

	// webhook routes

	// POST /webhook to receive provider webhook events
	webhookEndpoint = "/webhook"
)
