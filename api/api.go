// Package api provides the HTTP API for the payments backend. It exposes
// the mirrored payment objects (customers, charges, subscriptions,
// invoices and plans), the operations that mutate them through the remote
// provider, and the public webhook endpoint that keeps the mirror in sync.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"
	"github.com/vocdoni/payments-backend/db"
	"github.com/vocdoni/payments-backend/stripe"
	"go.vocdoni.io/dvote/log"
)

const jwtExpiration = 360 * time.Hour // 15 days

// Config holds the API server configuration.
type Config struct {
	Host   string
	Port   int
	Secret string
	DB     *db.MongoStorage
	Stripe *stripe.Service
}

// API type represents the API HTTP server with JWT authentication capabilities.
type API struct {
	db     *db.MongoStorage
	stripe *stripe.Service
	auth   *jwtauth.JWTAuth
	host   string
	port   int
	secret string
	router *chi.Mux
}

// New creates a new API HTTP server. It does not start the server. Use Start() for that.
func New(conf *Config) *API {
	if conf == nil {
		return nil
	}
	return &API{
		db:     conf.DB,
		stripe: conf.Stripe,
		auth:   jwtauth.New("HS256", []byte(conf.Secret), nil),
		host:   conf.Host,
		port:   conf.Port,
		secret: conf.Secret,
	}
}

// Start starts the API HTTP server (non blocking).
func (a *API) Start() {
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", a.host, a.port), a.initRouter()); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Throttle(100))
	r.Use(middleware.Timeout(45 * time.Second))

	// protected routes
	r.Group(func(r chi.Router) {
		// seek, verify and validate JWT tokens
		r.Use(jwtauth.Verifier(a.auth))
		// handle valid JWT tokens
		r.Use(a.authenticator)
		// refresh the token
		log.Infow("new route", "method", "POST", "path", authRefreshTokenEndpoint)
		r.Post(authRefreshTokenEndpoint, a.refreshTokenHandler)
		// create a customer
		log.Infow("new route", "method", "POST", "path", customersEndpoint)
		r.Post(customersEndpoint, a.createCustomerHandler)
		// get customer mirror
		log.Infow("new route", "method", "GET", "path", customerEndpoint)
		r.Get(customerEndpoint, a.customerInfoHandler)
		// purge customer data
		log.Infow("new route", "method", "DELETE", "path", customerEndpoint)
		r.Delete(customerEndpoint, a.purgeCustomerHandler)
		// sync customer mirror from remote
		log.Infow("new route", "method", "POST", "path", customerSyncEndpoint)
		r.Post(customerSyncEndpoint, a.syncCustomerHandler)
		// list customer charges
		log.Infow("new route", "method", "GET", "path", customerChargesEndpoint)
		r.Get(customerChargesEndpoint, a.customerChargesHandler)
		// list customer subscriptions
		log.Infow("new route", "method", "GET", "path", customerSubscriptionsEndpoint)
		r.Get(customerSubscriptionsEndpoint, a.customerSubscriptionsHandler)
		// list customer invoices
		log.Infow("new route", "method", "GET", "path", customerInvoicesEndpoint)
		r.Get(customerInvoicesEndpoint, a.customerInvoicesHandler)
		// create a charge
		log.Infow("new route", "method", "POST", "path", chargesEndpoint)
		r.Post(chargesEndpoint, a.createChargeHandler)
		// get charge mirror
		log.Infow("new route", "method", "GET", "path", chargeEndpoint)
		r.Get(chargeEndpoint, a.chargeInfoHandler)
		// sync charge mirror from remote
		log.Infow("new route", "method", "POST", "path", chargeSyncEndpoint)
		r.Post(chargeSyncEndpoint, a.syncChargeHandler)
		// refund a charge
		log.Infow("new route", "method", "POST", "path", chargeRefundEndpoint)
		r.Post(chargeRefundEndpoint, a.refundChargeHandler)
		// capture a charge
		log.Infow("new route", "method", "POST", "path", chargeCaptureEndpoint)
		r.Post(chargeCaptureEndpoint, a.captureChargeHandler)
		// get subscription mirror
		log.Infow("new route", "method", "GET", "path", subscriptionEndpoint)
		r.Get(subscriptionEndpoint, a.subscriptionInfoHandler)
		// sync subscription mirror from remote
		log.Infow("new route", "method", "POST", "path", subscriptionSyncEndpoint)
		r.Post(subscriptionSyncEndpoint, a.syncSubscriptionHandler)
		// get invoice mirror
		log.Infow("new route", "method", "GET", "path", invoiceEndpoint)
		r.Get(invoiceEndpoint, a.invoiceInfoHandler)
		// sync invoice mirror from remote
		log.Infow("new route", "method", "POST", "path", invoiceSyncEndpoint)
		r.Post(invoiceSyncEndpoint, a.syncInvoiceHandler)
		// refresh the plan catalog from remote
		log.Infow("new route", "method", "POST", "path", plansSyncEndpoint)
		r.Post(plansSyncEndpoint, a.syncPlansHandler)
	})

	// Public routes
	r.Group(func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
			if _, err := w.Write([]byte(".")); err != nil {
				log.Warnw("failed to write ping response", "error", err)
			}
		})
		// login
		log.Infow("new route", "method", "POST", "path", authLoginEndpoint)
		r.Post(authLoginEndpoint, a.authLoginHandler)
		// get plans
		log.Infow("new route", "method", "GET", "path", plansEndpoint)
		r.Get(plansEndpoint, a.plansHandler)
		// get plan info
		log.Infow("new route", "method", "GET", "path", planInfoEndpoint)
		r.Get(planInfoEndpoint, a.planInfoHandler)
		// handle provider webhook
		log.Infow("new route", "method", "POST", "path", webhookEndpoint)
		r.Post(webhookEndpoint, a.webhookHandler)
	})
	a.router = r
	return r
}
