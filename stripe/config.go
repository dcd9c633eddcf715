package stripe

import (
	"fmt"
)

// DefaultCurrency is the ISO currency code used for charges when none
// is configured.
const DefaultCurrency = "usd"

// Config holds the remote payment service configuration.
type Config struct {
	// APIKey is the secret API key.
	APIKey string
	// WebhookSecret signs webhook deliveries. When empty, signature
	// verification is skipped and payloads are only parsed.
	WebhookSecret string
	// Currency is the ISO currency code used for new charges.
	Currency string
	// DefaultPlanID is the remote product id every new customer is
	// subscribed to. Empty disables the automatic subscription.
	DefaultPlanID string
	// TrialPeriodFor optionally computes the trial days granted to a
	// subscriber when subscribed to the default plan.
	TrialPeriodFor func(subscriber string) int64
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("stripe API key is required")
	}
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	return nil
}
