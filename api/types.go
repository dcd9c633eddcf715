package api

import (
	"time"
)

// LoginRequest is the payload to authenticate an API client.
type LoginRequest struct {
	ClientID string `json:"clientID"`
	Secret   string `json:"secret"`
}

// LoginResponse is the response of the login and refresh endpoints.
type LoginResponse struct {
	Token    string    `json:"token"`
	Expirity time.Time `json:"expirity"`
}

// CreateCustomerRequest is the payload to create a remote customer and
// its local mirror.
type CreateCustomerRequest struct {
	Subscriber string `json:"subscriber"`
	Email      string `json:"email"`
	CardToken  string `json:"cardToken"`
}

// CreateChargeRequest is the payload to create a charge. The amount is a
// decimal string in major units (e.g. "10.50").
type CreateChargeRequest struct {
	CustomerID  string `json:"customerID"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// RefundChargeRequest is the payload to refund a charge. An empty amount
// refunds the charge in full.
type RefundChargeRequest struct {
	Amount string `json:"amount"`
}
