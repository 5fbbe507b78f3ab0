package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer represents a customer who purchases licenses.
// A customer is identified by email: the store guarantees at most one
// customer row per email address.
type Customer struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	StripeCustomerID string    `json:"stripe_customer_id,omitempty"`
	PaddleCustomerID string    `json:"paddle_customer_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewCustomer creates a new Customer with the given email.
func NewCustomer(email string) *Customer {
	return &Customer{
		ID:        uuid.New(),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
}

// SetProviderID records the provider-specific external customer id.
func (c *Customer) SetProviderID(provider PaymentProvider, externalID string) {
	switch provider {
	case ProviderStripe:
		c.StripeCustomerID = externalID
	case ProviderPaddle:
		c.PaddleCustomerID = externalID
	}
}
