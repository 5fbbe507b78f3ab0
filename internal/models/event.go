package models

import "time"

// PaymentProvider identifies the billing provider an event came from.
type PaymentProvider string

const (
	// ProviderStripe is the Stripe billing provider.
	ProviderStripe PaymentProvider = "stripe"
	// ProviderPaddle is the Paddle billing provider.
	ProviderPaddle PaymentProvider = "paddle"
	// ProviderOperator marks licenses issued directly by an operator
	// rather than minted from a billing event.
	ProviderOperator PaymentProvider = "operator"
)

// IsValid checks if the provider is a recognized value.
func (p PaymentProvider) IsValid() bool {
	return p == ProviderStripe || p == ProviderPaddle
}

// EventType is the normalized billing lifecycle event type.
type EventType string

const (
	// EventCheckoutCompleted signals a completed first purchase.
	EventCheckoutCompleted EventType = "checkout_completed"
	// EventSubscriptionUpdated signals a plan change on an existing subscription.
	EventSubscriptionUpdated EventType = "subscription_updated"
	// EventSubscriptionCancelled signals a terminal cancellation.
	EventSubscriptionCancelled EventType = "subscription_cancelled"
	// EventPaymentFailed signals a failed charge. The provider retries and
	// eventually emits subscription_cancelled, so this never mutates state.
	EventPaymentFailed EventType = "payment_failed"
)

// PaymentEvent is the provider-agnostic billing event consumed by the
// gateway. Provider-specific webhook parsing and signature verification
// happen in the collaborator layer that constructs this value.
type PaymentEvent struct {
	Provider              PaymentProvider   `json:"provider"`
	Type                  EventType         `json:"eventType"`
	Email                 string            `json:"email"`
	Plan                  Plan              `json:"plan"`
	ExternalCustomerID    string            `json:"externalCustomerId"`
	ExternalTransactionID string            `json:"externalTransactionId"`
	ExpiresAt             *time.Time        `json:"expiresAt,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
}

// EventResult is the uniform outcome of processing a payment event.
type EventResult struct {
	Success    bool   `json:"success"`
	CustomerID string `json:"customerId,omitempty"`
	LicenseID  string `json:"licenseId,omitempty"`
	Error      string `json:"error,omitempty"`
}
