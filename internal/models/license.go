package models

import (
	"time"

	"github.com/google/uuid"
)

// License represents one issued license row. Rows are append-only: a plan
// change inserts a new row, and revocation stamps RevokedAt rather than
// deleting anything. The active license for a customer is the most recently
// created row with RevokedAt unset.
type License struct {
	ID                    uuid.UUID       `json:"id"`
	CustomerID            uuid.UUID       `json:"customer_id"`
	Plan                  Plan            `json:"plan"`
	IssuedAt              time.Time       `json:"issued_at"`
	ExpiresAt             time.Time       `json:"expires_at"`
	RevokedAt             *time.Time      `json:"revoked_at,omitempty"`
	PaymentProvider       PaymentProvider `json:"payment_provider"`
	ExternalTransactionID string          `json:"external_transaction_id"`
	CredentialKey         string          `json:"credential_key"`
	CreatedAt             time.Time       `json:"created_at"`
}

// IsActive returns true if the license has not been revoked.
func (l *License) IsActive() bool {
	return l.RevokedAt == nil
}

// IsExpired returns true if the license expiry has passed.
func (l *License) IsExpired() bool {
	return time.Now().After(l.ExpiresAt)
}
