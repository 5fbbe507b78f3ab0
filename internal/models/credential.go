package models

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultOfflineTTLDays is how long a client may trust a previously
// server-verified credential without re-contacting the server.
const DefaultOfflineTTLDays = 30

// ErrInvalidCredentialEncoding indicates a credential blob could not be decoded.
var ErrInvalidCredentialEncoding = errors.New("invalid credential encoding")

// Credential is the portable signed license object handed to a client and
// later re-submitted for verification. It carries no identifier of its own:
// its revocation subject is the customer id, under the deployed assumption
// that a customer holds at most one currently-valid credential.
type Credential struct {
	Plan           Plan      `json:"plan"`
	CustomerID     uuid.UUID `json:"customer_id"`
	IssuedAt       int64     `json:"issued_at"`
	ExpiresAt      int64     `json:"expires_at"`
	OfflineTTLDays int       `json:"offline_ttl_days"`
	Signature      string    `json:"signature,omitempty"`
}

// IsExpired returns true if the credential expiry has passed at the given time.
func (c *Credential) IsExpired(now time.Time) bool {
	return now.After(time.Unix(c.ExpiresAt, 0))
}

// WithinOfflineTTL reports whether the credential may still be trusted
// offline given the time of the last successful server verification.
func (c *Credential) WithinOfflineTTL(lastVerifiedAt, now time.Time) bool {
	deadline := lastVerifiedAt.Add(time.Duration(c.OfflineTTLDays) * 24 * time.Hour)
	return now.Before(deadline)
}

// Encode serializes the credential to a base64 blob for transport.
func (c *Credential) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeCredential parses a base64-encoded credential blob. Any decoding or
// parse failure resolves to ErrInvalidCredentialEncoding.
func DecodeCredential(encoded string) (*Credential, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		// Tolerate standard encoding too; clients have shipped both.
		data, err = base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, ErrInvalidCredentialEncoding
		}
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, ErrInvalidCredentialEncoding
	}
	return &cred, nil
}
