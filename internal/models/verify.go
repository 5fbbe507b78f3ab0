package models

import "time"

// VerifyReason explains why a credential failed verification.
type VerifyReason string

const (
	// ReasonInvalidFormat means the credential could not be decoded.
	ReasonInvalidFormat VerifyReason = "INVALID_FORMAT"
	// ReasonInvalidSignature means the signature did not verify.
	ReasonInvalidSignature VerifyReason = "INVALID_SIGNATURE"
	// ReasonRevoked means the credential's subject is in the revocation registry.
	ReasonRevoked VerifyReason = "REVOKED"
)

// PolicyFlags are server policy signals returned on successful verification.
type PolicyFlags struct {
	MinimumVersion  string   `json:"minimum_version"`
	FeaturesEnabled []string `json:"features_enabled"`
	MaintenanceMode bool     `json:"maintenance_mode"`
}

// VerifyResponse is the client-facing verification decision. On success the
// server returns only supplementary signals: the client already holds plan
// and expiry inside the verified credential and is authoritative over them.
type VerifyResponse struct {
	Valid            bool         `json:"valid"`
	Reason           VerifyReason `json:"reason,omitempty"`
	Revoked          bool         `json:"revoked"`
	RevokedAt        *time.Time   `json:"revoked_at,omitempty"`
	RevocationReason string       `json:"revocation_reason,omitempty"`
	ServerTime       time.Time    `json:"server_time"`
	PolicyFlags      *PolicyFlags `json:"policy_flags,omitempty"`
}
