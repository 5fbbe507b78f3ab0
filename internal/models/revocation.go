package models

import (
	"time"

	"github.com/google/uuid"
)

// RevocationEntry records one revoked credential subject. The subject is
// the customer id, not a license row id: a customer is assumed to hold at
// most one currently-valid credential in circulation.
type RevocationEntry struct {
	SubjectID uuid.UUID `json:"subject_id"`
	RevokedAt time.Time `json:"revoked_at"`
	Reason    string    `json:"reason"`
}
