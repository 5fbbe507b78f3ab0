// Package verify implements the server-side verification decision for
// previously issued credentials.
//
// The trust model is offline-first: the client is authoritative over plan
// and expiry using the verified credential alone. The server contributes
// only supplementary signals it can know better than the client: revocation
// status, its own clock, and policy flags. It never re-derives or echoes
// plan or expiry from its store on success.
package verify

import (
	"context"
	"time"

	"github.com/keymint/keymint/internal/credential"
	"github.com/keymint/keymint/internal/models"
	"github.com/keymint/keymint/internal/revocation"
	"github.com/rs/zerolog"
)

// Service combines signature verification with a revocation lookup and
// server policy flags into a client-facing decision.
type Service struct {
	verifier *credential.Verifier
	registry *revocation.Registry
	policy   models.PolicyFlags
	logger   zerolog.Logger
}

// NewService creates a new verification Service.
func NewService(verifier *credential.Verifier, registry *revocation.Registry, policy models.PolicyFlags, logger zerolog.Logger) *Service {
	return &Service{
		verifier: verifier,
		registry: registry,
		policy:   policy,
		logger:   logger.With().Str("component", "verify_service").Logger(),
	}
}

// Check decides on an encoded, serialized signed credential. Malformed
// input and bad signatures yield typed invalid responses; Check never
// returns an error to the caller for bad credentials.
func (s *Service) Check(ctx context.Context, encoded string) models.VerifyResponse {
	now := time.Now().UTC()

	cred, err := models.DecodeCredential(encoded)
	if err != nil {
		return models.VerifyResponse{
			Valid:      false,
			Reason:     models.ReasonInvalidFormat,
			ServerTime: now,
		}
	}

	if !s.verifier.Verify(cred) {
		return models.VerifyResponse{
			Valid:      false,
			Reason:     models.ReasonInvalidSignature,
			ServerTime: now,
		}
	}

	entry, err := s.registry.Get(ctx, cred.CustomerID)
	if err == nil {
		return models.VerifyResponse{
			Valid:            false,
			Reason:           models.ReasonRevoked,
			Revoked:          true,
			RevokedAt:        &entry.RevokedAt,
			RevocationReason: entry.Reason,
			ServerTime:       now,
		}
	}
	if err != revocation.ErrSubjectNotFound {
		// Revocation status is a supplementary signal; a transient registry
		// read failure does not invalidate a correctly signed credential.
		s.logger.Error().Err(err).
			Str("subject_id", cred.CustomerID.String()).
			Msg("revocation lookup failed")
	}

	policy := s.policy
	return models.VerifyResponse{
		Valid:       true,
		Revoked:     false,
		ServerTime:  now,
		PolicyFlags: &policy,
	}
}
