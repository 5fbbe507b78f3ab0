// Package revocation maintains the durable set of revoked credential
// subjects. Entries live in the same transactional store as licenses; the
// legacy flat-file snapshot is kept only as an export format for clients
// that still sync it.
package revocation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/keymint/keymint/internal/models"
	"github.com/keymint/keymint/internal/store"
	"github.com/rs/zerolog"
)

// ErrSubjectNotFound indicates the subject has no revocation entry.
var ErrSubjectNotFound = errors.New("revocation subject not found")

// Registry is the durable set of revoked credential subjects. The subject
// is always a customer id: a customer is assumed to hold at most one
// currently-valid credential in circulation.
type Registry struct {
	store  store.Store
	logger zerolog.Logger
}

// NewRegistry creates a Registry backed by the given store.
func NewRegistry(st store.Store, logger zerolog.Logger) *Registry {
	return &Registry{
		store:  st,
		logger: logger.With().Str("component", "revocation_registry").Logger(),
	}
}

// Add records a revocation for the subject. Adding an already-revoked
// subject is a no-op: the original entry and its timestamp are kept.
func (r *Registry) Add(ctx context.Context, subjectID uuid.UUID, reason string) error {
	entry := &models.RevocationEntry{
		SubjectID: subjectID,
		RevokedAt: time.Now().UTC(),
		Reason:    reason,
	}
	if err := r.store.AddRevocation(ctx, entry); err != nil {
		return err
	}
	r.logger.Info().
		Str("subject_id", subjectID.String()).
		Str("reason", reason).
		Msg("revocation recorded")
	return nil
}

// Remove un-revokes the subject, returning whether anything changed.
func (r *Registry) Remove(ctx context.Context, subjectID uuid.UUID) (bool, error) {
	removed, err := r.store.RemoveRevocation(ctx, subjectID)
	if err != nil {
		return false, err
	}
	if removed {
		r.logger.Info().Str("subject_id", subjectID.String()).Msg("revocation removed")
	}
	return removed, nil
}

// IsRevoked reports whether the subject has a revocation entry.
func (r *Registry) IsRevoked(ctx context.Context, subjectID uuid.UUID) (bool, error) {
	_, err := r.store.GetRevocation(ctx, subjectID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the revocation entry for the subject.
func (r *Registry) Get(ctx context.Context, subjectID uuid.UUID) (*models.RevocationEntry, error) {
	entry, err := r.store.GetRevocation(ctx, subjectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSubjectNotFound
	}
	return entry, err
}

// List returns all revocation entries.
func (r *Registry) List(ctx context.Context) ([]*models.RevocationEntry, error) {
	return r.store.ListRevocations(ctx)
}

// Count returns the number of revocation entries.
func (r *Registry) Count(ctx context.Context) (int, error) {
	return r.store.CountRevocations(ctx)
}
