// Package store persists customers, licenses, and revocation entries.
//
// Two implementations share one contract: SQLite for single-node deploys
// and Postgres for anything bigger. Revocation entries live in the same
// transactional database as licenses so that stamping a customer's licenses
// revoked and recording the revocation subject is one atomic operation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/keymint/keymint/internal/models"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail indicates a customer with the email already exists.
	ErrDuplicateEmail = errors.New("customer email already exists")
	// ErrDuplicateTransaction indicates a license was already minted for the
	// (provider, external transaction id) pair. Webhook deliveries are
	// at-least-once; callers treat this as a replay, not a failure.
	ErrDuplicateTransaction = errors.New("license transaction already processed")
)

// Store is the persistence contract consumed by the gateway, the revocation
// registry, and the verification logic.
type Store interface {
	// Customer operations
	FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	GetCustomerByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	CreateCustomer(ctx context.Context, customer *models.Customer) error

	// License operations (append-only rows)
	FindActiveLicense(ctx context.Context, customerID uuid.UUID) (*models.License, error)
	FindLicenseByTransaction(ctx context.Context, provider models.PaymentProvider, transactionID string) (*models.License, error)
	CreateLicense(ctx context.Context, license *models.License) error
	BulkRevokeLicenses(ctx context.Context, customerID uuid.UUID, revokedAt time.Time) (int64, error)

	// Revocation operations
	AddRevocation(ctx context.Context, entry *models.RevocationEntry) error
	RemoveRevocation(ctx context.Context, subjectID uuid.UUID) (bool, error)
	GetRevocation(ctx context.Context, subjectID uuid.UUID) (*models.RevocationEntry, error)
	ListRevocations(ctx context.Context) ([]*models.RevocationEntry, error)
	CountRevocations(ctx context.Context) (int, error)

	// RevokeCustomer stamps every currently-active license of the customer
	// and records the revocation entry in a single transaction. Re-running
	// for an already-revoked subject is a no-op on the registry.
	RevokeCustomer(ctx context.Context, customerID uuid.UUID, revokedAt time.Time, reason string) error

	Ping(ctx context.Context) error
	Close() error
}
