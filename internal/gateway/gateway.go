// Package gateway reconciles normalized billing events into license state
// transitions. It is the sole writer of customer and license rows: every
// event is handled under a per-customer lock, converted into store and
// registry mutations, and answered with a uniform result. The gateway never
// lets a fault escape for a single malformed or unexpected event.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/keymint/keymint/internal/credential"
	"github.com/keymint/keymint/internal/models"
	"github.com/keymint/keymint/internal/store"
	"github.com/rs/zerolog"
)

const (
	// DefaultLicenseDuration is applied when an event carries no expiry.
	DefaultLicenseDuration = 365 * 24 * time.Hour
)

// ErrCustomerNotFound is returned when a lifecycle event references an
// email with no customer row.
var ErrCustomerNotFound = errors.New("Customer not found")

// Gateway orchestrates the store and credential signer to realize billing
// event semantics. Revocation entries are written through the store so that
// stamping licenses and recording the registry entry stay one transaction.
type Gateway struct {
	store  store.Store
	signer *credential.Signer
	logger zerolog.Logger
	locks  *keyedMutex
}

// New creates a new Gateway.
func New(st store.Store, signer *credential.Signer, logger zerolog.Logger) *Gateway {
	return &Gateway{
		store:  st,
		signer: signer,
		logger: logger.With().Str("component", "gateway").Logger(),
		locks:  newKeyedMutex(),
	}
}

// Process dispatches a normalized payment event and returns a uniform
// result. Internal failures are converted into a failure result; Process
// never panics or returns an error past this boundary.
func (g *Gateway) Process(ctx context.Context, event *models.PaymentEvent) (result models.EventResult) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error().
				Interface("panic", r).
				Str("event_type", string(event.Type)).
				Msg("recovered from panic while processing event")
			result = failure(fmt.Sprintf("internal error: %v", r))
		}
	}()

	if event.Email == "" {
		return failure("missing event email")
	}

	unlock := g.locks.Lock(event.Email)
	defer unlock()

	switch event.Type {
	case models.EventCheckoutCompleted:
		return g.handleCheckout(ctx, event)
	case models.EventSubscriptionUpdated:
		return g.handleUpdate(ctx, event)
	case models.EventSubscriptionCancelled:
		return g.handleCancellation(ctx, event)
	case models.EventPaymentFailed:
		return g.handlePaymentFailure(event)
	default:
		return failure(fmt.Sprintf("unknown event type: %s", event.Type))
	}
}

// handleCheckout realizes a completed first purchase: find-or-create the
// customer, mint a signed credential, and persist a new license row.
func (g *Gateway) handleCheckout(ctx context.Context, event *models.PaymentEvent) models.EventResult {
	if !event.Plan.IsValid() {
		return failure(fmt.Sprintf("invalid plan: %s", event.Plan))
	}

	// Webhook deliveries are at-least-once; a transaction already turned
	// into a license is a replay, answered with the original ids.
	if existing, err := g.store.FindLicenseByTransaction(ctx, event.Provider, event.ExternalTransactionID); err == nil {
		return models.EventResult{
			Success:    true,
			CustomerID: existing.CustomerID.String(),
			LicenseID:  existing.ID.String(),
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return failure(err.Error())
	}

	customer, err := g.findOrCreateCustomer(ctx, event)
	if err != nil {
		return failure(err.Error())
	}

	license, err := g.mintLicense(ctx, customer, event)
	if err != nil {
		return failure(err.Error())
	}

	return models.EventResult{
		Success:    true,
		CustomerID: customer.ID.String(),
		LicenseID:  license.ID.String(),
	}
}

// handleUpdate realizes a plan change. An update to the plan the customer
// already holds is acknowledged without any mutation.
func (g *Gateway) handleUpdate(ctx context.Context, event *models.PaymentEvent) models.EventResult {
	if !event.Plan.IsValid() {
		return failure(fmt.Sprintf("invalid plan: %s", event.Plan))
	}

	customer, err := g.store.FindCustomerByEmail(ctx, event.Email)
	if errors.Is(err, store.ErrNotFound) {
		return failure(ErrCustomerNotFound.Error())
	}
	if err != nil {
		return failure(err.Error())
	}

	active, err := g.store.FindActiveLicense(ctx, customer.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return failure(err.Error())
	}

	if active != nil && active.Plan == event.Plan {
		// Same plan, nothing to mint.
		return models.EventResult{
			Success:    true,
			CustomerID: customer.ID.String(),
		}
	}

	if existing, err := g.store.FindLicenseByTransaction(ctx, event.Provider, event.ExternalTransactionID); err == nil {
		return models.EventResult{
			Success:    true,
			CustomerID: existing.CustomerID.String(),
			LicenseID:  existing.ID.String(),
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return failure(err.Error())
	}

	license, err := g.mintLicense(ctx, customer, event)
	if err != nil {
		return failure(err.Error())
	}

	return models.EventResult{
		Success:    true,
		CustomerID: customer.ID.String(),
		LicenseID:  license.ID.String(),
	}
}

// handleCancellation stamps every active license of the customer revoked
// and records one registry entry for the subject, atomically. Replays are
// harmless: the registry keeps the original entry and the bulk update
// finds no rows left to stamp.
func (g *Gateway) handleCancellation(ctx context.Context, event *models.PaymentEvent) models.EventResult {
	customer, err := g.store.FindCustomerByEmail(ctx, event.Email)
	if errors.Is(err, store.ErrNotFound) {
		return failure(ErrCustomerNotFound.Error())
	}
	if err != nil {
		return failure(err.Error())
	}

	reason := fmt.Sprintf("subscription_cancelled via %s", event.Provider)
	if err := g.store.RevokeCustomer(ctx, customer.ID, time.Now().UTC(), reason); err != nil {
		return failure(err.Error())
	}

	return models.EventResult{
		Success:    true,
		CustomerID: customer.ID.String(),
	}
}

// handlePaymentFailure is a pure log/no-op: the provider retries the charge
// and eventually emits subscription_cancelled after exhausting retries.
func (g *Gateway) handlePaymentFailure(event *models.PaymentEvent) models.EventResult {
	g.logger.Warn().
		Str("provider", string(event.Provider)).
		Str("email", event.Email).
		Str("transaction_id", event.ExternalTransactionID).
		Msg("payment failed, awaiting provider retries")
	return models.EventResult{Success: true}
}

// findOrCreateCustomer resolves the event email to a customer row, creating
// one if necessary. A concurrent insert for the same email loses the unique
// constraint race and re-reads the winner's row.
func (g *Gateway) findOrCreateCustomer(ctx context.Context, event *models.PaymentEvent) (*models.Customer, error) {
	customer, err := g.store.FindCustomerByEmail(ctx, event.Email)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	customer = models.NewCustomer(event.Email)
	customer.SetProviderID(event.Provider, event.ExternalCustomerID)

	err = g.store.CreateCustomer(ctx, customer)
	if errors.Is(err, store.ErrDuplicateEmail) {
		return g.store.FindCustomerByEmail(ctx, event.Email)
	}
	if err != nil {
		return nil, err
	}

	g.logger.Info().
		Str("customer_id", customer.ID.String()).
		Str("provider", string(event.Provider)).
		Msg("customer created")
	return customer, nil
}

// mintLicense builds and signs a credential for the event and persists the
// matching license row.
func (g *Gateway) mintLicense(ctx context.Context, customer *models.Customer, event *models.PaymentEvent) (*models.License, error) {
	license, err := g.issue(ctx, customer, event.Plan, event.Provider, event.ExternalTransactionID, event.ExpiresAt)
	if errors.Is(err, store.ErrDuplicateTransaction) {
		return g.store.FindLicenseByTransaction(ctx, event.Provider, event.ExternalTransactionID)
	}
	return license, err
}

// IssueOperator mints a credential and license row outside the billing
// flow, for the authenticated operator-only issuance path.
func (g *Gateway) IssueOperator(ctx context.Context, email string, plan models.Plan, expiresAt *time.Time) (*models.License, *models.Credential, error) {
	unlock := g.locks.Lock(email)
	defer unlock()

	customer, err := g.findOrCreateCustomer(ctx, &models.PaymentEvent{Email: email})
	if err != nil {
		return nil, nil, err
	}

	transactionID := "op_" + uuid.NewString()
	license, err := g.issue(ctx, customer, plan, models.ProviderOperator, transactionID, expiresAt)
	if err != nil {
		return nil, nil, err
	}

	cred, err := models.DecodeCredential(license.CredentialKey)
	if err != nil {
		return nil, nil, err
	}
	return license, cred, nil
}

// issue builds the signed credential and persists the license row.
func (g *Gateway) issue(ctx context.Context, customer *models.Customer, plan models.Plan, provider models.PaymentProvider, transactionID string, eventExpiresAt *time.Time) (*models.License, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(DefaultLicenseDuration)
	if eventExpiresAt != nil {
		expiresAt = eventExpiresAt.UTC()
	}

	cred := &models.Credential{
		Plan:           plan,
		CustomerID:     customer.ID,
		IssuedAt:       now.Unix(),
		ExpiresAt:      expiresAt.Unix(),
		OfflineTTLDays: models.DefaultOfflineTTLDays,
	}
	if err := g.signer.Sign(cred); err != nil {
		return nil, fmt.Errorf("sign credential: %w", err)
	}

	key, err := cred.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode credential: %w", err)
	}

	license := &models.License{
		ID:                    uuid.New(),
		CustomerID:            customer.ID,
		Plan:                  plan,
		IssuedAt:              now,
		ExpiresAt:             expiresAt,
		PaymentProvider:       provider,
		ExternalTransactionID: transactionID,
		CredentialKey:         key,
		CreatedAt:             now,
	}

	if err := g.store.CreateLicense(ctx, license); err != nil {
		return nil, err
	}

	g.logger.Info().
		Str("license_id", license.ID.String()).
		Str("customer_id", customer.ID.String()).
		Str("plan", string(plan)).
		Time("expires_at", expiresAt).
		Msg("license issued")
	return license, nil
}

func failure(msg string) models.EventResult {
	return models.EventResult{Success: false, Error: msg}
}
