package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/keymint/keymint/internal/models"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite for single-node persistence.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (creating if necessary) the SQLite database at path.
func NewSQLiteStore(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Serialized writes keep the unique-constraint conflict handling simple.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "sqlite_store").Logger(),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	s.logger.Info().Str("path", path).Msg("license database initialized")
	return s, nil
}

// migrate creates the necessary tables.
func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			stripe_customer_id TEXT NOT NULL DEFAULT '',
			paddle_customer_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS licenses (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL REFERENCES customers(id),
			plan TEXT NOT NULL,
			issued_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			revoked_at TEXT,
			payment_provider TEXT NOT NULL,
			external_transaction_id TEXT NOT NULL,
			credential_key TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_licenses_provider_txn
			ON licenses(payment_provider, external_transaction_id);
		CREATE INDEX IF NOT EXISTS idx_licenses_customer ON licenses(customer_id);

		CREATE TABLE IF NOT EXISTS revocations (
			subject_id TEXT PRIMARY KEY,
			revoked_at TEXT NOT NULL,
			reason TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// isUniqueViolation reports whether err is a SQLite unique constraint
// failure on the named column set.
func isUniqueViolation(err error, column string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") &&
		strings.Contains(err.Error(), column)
}

// FindCustomerByEmail returns the customer with the given email.
func (s *SQLiteStore) FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, stripe_customer_id, paddle_customer_id, created_at
		FROM customers WHERE email = ?
	`, email)
	return scanCustomer(row)
}

// GetCustomerByID returns the customer with the given id.
func (s *SQLiteStore) GetCustomerByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, stripe_customer_id, paddle_customer_id, created_at
		FROM customers WHERE id = ?
	`, id.String())
	return scanCustomer(row)
}

func scanCustomer(row *sql.Row) (*models.Customer, error) {
	var c models.Customer
	var id, createdAt string
	err := row.Scan(&id, &c.Email, &c.StripeCustomerID, &c.PaddleCustomerID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan customer: %w", err)
	}

	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse customer id: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCustomer inserts a new customer row. Returns ErrDuplicateEmail if a
// customer with the same email already exists.
func (s *SQLiteStore) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, email, stripe_customer_id, paddle_customer_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		customer.ID.String(), customer.Email,
		customer.StripeCustomerID, customer.PaddleCustomerID,
		formatTime(customer.CreatedAt),
	)
	if isUniqueViolation(err, "customers.email") {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("create customer: %w", err)
	}
	return nil
}

const licenseColumns = `id, customer_id, plan, issued_at, expires_at, revoked_at,
	payment_provider, external_transaction_id, credential_key, created_at`

// FindActiveLicense returns the most recently created non-revoked license
// for the customer, or ErrNotFound.
func (s *SQLiteStore) FindActiveLicense(ctx context.Context, customerID uuid.UUID) (*models.License, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+licenseColumns+`
		FROM licenses
		WHERE customer_id = ? AND revoked_at IS NULL
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, customerID.String())
	return scanLicense(row)
}

// FindLicenseByTransaction returns the license minted for a provider
// transaction, or ErrNotFound. Used to deduplicate webhook replays.
func (s *SQLiteStore) FindLicenseByTransaction(ctx context.Context, provider models.PaymentProvider, transactionID string) (*models.License, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+licenseColumns+`
		FROM licenses
		WHERE payment_provider = ? AND external_transaction_id = ?
	`, string(provider), transactionID)
	return scanLicense(row)
}

func scanLicense(row *sql.Row) (*models.License, error) {
	var l models.License
	var id, customerID, plan, provider, issuedAt, expiresAt, createdAt string
	var revokedAt sql.NullString

	err := row.Scan(&id, &customerID, &plan, &issuedAt, &expiresAt, &revokedAt,
		&provider, &l.ExternalTransactionID, &l.CredentialKey, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan license: %w", err)
	}

	if l.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse license id: %w", err)
	}
	if l.CustomerID, err = uuid.Parse(customerID); err != nil {
		return nil, fmt.Errorf("parse license customer id: %w", err)
	}
	l.Plan = models.Plan(plan)
	l.PaymentProvider = models.PaymentProvider(provider)

	if l.IssuedAt, err = parseTime(issuedAt); err != nil {
		return nil, err
	}
	if l.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		t, err := parseTime(revokedAt.String)
		if err != nil {
			return nil, err
		}
		l.RevokedAt = &t
	}
	return &l, nil
}

// CreateLicense appends a new license row. Returns ErrDuplicateTransaction
// if the (provider, external transaction id) pair was already used.
func (s *SQLiteStore) CreateLicense(ctx context.Context, license *models.License) error {
	var revokedAt any
	if license.RevokedAt != nil {
		revokedAt = formatTime(*license.RevokedAt)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO licenses (`+licenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		license.ID.String(), license.CustomerID.String(), string(license.Plan),
		formatTime(license.IssuedAt), formatTime(license.ExpiresAt), revokedAt,
		string(license.PaymentProvider), license.ExternalTransactionID,
		license.CredentialKey, formatTime(license.CreatedAt),
	)
	if isUniqueViolation(err, "licenses.payment_provider") {
		return ErrDuplicateTransaction
	}
	if err != nil {
		return fmt.Errorf("create license: %w", err)
	}
	return nil
}

// BulkRevokeLicenses stamps revoked_at on every currently non-revoked
// license of the customer and returns how many rows were updated.
func (s *SQLiteStore) BulkRevokeLicenses(ctx context.Context, customerID uuid.UUID, revokedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE licenses SET revoked_at = ?
		WHERE customer_id = ? AND revoked_at IS NULL
	`, formatTime(revokedAt), customerID.String())
	if err != nil {
		return 0, fmt.Errorf("bulk revoke licenses: %w", err)
	}
	return res.RowsAffected()
}

// AddRevocation records a revocation entry. Re-adding an already-revoked
// subject is a no-op; the original entry is kept.
func (s *SQLiteStore) AddRevocation(ctx context.Context, entry *models.RevocationEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO revocations (subject_id, revoked_at, reason)
		VALUES (?, ?, ?)
	`, entry.SubjectID.String(), formatTime(entry.RevokedAt), entry.Reason)
	if err != nil {
		return fmt.Errorf("add revocation: %w", err)
	}
	return nil
}

// RemoveRevocation deletes the revocation entry for the subject, returning
// whether anything changed.
func (s *SQLiteStore) RemoveRevocation(ctx context.Context, subjectID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM revocations WHERE subject_id = ?`, subjectID.String())
	if err != nil {
		return false, fmt.Errorf("remove revocation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove revocation: %w", err)
	}
	return n > 0, nil
}

// GetRevocation returns the revocation entry for the subject, or ErrNotFound.
func (s *SQLiteStore) GetRevocation(ctx context.Context, subjectID uuid.UUID) (*models.RevocationEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT subject_id, revoked_at, reason FROM revocations WHERE subject_id = ?
	`, subjectID.String())
	return scanRevocation(row)
}

func scanRevocation(row *sql.Row) (*models.RevocationEntry, error) {
	var e models.RevocationEntry
	var id, revokedAt string
	err := row.Scan(&id, &revokedAt, &e.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan revocation: %w", err)
	}

	if e.SubjectID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse revocation subject id: %w", err)
	}
	if e.RevokedAt, err = parseTime(revokedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListRevocations returns all revocation entries ordered by revocation time.
func (s *SQLiteStore) ListRevocations(ctx context.Context) ([]*models.RevocationEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, revoked_at, reason FROM revocations ORDER BY revoked_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list revocations: %w", err)
	}
	defer rows.Close()

	var entries []*models.RevocationEntry
	for rows.Next() {
		var e models.RevocationEntry
		var id, revokedAt string
		if err := rows.Scan(&id, &revokedAt, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan revocation: %w", err)
		}
		if e.SubjectID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse revocation subject id: %w", err)
		}
		if e.RevokedAt, err = parseTime(revokedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// CountRevocations returns the number of revocation entries.
func (s *SQLiteStore) CountRevocations(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM revocations`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count revocations: %w", err)
	}
	return n, nil
}

// RevokeCustomer stamps the customer's active licenses and records the
// revocation entry in one transaction.
func (s *SQLiteStore) RevokeCustomer(ctx context.Context, customerID uuid.UUID, revokedAt time.Time, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE licenses SET revoked_at = ?
		WHERE customer_id = ? AND revoked_at IS NULL
	`, formatTime(revokedAt), customerID.String()); err != nil {
		return fmt.Errorf("revoke licenses: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO revocations (subject_id, revoked_at, reason)
		VALUES (?, ?, ?)
	`, customerID.String(), formatTime(revokedAt), reason); err != nil {
		return fmt.Errorf("record revocation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Info().
		Str("customer_id", customerID.String()).
		Str("reason", reason).
		Msg("customer revoked")
	return nil
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// timeLayout is RFC 3339 with fixed-width nanoseconds so stored timestamps
// compare lexicographically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}
