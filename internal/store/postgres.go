package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keymint/keymint/internal/models"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresConfig holds Postgres connection configuration.
type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultPostgresConfig returns a PostgresConfig with sensible defaults.
func DefaultPostgresConfig(url string) PostgresConfig {
	return PostgresConfig{
		URL:             url,
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore creates a new Postgres-backed store.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger zerolog.Logger) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	s := &PostgresStore{
		Pool:   pool,
		logger: logger.With().Str("component", "postgres_store").Logger(),
	}

	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s.logger.Info().Msg("database connection pool established")
	return s, nil
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.Pool.Close()
	s.logger.Info().Msg("database connection pool closed")
	return nil
}

// ExecTx executes a function within a database transaction.
func (s *PostgresStore) ExecTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed: %v, original error: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations returns all embedded migrations sorted by version.
func Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		content, err := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		var version int
		var name string
		if _, err := fmt.Sscanf(entry.Name(), "%d_%s", &version, &name); err != nil {
			return nil, fmt.Errorf("parse migration filename %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version: version,
			Name:    strings.TrimSuffix(entry.Name(), ".sql"),
			SQL:     string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrate runs all pending database migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	// Advisory lock prevents concurrent migrations from multiple replicas.
	const migrationLockID int64 = 5196270331
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection for migration lock: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID)
	}()

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	migrations, err := Migrations()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		var exists bool
		err := s.Pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if exists {
			continue
		}

		s.logger.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		err = s.ExecTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return fmt.Errorf("execute migration SQL: %w", err)
			}
			if _, err := tx.Exec(ctx,
				"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
				m.Version, m.Name,
			); err != nil {
				return fmt.Errorf("record migration: %w", err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// isPgUniqueViolation reports whether err is a Postgres unique violation on
// the named constraint.
func isPgUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, constraint)
}

// FindCustomerByEmail returns the customer with the given email.
func (s *PostgresStore) FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var c models.Customer
	err := s.Pool.QueryRow(ctx, `
		SELECT id, email, stripe_customer_id, paddle_customer_id, created_at
		FROM customers WHERE email = $1
	`, email).Scan(&c.ID, &c.Email, &c.StripeCustomerID, &c.PaddleCustomerID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get customer by email: %w", err)
	}
	return &c, nil
}

// GetCustomerByID returns the customer with the given id.
func (s *PostgresStore) GetCustomerByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var c models.Customer
	err := s.Pool.QueryRow(ctx, `
		SELECT id, email, stripe_customer_id, paddle_customer_id, created_at
		FROM customers WHERE id = $1
	`, id).Scan(&c.ID, &c.Email, &c.StripeCustomerID, &c.PaddleCustomerID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get customer by id: %w", err)
	}
	return &c, nil
}

// CreateCustomer inserts a new customer row.
func (s *PostgresStore) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO customers (id, email, stripe_customer_id, paddle_customer_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, customer.ID, customer.Email, customer.StripeCustomerID, customer.PaddleCustomerID, customer.CreatedAt)
	if isPgUniqueViolation(err, "customers_email") {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("create customer: %w", err)
	}
	return nil
}

const pgLicenseColumns = `id, customer_id, plan, issued_at, expires_at, revoked_at,
	payment_provider, external_transaction_id, credential_key, created_at`

func scanPgLicense(row pgx.Row) (*models.License, error) {
	var l models.License
	var plan, provider string
	err := row.Scan(&l.ID, &l.CustomerID, &plan, &l.IssuedAt, &l.ExpiresAt, &l.RevokedAt,
		&provider, &l.ExternalTransactionID, &l.CredentialKey, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan license: %w", err)
	}
	l.Plan = models.Plan(plan)
	l.PaymentProvider = models.PaymentProvider(provider)
	return &l, nil
}

// FindActiveLicense returns the most recently created non-revoked license
// for the customer, or ErrNotFound.
func (s *PostgresStore) FindActiveLicense(ctx context.Context, customerID uuid.UUID) (*models.License, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+pgLicenseColumns+`
		FROM licenses
		WHERE customer_id = $1 AND revoked_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, customerID)
	return scanPgLicense(row)
}

// FindLicenseByTransaction returns the license minted for a provider
// transaction, or ErrNotFound.
func (s *PostgresStore) FindLicenseByTransaction(ctx context.Context, provider models.PaymentProvider, transactionID string) (*models.License, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+pgLicenseColumns+`
		FROM licenses
		WHERE payment_provider = $1 AND external_transaction_id = $2
	`, string(provider), transactionID)
	return scanPgLicense(row)
}

// CreateLicense appends a new license row.
func (s *PostgresStore) CreateLicense(ctx context.Context, license *models.License) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO licenses (`+pgLicenseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		license.ID, license.CustomerID, string(license.Plan),
		license.IssuedAt, license.ExpiresAt, license.RevokedAt,
		string(license.PaymentProvider), license.ExternalTransactionID,
		license.CredentialKey, license.CreatedAt,
	)
	if isPgUniqueViolation(err, "idx_licenses_provider_txn") {
		return ErrDuplicateTransaction
	}
	if err != nil {
		return fmt.Errorf("create license: %w", err)
	}
	return nil
}

// BulkRevokeLicenses stamps revoked_at on every currently non-revoked
// license of the customer.
func (s *PostgresStore) BulkRevokeLicenses(ctx context.Context, customerID uuid.UUID, revokedAt time.Time) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE licenses SET revoked_at = $1
		WHERE customer_id = $2 AND revoked_at IS NULL
	`, revokedAt, customerID)
	if err != nil {
		return 0, fmt.Errorf("bulk revoke licenses: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AddRevocation records a revocation entry, keeping the original on replay.
func (s *PostgresStore) AddRevocation(ctx context.Context, entry *models.RevocationEntry) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO revocations (subject_id, revoked_at, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject_id) DO NOTHING
	`, entry.SubjectID, entry.RevokedAt, entry.Reason)
	if err != nil {
		return fmt.Errorf("add revocation: %w", err)
	}
	return nil
}

// RemoveRevocation deletes the revocation entry for the subject.
func (s *PostgresStore) RemoveRevocation(ctx context.Context, subjectID uuid.UUID) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`DELETE FROM revocations WHERE subject_id = $1`, subjectID)
	if err != nil {
		return false, fmt.Errorf("remove revocation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetRevocation returns the revocation entry for the subject, or ErrNotFound.
func (s *PostgresStore) GetRevocation(ctx context.Context, subjectID uuid.UUID) (*models.RevocationEntry, error) {
	var e models.RevocationEntry
	err := s.Pool.QueryRow(ctx, `
		SELECT subject_id, revoked_at, reason FROM revocations WHERE subject_id = $1
	`, subjectID).Scan(&e.SubjectID, &e.RevokedAt, &e.Reason)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get revocation: %w", err)
	}
	return &e, nil
}

// ListRevocations returns all revocation entries ordered by revocation time.
func (s *PostgresStore) ListRevocations(ctx context.Context) ([]*models.RevocationEntry, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT subject_id, revoked_at, reason FROM revocations ORDER BY revoked_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list revocations: %w", err)
	}
	defer rows.Close()

	var entries []*models.RevocationEntry
	for rows.Next() {
		var e models.RevocationEntry
		if err := rows.Scan(&e.SubjectID, &e.RevokedAt, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan revocation: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// CountRevocations returns the number of revocation entries.
func (s *PostgresStore) CountRevocations(ctx context.Context) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM revocations`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count revocations: %w", err)
	}
	return n, nil
}

// RevokeCustomer stamps the customer's active licenses and records the
// revocation entry in one transaction.
func (s *PostgresStore) RevokeCustomer(ctx context.Context, customerID uuid.UUID, revokedAt time.Time, reason string) error {
	err := s.ExecTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE licenses SET revoked_at = $1
			WHERE customer_id = $2 AND revoked_at IS NULL
		`, revokedAt, customerID); err != nil {
			return fmt.Errorf("revoke licenses: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO revocations (subject_id, revoked_at, reason)
			VALUES ($1, $2, $3)
			ON CONFLICT (subject_id) DO NOTHING
		`, customerID, revokedAt, reason); err != nil {
			return fmt.Errorf("record revocation: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("customer_id", customerID.String()).
		Str("reason", reason).
		Msg("customer revoked")
	return nil
}
