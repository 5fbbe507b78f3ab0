// Package config provides configuration management for Keymint.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/keymint/keymint/internal/auth"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// ServerConfig holds server-level configuration loaded from environment
// variables.
type ServerConfig struct {
	Environment Environment
	Port        string

	// DatabaseURL selects the Postgres store when set; otherwise the
	// SQLite store at SQLitePath is used.
	DatabaseURL string
	SQLitePath  string

	// SigningKey is the base64 Ed25519 private key used for issuance.
	// Verification-only deployments may leave it empty and set PublicKey.
	SigningKey string
	PublicKey  string

	// OperatorKeyHash is the SHA-256 hex hash of the configured operator
	// key. OPERATOR_KEY may carry the raw key instead, hashed at load.
	OperatorKeyHash string

	// SnapshotPath is where the revocation snapshot file is exported.
	// Empty disables the export job.
	SnapshotPath            string
	SnapshotIntervalMinutes int

	// VerifyRateLimit bounds requests per minute on the public verify
	// endpoint.
	VerifyRateLimit int64

	PolicyFile string
}

// LoadServerConfig reads server configuration from environment variables.
func LoadServerConfig() (ServerConfig, error) {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	cfg := ServerConfig{
		Environment:             env,
		Port:                    getEnvStr("PORT", "8080"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		SQLitePath:              getEnvStr("SQLITE_PATH", "keymint.db"),
		SigningKey:              os.Getenv("LICENSE_SIGNING_KEY"),
		PublicKey:               os.Getenv("LICENSE_PUBLIC_KEY"),
		SnapshotPath:            os.Getenv("REVOCATION_SNAPSHOT_PATH"),
		SnapshotIntervalMinutes: getEnvInt("REVOCATION_SNAPSHOT_INTERVAL_MINUTES", 5),
		VerifyRateLimit:         int64(getEnvInt("VERIFY_RATE_LIMIT", 120)),
		PolicyFile:              os.Getenv("POLICY_FILE"),
	}

	if rawKey := os.Getenv("OPERATOR_KEY"); rawKey != "" {
		if !auth.IsValidOperatorKeyFormat(rawKey) {
			return cfg, fmt.Errorf("OPERATOR_KEY does not match expected %sXXXX shape", auth.OperatorKeyPrefix)
		}
		cfg.OperatorKeyHash = auth.HashOperatorKey(rawKey)
	} else {
		cfg.OperatorKeyHash = os.Getenv("OPERATOR_KEY_HASH")
	}

	if cfg.SnapshotIntervalMinutes < 1 {
		cfg.SnapshotIntervalMinutes = 5
	}

	return cfg, nil
}

// getEnvStr reads a string from an environment variable, returning the
// default if unset.
func getEnvStr(key, defaultVal string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt reads an integer from an environment variable, returning the
// default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvBool reads a boolean from an environment variable, returning the
// default if unset or invalid.
func getEnvBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
}
