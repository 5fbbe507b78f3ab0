// Package auth validates operator API keys.
//
// The check is local and advisory: a single configured key, matched by
// shape and SHA-256 hash, with no backing key registry. This is acceptable
// for a single-operator deployment and explicitly insufficient for
// multi-tenant key management.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// OperatorKeyPrefix is the prefix for all Keymint operator keys.
	OperatorKeyPrefix = "kmt_"
	// OperatorKeyLength is the expected length of the hex portion of the key.
	OperatorKeyLength = 64 // 32 bytes = 64 hex chars
)

// GenerateOperatorKey creates a new random operator key.
func GenerateOperatorKey() (string, error) {
	raw := make([]byte, OperatorKeyLength/2)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate operator key: %w", err)
	}
	return OperatorKeyPrefix + hex.EncodeToString(raw), nil
}

// IsValidOperatorKeyFormat checks if the key has the correct shape.
func IsValidOperatorKeyFormat(key string) bool {
	if !strings.HasPrefix(key, OperatorKeyPrefix) {
		return false
	}
	hexPart := strings.TrimPrefix(key, OperatorKeyPrefix)
	if len(hexPart) != OperatorKeyLength {
		return false
	}
	_, err := hex.DecodeString(hexPart)
	return err == nil
}

// HashOperatorKey creates a SHA-256 hash of an operator key for
// storage/comparison.
func HashOperatorKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// OperatorKeyValidator validates presented keys against one configured key
// hash.
type OperatorKeyValidator struct {
	keyHash string
}

// NewOperatorKeyValidator creates a validator for the given key hash.
func NewOperatorKeyValidator(keyHash string) *OperatorKeyValidator {
	return &OperatorKeyValidator{keyHash: keyHash}
}

// Validate reports whether the presented key matches the configured key.
func (v *OperatorKeyValidator) Validate(key string) bool {
	if v.keyHash == "" || !IsValidOperatorKeyFormat(key) {
		return false
	}
	presented := HashOperatorKey(key)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(v.keyHash)) == 1
}
