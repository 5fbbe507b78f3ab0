// Package credential signs and verifies portable license credentials.
//
// The signature covers a canonical serialization of the payload: compact
// JSON with object keys sorted lexicographically, independent of the field
// order the payload was constructed with. Reimplementations must reproduce
// this byte-for-bit, otherwise credentials signed here will not verify
// elsewhere.
package credential

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/keymint/keymint/internal/models"
)

// canonicalPayload renders the signable portion of a credential as compact
// JSON with lexicographically sorted keys. encoding/json sorts map keys,
// which gives both properties without a hand-rolled serializer.
func canonicalPayload(cred *models.Credential) ([]byte, error) {
	fields := map[string]any{
		"plan":             cred.Plan,
		"customer_id":      cred.CustomerID,
		"issued_at":        cred.IssuedAt,
		"expires_at":       cred.ExpiresAt,
		"offline_ttl_days": cred.OfflineTTLDays,
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal canonical payload: %w", err)
	}
	return data, nil
}

// Signer signs license credentials with an Ed25519 private key.
type Signer struct {
	privateKey ed25519.PrivateKey
}

// NewSigner creates a new credential signer with the given private key.
func NewSigner(privateKey ed25519.PrivateKey) (*Signer, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, ErrInvalidPrivateKey
	}
	return &Signer{privateKey: privateKey}, nil
}

// NewSignerFromBase64 creates a signer from a base64-encoded private key.
func NewSignerFromBase64(encodedKey string) (*Signer, error) {
	privateKey, err := PrivateKeyFromBase64(encodedKey)
	if err != nil {
		return nil, err
	}
	return NewSigner(privateKey)
}

// Sign computes the canonical payload signature and stores it on the
// credential. IssuedAt is filled with the current time if unset.
func (s *Signer) Sign(cred *models.Credential) error {
	if cred.IssuedAt == 0 {
		cred.IssuedAt = time.Now().Unix()
	}
	if cred.OfflineTTLDays == 0 {
		cred.OfflineTTLDays = models.DefaultOfflineTTLDays
	}

	message, err := canonicalPayload(cred)
	if err != nil {
		return err
	}

	signature := ed25519.Sign(s.privateKey, message)
	cred.Signature = base64.RawURLEncoding.EncodeToString(signature)
	return nil
}

// Verifier verifies credential signatures with an Ed25519 public key.
type Verifier struct {
	publicKey ed25519.PublicKey
}

// NewVerifier creates a new credential verifier with the given public key.
func NewVerifier(publicKey ed25519.PublicKey) (*Verifier, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	return &Verifier{publicKey: publicKey}, nil
}

// NewVerifierFromBase64 creates a verifier from a base64-encoded public key.
func NewVerifierFromBase64(encodedKey string) (*Verifier, error) {
	publicKey, err := PublicKeyFromBase64(encodedKey)
	if err != nil {
		return nil, err
	}
	return NewVerifier(publicKey)
}

// Verify recomputes the canonical message from every field except the
// signature and checks it against the public key. Malformed base64 or any
// cryptographic mismatch resolves to false; Verify never returns an error.
func (v *Verifier) Verify(cred *models.Credential) bool {
	if cred == nil || cred.Signature == "" {
		return false
	}

	signature, err := base64.RawURLEncoding.DecodeString(cred.Signature)
	if err != nil {
		return false
	}

	message, err := canonicalPayload(cred)
	if err != nil {
		return false
	}

	return ed25519.Verify(v.publicKey, message, signature)
}
