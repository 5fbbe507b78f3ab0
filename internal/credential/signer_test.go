package credential

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/keymint/keymint/internal/models"
)

func newTestKeyPair(t *testing.T) *KeyPair {
	t.Helper()
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error: %v", err)
	}
	return kp
}

func newTestCredential() *models.Credential {
	return &models.Credential{
		Plan:           models.PlanPro,
		CustomerID:     uuid.New(),
		IssuedAt:       time.Now().Unix(),
		ExpiresAt:      time.Now().AddDate(1, 0, 0).Unix(),
		OfflineTTLDays: 30,
	}
}

func TestSignAndVerify(t *testing.T) {
	kp := newTestKeyPair(t)
	signer, err := NewSigner(kp.PrivateKey)
	if err != nil {
		t.Fatalf("NewSigner() error: %v", err)
	}
	verifier, err := NewVerifier(kp.PublicKey)
	if err != nil {
		t.Fatalf("NewVerifier() error: %v", err)
	}

	cred := newTestCredential()
	if err := signer.Sign(cred); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if cred.Signature == "" {
		t.Fatal("Sign() left signature empty")
	}

	if !verifier.Verify(cred) {
		t.Error("Verify() = false for freshly signed credential")
	}
}

func TestVerify_TamperedFields(t *testing.T) {
	kp := newTestKeyPair(t)
	signer, _ := NewSigner(kp.PrivateKey)
	verifier, _ := NewVerifier(kp.PublicKey)

	tests := []struct {
		name   string
		tamper func(c *models.Credential)
	}{
		{"tampered plan", func(c *models.Credential) { c.Plan = models.PlanFree }},
		{"tampered customer id", func(c *models.Credential) { c.CustomerID = uuid.New() }},
		{"tampered expiry", func(c *models.Credential) { c.ExpiresAt += 86400 }},
		{"tampered issued at", func(c *models.Credential) { c.IssuedAt -= 60 }},
		{"tampered offline ttl", func(c *models.Credential) { c.OfflineTTLDays = 3650 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred := newTestCredential()
			if err := signer.Sign(cred); err != nil {
				t.Fatalf("Sign() error: %v", err)
			}
			tt.tamper(cred)
			if verifier.Verify(cred) {
				t.Error("Verify() = true for tampered credential")
			}
		})
	}
}

func TestVerify_BadSignatures(t *testing.T) {
	kp := newTestKeyPair(t)
	signer, _ := NewSigner(kp.PrivateKey)
	verifier, _ := NewVerifier(kp.PublicKey)

	signed := newTestCredential()
	if err := signer.Sign(signed); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	tests := []struct {
		name      string
		signature string
	}{
		{"empty signature", ""},
		{"malformed base64", "!!!not-base64!!!"},
		{"truncated signature", signed.Signature[:len(signed.Signature)/2]},
		{"garbage bytes", base64.RawURLEncoding.EncodeToString([]byte("garbage"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred := *signed
			cred.Signature = tt.signature
			if verifier.Verify(&cred) {
				t.Error("Verify() = true for bad signature")
			}
		})
	}

	if verifier.Verify(nil) {
		t.Error("Verify(nil) = true")
	}
}

func TestVerify_WrongKeyPair(t *testing.T) {
	kp := newTestKeyPair(t)
	otherKP := newTestKeyPair(t)

	signer, _ := NewSigner(kp.PrivateKey)
	wrongVerifier, _ := NewVerifier(otherKP.PublicKey)

	cred := newTestCredential()
	if err := signer.Sign(cred); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	if wrongVerifier.Verify(cred) {
		t.Error("Verify() = true with wrong public key")
	}
}

func TestCanonicalPayload_KeyOrder(t *testing.T) {
	id := uuid.MustParse("7a9f52a5-06aa-4d7e-bd91-52f0a65f7a10")
	cred := &models.Credential{
		Plan:           models.PlanPro,
		CustomerID:     id,
		IssuedAt:       1700000000,
		ExpiresAt:      1731536000,
		OfflineTTLDays: 30,
	}

	got, err := canonicalPayload(cred)
	if err != nil {
		t.Fatalf("canonicalPayload() error: %v", err)
	}

	want := fmt.Sprintf(
		`{"customer_id":%q,"expires_at":1731536000,"issued_at":1700000000,"offline_ttl_days":30,"plan":"PRO"}`,
		id,
	)
	if string(got) != want {
		t.Errorf("canonicalPayload() = %s, want %s", got, want)
	}
}

func TestSign_OrderIndependent(t *testing.T) {
	// Two logically equal payloads constructed from permuted JSON field
	// order must canonicalize identically. Ed25519 signatures are
	// deterministic, so equal signatures prove equal pre-signature bytes.
	kp := newTestKeyPair(t)
	signer, _ := NewSigner(kp.PrivateKey)

	id := uuid.New()
	docA := fmt.Sprintf(`{"plan":"PRO","customer_id":%q,"issued_at":1700000000,"expires_at":1731536000,"offline_ttl_days":30}`, id)
	docB := fmt.Sprintf(`{"offline_ttl_days":30,"expires_at":1731536000,"plan":"PRO","issued_at":1700000000,"customer_id":%q}`, id)

	var credA, credB models.Credential
	if err := json.Unmarshal([]byte(docA), &credA); err != nil {
		t.Fatalf("unmarshal docA: %v", err)
	}
	if err := json.Unmarshal([]byte(docB), &credB); err != nil {
		t.Fatalf("unmarshal docB: %v", err)
	}

	if err := signer.Sign(&credA); err != nil {
		t.Fatalf("Sign(credA) error: %v", err)
	}
	if err := signer.Sign(&credB); err != nil {
		t.Fatalf("Sign(credB) error: %v", err)
	}

	if credA.Signature != credB.Signature {
		t.Errorf("signatures differ for logically equal payloads: %s vs %s", credA.Signature, credB.Signature)
	}
}

func TestSign_FillsDefaults(t *testing.T) {
	kp := newTestKeyPair(t)
	signer, _ := NewSigner(kp.PrivateKey)

	cred := &models.Credential{
		Plan:       models.PlanFree,
		CustomerID: uuid.New(),
		ExpiresAt:  time.Now().AddDate(1, 0, 0).Unix(),
	}
	if err := signer.Sign(cred); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	if cred.IssuedAt == 0 {
		t.Error("Sign() did not fill IssuedAt")
	}
	if cred.OfflineTTLDays != models.DefaultOfflineTTLDays {
		t.Errorf("Sign() OfflineTTLDays = %d, want %d", cred.OfflineTTLDays, models.DefaultOfflineTTLDays)
	}
}

func TestEncodeDecodeCredential(t *testing.T) {
	kp := newTestKeyPair(t)
	signer, _ := NewSigner(kp.PrivateKey)
	verifier, _ := NewVerifier(kp.PublicKey)

	cred := newTestCredential()
	if err := signer.Sign(cred); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	encoded, err := cred.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	decoded, err := models.DecodeCredential(encoded)
	if err != nil {
		t.Fatalf("DecodeCredential() error: %v", err)
	}
	if decoded.CustomerID != cred.CustomerID || decoded.Signature != cred.Signature {
		t.Error("decoded credential does not match original")
	}
	if !verifier.Verify(decoded) {
		t.Error("Verify() = false after encode/decode roundtrip")
	}
}

func TestDecodeCredential_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{"empty", ""},
		{"not base64", "!!!"},
		{"non-JSON blob", base64.RawURLEncoding.EncodeToString([]byte("not json at all"))},
		{"JSON array", base64.RawURLEncoding.EncodeToString([]byte(`[1,2,3]`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := models.DecodeCredential(tt.encoded); err == nil {
				t.Error("DecodeCredential() succeeded on invalid input")
			}
		})
	}
}

func TestCredential_IsExpired(t *testing.T) {
	now := time.Now()
	cred := &models.Credential{ExpiresAt: now.Unix()}

	if cred.IsExpired(now.Add(-time.Hour)) {
		t.Error("IsExpired() = true before expiry")
	}
	if !cred.IsExpired(now.Add(time.Hour)) {
		t.Error("IsExpired() = false after expiry")
	}
}

func TestCredential_WithinOfflineTTL(t *testing.T) {
	cred := &models.Credential{OfflineTTLDays: 30}
	lastVerified := time.Now()
	ttl := 30 * 24 * time.Hour

	if !cred.WithinOfflineTTL(lastVerified, lastVerified.Add(ttl-time.Millisecond)) {
		t.Error("WithinOfflineTTL() = false just inside the window")
	}
	if cred.WithinOfflineTTL(lastVerified, lastVerified.Add(ttl+time.Millisecond)) {
		t.Error("WithinOfflineTTL() = true just past the window")
	}
}
