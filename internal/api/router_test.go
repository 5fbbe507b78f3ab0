package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/keymint/keymint/internal/auth"
	"github.com/keymint/keymint/internal/credential"
	"github.com/keymint/keymint/internal/gateway"
	"github.com/keymint/keymint/internal/models"
	"github.com/keymint/keymint/internal/revocation"
	"github.com/keymint/keymint/internal/store"
	"github.com/keymint/keymint/internal/verify"
	"github.com/rs/zerolog"
)

type testServer struct {
	router      *Router
	store       *store.SQLiteStore
	operatorKey string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	kp, err := credential.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error: %v", err)
	}
	signer, err := credential.NewSigner(kp.PrivateKey)
	if err != nil {
		t.Fatalf("NewSigner() error: %v", err)
	}
	verifier, err := credential.NewVerifier(kp.PublicKey)
	if err != nil {
		t.Fatalf("NewVerifier() error: %v", err)
	}

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api-test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	registry := revocation.NewRegistry(st, zerolog.Nop())
	gw := gateway.New(st, signer, zerolog.Nop())
	policy := models.PolicyFlags{MinimumVersion: "1.0.0"}
	verifyService := verify.NewService(verifier, registry, policy, zerolog.Nop())

	operatorKey, err := auth.GenerateOperatorKey()
	if err != nil {
		t.Fatalf("GenerateOperatorKey() error: %v", err)
	}

	router, err := NewRouter(RouterConfig{
		OperatorKeyHash: auth.HashOperatorKey(operatorKey),
		VerifyRateLimit: 1000,
		Version:         "test",
		Commit:          "none",
	}, st, gw, registry, verifyService, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRouter() error: %v", err)
	}

	return &testServer{router: router, store: st, operatorKey: operatorKey}
}

func (s *testServer) do(t *testing.T, method, path string, body any, authenticated bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+s.operatorKey)
	}

	w := httptest.NewRecorder()
	s.router.Engine.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", resp["status"])
	}
}

func TestVersionEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/version", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /version = %d, want 200", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/metrics", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", w.Code)
	}
}

func TestOperatorEndpointsRequireAuth(t *testing.T) {
	s := newTestServer(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/events"},
		{http.MethodPost, "/api/v1/licenses"},
		{http.MethodGet, "/api/v1/revocations"},
	}

	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			w := s.do(t, p.method, p.path, gin.H{}, false)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("%s %s without auth = %d, want 401", p.method, p.path, w.Code)
			}
		})
	}
}

func TestOperatorAuthRejectsWrongKey(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/revocations", nil)
	req.Header.Set("Authorization", "Bearer kmt_"+fmt.Sprintf("%064d", 0))
	w := httptest.NewRecorder()
	s.router.Engine.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong operator key = %d, want 401", w.Code)
	}
}

func TestEventEndpoint(t *testing.T) {
	s := newTestServer(t)

	event := models.PaymentEvent{
		Provider:              models.ProviderStripe,
		Type:                  models.EventCheckoutCompleted,
		Email:                 "api@example.com",
		Plan:                  models.PlanPro,
		ExternalTransactionID: "txn_api_1",
	}

	w := s.do(t, http.MethodPost, "/api/v1/events", event, true)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/v1/events = %d, want 200: %s", w.Code, w.Body.String())
	}

	var result models.EventResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !result.Success || result.LicenseID == "" {
		t.Errorf("event result = %+v, want success with license id", result)
	}
}

func TestEventEndpoint_FailureResultStays200(t *testing.T) {
	s := newTestServer(t)

	// Terminal rejections must not look like server faults, or webhook
	// retriers would redeliver forever.
	event := models.PaymentEvent{
		Provider: models.ProviderStripe,
		Type:     models.EventSubscriptionCancelled,
		Email:    "nobody@example.com",
	}

	w := s.do(t, http.MethodPost, "/api/v1/events", event, true)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/v1/events = %d, want 200", w.Code)
	}

	var result models.EventResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Success {
		t.Error("cancellation of unknown customer reported success")
	}
	if result.Error != "Customer not found" {
		t.Errorf("error = %q, want %q", result.Error, "Customer not found")
	}
}

func TestLicenseIssuanceAndVerify(t *testing.T) {
	s := newTestServer(t)

	issue := s.do(t, http.MethodPost, "/api/v1/licenses", gin.H{
		"email": "direct@example.com",
		"plan":  "PRO",
	}, true)
	if issue.Code != http.StatusCreated {
		t.Fatalf("POST /api/v1/licenses = %d, want 201: %s", issue.Code, issue.Body.String())
	}

	var issued struct {
		CustomerID    string `json:"customer_id"`
		LicenseID     string `json:"license_id"`
		CredentialKey string `json:"credential_key"`
	}
	if err := json.Unmarshal(issue.Body.Bytes(), &issued); err != nil {
		t.Fatalf("unmarshal issuance response: %v", err)
	}
	if issued.CredentialKey == "" {
		t.Fatal("issuance response missing credential key")
	}

	// Verification is public: no operator key.
	verifyResp := s.do(t, http.MethodPost, "/api/v1/verify", gin.H{
		"credential": issued.CredentialKey,
	}, false)
	if verifyResp.Code != http.StatusOK {
		t.Fatalf("POST /api/v1/verify = %d, want 200", verifyResp.Code)
	}

	var decision models.VerifyResponse
	if err := json.Unmarshal(verifyResp.Body.Bytes(), &decision); err != nil {
		t.Fatalf("unmarshal verify response: %v", err)
	}
	if !decision.Valid {
		t.Errorf("verify decision = %+v, want valid", decision)
	}
	if decision.PolicyFlags == nil || decision.PolicyFlags.MinimumVersion != "1.0.0" {
		t.Errorf("policy flags = %+v", decision.PolicyFlags)
	}
}

func TestLicenseIssuance_MissingFields(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/licenses", gin.H{}, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("POST /api/v1/licenses = %d, want 400", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["error"] != "missing required fields: email, plan" {
		t.Errorf("error = %q", resp["error"])
	}
}

func TestVerifyEndpoint_MissingCredential(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/verify", gin.H{}, false)
	if w.Code != http.StatusBadRequest {
		t.Errorf("POST /api/v1/verify without credential = %d, want 400", w.Code)
	}
}

func TestRevocationLifecycleOverAPI(t *testing.T) {
	s := newTestServer(t)

	// Checkout then cancel to populate the registry.
	checkout := models.PaymentEvent{
		Provider:              models.ProviderStripe,
		Type:                  models.EventCheckoutCompleted,
		Email:                 "revoke-api@example.com",
		Plan:                  models.PlanPro,
		ExternalTransactionID: "txn_revoke_api",
	}
	w := s.do(t, http.MethodPost, "/api/v1/events", checkout, true)
	var checkoutResult models.EventResult
	if err := json.Unmarshal(w.Body.Bytes(), &checkoutResult); err != nil {
		t.Fatalf("unmarshal checkout result: %v", err)
	}

	cancel := models.PaymentEvent{
		Provider: models.ProviderStripe,
		Type:     models.EventSubscriptionCancelled,
		Email:    "revoke-api@example.com",
	}
	if w := s.do(t, http.MethodPost, "/api/v1/events", cancel, true); w.Code != http.StatusOK {
		t.Fatalf("cancel = %d, want 200", w.Code)
	}

	list := s.do(t, http.MethodGet, "/api/v1/revocations", nil, true)
	if list.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/revocations = %d, want 200", list.Code)
	}
	var listing struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(list.Body.Bytes(), &listing); err != nil {
		t.Fatalf("unmarshal listing: %v", err)
	}
	if listing.Count != 1 {
		t.Errorf("revocation count = %d, want 1", listing.Count)
	}

	remove := s.do(t, http.MethodDelete, "/api/v1/revocations/"+checkoutResult.CustomerID, nil, true)
	if remove.Code != http.StatusOK {
		t.Fatalf("DELETE revocation = %d, want 200: %s", remove.Code, remove.Body.String())
	}

	again := s.do(t, http.MethodDelete, "/api/v1/revocations/"+checkoutResult.CustomerID, nil, true)
	if again.Code != http.StatusNotFound {
		t.Errorf("second DELETE = %d, want 404", again.Code)
	}
}

func TestRevocationRemove_InvalidID(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodDelete, "/api/v1/revocations/not-a-uuid", nil, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("DELETE invalid id = %d, want 400", w.Code)
	}
}
