package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/keymint/keymint/internal/auth"
	"github.com/rs/zerolog"
)

func newAuthedEngine(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := auth.GenerateOperatorKey()
	if err != nil {
		t.Fatalf("GenerateOperatorKey() error: %v", err)
	}
	validator := auth.NewOperatorKeyValidator(auth.HashOperatorKey(key))

	engine := gin.New()
	engine.Use(OperatorAuth(validator, zerolog.Nop()))
	engine.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return engine, key
}

func TestOperatorAuth(t *testing.T) {
	engine, key := newAuthedEngine(t)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid key", "Bearer " + key, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic " + key, http.StatusUnauthorized},
		{"wrong key", "Bearer kmt_0000000000000000000000000000000000000000000000000000000000000000", http.StatusUnauthorized},
		{"malformed key", "Bearer oops", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(SecurityHeaders())
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	want := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
	}
	for header, value := range want {
		if got := w.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS set on a plaintext request")
	}
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter, err := NewRateLimiter(2, "1m")
	if err != nil {
		t.Fatalf("NewRateLimiter() error: %v", err)
	}

	engine := gin.New()
	engine.Use(limiter)
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	statuses := make([]int, 3)
	for i := range statuses {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		statuses[i] = w.Code
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Errorf("first two requests = %v, want 200s", statuses[:2])
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", statuses[2])
	}
}

func TestNewRateLimiter_InvalidPeriod(t *testing.T) {
	if _, err := NewRateLimiter(10, "sometimes"); err == nil {
		t.Error("NewRateLimiter() accepted an invalid period")
	}
}
