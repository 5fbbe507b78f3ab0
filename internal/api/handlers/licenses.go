package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keymint/keymint/internal/gateway"
	"github.com/keymint/keymint/internal/metrics"
	"github.com/keymint/keymint/internal/models"
	"github.com/rs/zerolog"
)

// IssueLicenseRequest is the operator-only direct issuance request. Exactly
// one of duration_days or expires_at controls the credential expiry; when
// both are absent the default duration applies.
type IssueLicenseRequest struct {
	Email        string     `json:"email"`
	Plan         string     `json:"plan"`
	DurationDays int        `json:"duration_days,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// IssueLicenseResponse carries the signed credential back to the operator.
type IssueLicenseResponse struct {
	CustomerID    string             `json:"customer_id"`
	LicenseID     string             `json:"license_id"`
	Credential    *models.Credential `json:"credential"`
	CredentialKey string             `json:"credential_key"`
}

// LicensesHandler handles operator license issuance.
type LicensesHandler struct {
	gateway *gateway.Gateway
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewLicensesHandler creates a new LicensesHandler.
func NewLicensesHandler(gw *gateway.Gateway, m *metrics.Metrics, logger zerolog.Logger) *LicensesHandler {
	return &LicensesHandler{
		gateway: gw,
		metrics: m,
		logger:  logger.With().Str("component", "licenses_handler").Logger(),
	}
}

// RegisterRoutes registers license routes on the given router group.
func (h *LicensesHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/licenses", h.Issue)
}

// Issue mints a signed credential for a customer.
//
//	@Summary		Issue license
//	@Description	Mints a signed credential and license row for a customer
//	@Tags			Licenses
//	@Accept			json
//	@Produce		json
//	@Param			request	body		IssueLicenseRequest	true	"Issuance request"
//	@Success		201	{object}	IssueLicenseResponse
//	@Failure		400	{object}	map[string]string
//	@Failure		401	{object}	map[string]string
//	@Security		OperatorKey
//	@Router			/licenses [post]
func (h *LicensesHandler) Issue(c *gin.Context) {
	var req IssueLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var missing []string
	if req.Email == "" {
		missing = append(missing, "email")
	}
	if req.Plan == "" {
		missing = append(missing, "plan")
	}
	if len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields: " + strings.Join(missing, ", ")})
		return
	}

	plan := models.Plan(req.Plan)
	if !plan.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan: " + req.Plan})
		return
	}

	expiresAt := req.ExpiresAt
	if expiresAt == nil && req.DurationDays > 0 {
		t := time.Now().UTC().AddDate(0, 0, req.DurationDays)
		expiresAt = &t
	}

	license, cred, err := h.gateway.IssueOperator(c.Request.Context(), req.Email, plan, expiresAt)
	if err != nil {
		h.logger.Error().Err(err).Str("email", req.Email).Msg("operator issuance failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue license"})
		return
	}
	h.metrics.LicensesIssued.Inc()

	c.JSON(http.StatusCreated, IssueLicenseResponse{
		CustomerID:    license.CustomerID.String(),
		LicenseID:     license.ID.String(),
		Credential:    cred,
		CredentialKey: license.CredentialKey,
	})
}
