package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keymint/keymint/internal/metrics"
	"github.com/keymint/keymint/internal/verify"
	"github.com/rs/zerolog"
)

// VerifyRequest carries an encoded, serialized signed credential.
type VerifyRequest struct {
	Credential string `json:"credential"`
}

// VerifyHandler handles credential verification requests.
type VerifyHandler struct {
	service *verify.Service
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewVerifyHandler creates a new VerifyHandler.
func NewVerifyHandler(service *verify.Service, m *metrics.Metrics, logger zerolog.Logger) *VerifyHandler {
	return &VerifyHandler{
		service: service,
		metrics: m,
		logger:  logger.With().Str("component", "verify_handler").Logger(),
	}
}

// RegisterRoutes registers verification routes on the given router group.
func (h *VerifyHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/verify", h.Verify)
}

// Verify decides on a submitted credential.
//
//	@Summary		Verify credential
//	@Description	Checks signature and revocation status of a credential
//	@Tags			Verify
//	@Accept			json
//	@Produce		json
//	@Param			request	body		VerifyRequest	true	"Encoded credential"
//	@Success		200	{object}	models.VerifyResponse
//	@Failure		400	{object}	map[string]string
//	@Router			/verify [post]
func (h *VerifyHandler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Credential == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing credential"})
		return
	}

	resp := h.service.Check(c.Request.Context(), req.Credential)
	h.metrics.ObserveVerification(resp.Valid, string(resp.Reason))

	c.JSON(http.StatusOK, resp)
}
