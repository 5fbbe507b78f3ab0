package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/keymint/keymint/internal/revocation"
	"github.com/rs/zerolog"
)

// RevocationsHandler handles operator revocation registry endpoints.
type RevocationsHandler struct {
	registry *revocation.Registry
	logger   zerolog.Logger
}

// NewRevocationsHandler creates a new RevocationsHandler.
func NewRevocationsHandler(registry *revocation.Registry, logger zerolog.Logger) *RevocationsHandler {
	return &RevocationsHandler{
		registry: registry,
		logger:   logger.With().Str("component", "revocations_handler").Logger(),
	}
}

// RegisterRoutes registers revocation routes on the given router group.
func (h *RevocationsHandler) RegisterRoutes(r *gin.RouterGroup) {
	revocations := r.Group("/revocations")
	{
		revocations.GET("", h.List)
		revocations.DELETE("/:customer_id", h.Remove)
	}
}

// List returns all revocation entries.
//
//	@Summary		List revocations
//	@Tags			Revocations
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Security		OperatorKey
//	@Router			/revocations [get]
func (h *RevocationsHandler) List(c *gin.Context) {
	entries, err := h.registry.List(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list revocations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list revocations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"revocations": entries,
		"count":       len(entries),
	})
}

// Remove un-revokes a customer.
//
//	@Summary		Remove revocation
//	@Tags			Revocations
//	@Produce		json
//	@Param			customer_id	path	string	true	"Customer ID"
//	@Success		200	{object}	map[string]bool
//	@Failure		404	{object}	map[string]string
//	@Security		OperatorKey
//	@Router			/revocations/{customer_id} [delete]
func (h *RevocationsHandler) Remove(c *gin.Context) {
	id, err := uuid.Parse(c.Param("customer_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer ID"})
		return
	}

	removed, err := h.registry.Remove(c.Request.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("customer_id", id.String()).Msg("failed to remove revocation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove revocation"})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "revocation not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": true})
}
