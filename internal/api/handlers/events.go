package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keymint/keymint/internal/gateway"
	"github.com/keymint/keymint/internal/metrics"
	"github.com/keymint/keymint/internal/models"
	"github.com/rs/zerolog"
)

// EventsHandler accepts normalized payment events from the provider
// collaborator layer. Webhook signature verification and wire-format
// parsing happen upstream; by the time an event reaches this handler it is
// already a tagged, provider-agnostic value.
type EventsHandler struct {
	gateway *gateway.Gateway
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(gw *gateway.Gateway, m *metrics.Metrics, logger zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		gateway: gw,
		metrics: m,
		logger:  logger.With().Str("component", "events_handler").Logger(),
	}
}

// RegisterRoutes registers event routes on the given router group.
func (h *EventsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/events", h.Process)
}

// Process handles a normalized payment event.
//
//	@Summary		Process payment event
//	@Description	Applies a normalized billing event to license state
//	@Tags			Events
//	@Accept			json
//	@Produce		json
//	@Param			event	body		models.PaymentEvent	true	"Normalized payment event"
//	@Success		200	{object}	models.EventResult
//	@Failure		400	{object}	map[string]string
//	@Security		OperatorKey
//	@Router			/events [post]
func (h *EventsHandler) Process(c *gin.Context) {
	var event models.PaymentEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event payload"})
		return
	}

	result := h.gateway.Process(c.Request.Context(), &event)
	h.metrics.ObserveEvent(string(event.Type), result.Success)

	if !result.Success {
		h.logger.Warn().
			Str("event_type", string(event.Type)).
			Str("error", result.Error).
			Msg("event rejected")
	}

	// Failure results are terminal decisions, not server faults: a webhook
	// retrier must not redeliver them, so the status stays 200.
	c.JSON(http.StatusOK, result)
}
