package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/keymint/keymint/internal/auth"
	"github.com/rs/zerolog"
)

// OperatorAuth returns a middleware that requires a valid operator bearer
// key on the request.
func OperatorAuth(validator *auth.OperatorKeyValidator, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "operator_auth").Logger()

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		key, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		if !validator.Validate(key) {
			log.Debug().Str("path", c.Request.URL.Path).Msg("operator key rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid operator key"})
			return
		}

		c.Next()
	}
}
