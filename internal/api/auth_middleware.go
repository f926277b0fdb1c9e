// internal/api/auth_middleware.go
package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/LifeBranches/internal/auth"
	"github.com/Corphon/LifeBranches/internal/utils"
)

const producerKey = "producer"

// RelayAuth guards routes that change the timeline. With a nil token config
// every caller is accepted as "anonymous"; otherwise a bearer token signed
// with the relay secret is required.
func RelayAuth(tokenConfig *auth.TokenConfig, logger *utils.Logger) gin.HandlerFunc {
	rh := NewResponseHelper()
	return func(c *gin.Context) {
		if tokenConfig == nil {
			c.Set(producerKey, "anonymous")
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" || token == header {
			rh.Unauthorized(c, "bearer token required")
			c.Abort()
			return
		}

		parsed, err := auth.ParseToken(token, tokenConfig)
		if err != nil {
			logger.Warn("relay token rejected", map[string]interface{}{
				"error":     err.Error(),
				"client_ip": c.ClientIP(),
			})
			rh.Unauthorized(c, "invalid relay token")
			c.Abort()
			return
		}

		c.Set(producerKey, parsed.Producer)
		c.Next()
	}
}

// producerFromContext returns the authenticated relay producer.
func producerFromContext(c *gin.Context) string {
	if p := c.GetString(producerKey); p != "" {
		return p
	}
	return "anonymous"
}
