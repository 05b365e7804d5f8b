package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-merit-api/internal/service"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
	"github.com/noah-isme/sma-merit-api/pkg/response"
)

// RequireCapability rejects callers whose role lacks capability.
func RequireCapability(authz *service.Authorizer, capability service.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if err := authz.Authorize(actor.Role, capability); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}
