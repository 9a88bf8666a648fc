package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/research-portal-api/internal/models"
)

// AuditContext makes the client address and user agent available to the
// audit rows written further down the chain.
func AuditContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := models.WithClient(c.Request.Context(), c.ClientIP(), c.GetHeader("User-Agent"))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
