package middlewares

import (
	"net/http"
	"strings"

	"github.com/West13lue/stock-cbd-manager-sub000/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ShopMiddleware resolves the tenant from the X-Shop-Domain header and puts
// it on the request context. Every mutating route requires it; the shop guard
// plugin scopes all queries to it.
func ShopMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		shop := strings.TrimSpace(c.Request.Header.Get("X-Shop-Domain"))
		if shop == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "X-Shop-Domain header is required"})
			c.Abort()
			return
		}

		ctx := utils.SetShopInContext(c.Request.Context(), shop)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CorrelationIdMiddleware tags each request with a correlation id, taking the
// caller's X-Correlation-Id when present.
func CorrelationIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationId := strings.TrimSpace(c.Request.Header.Get("X-Correlation-Id"))
		if correlationId == "" {
			correlationId = uuid.NewString()
		}

		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationId)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Correlation-Id", correlationId)
		c.Next()
	}
}
