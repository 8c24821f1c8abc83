// internal/api/middleware.go
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const tenantHeader = "X-Tenant-ID"

// tenantRequired rejects requests without a tenant header. Handlers read the
// tenant from the context, never from the body, so one tenant cannot write
// into another's rows.
func (s *Server) tenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader(tenantHeader)
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "X-Tenant-ID header required"})
			return
		}
		c.Set("tenant_id", tenantID)
		c.Next()
	}
}

// superadminRequired gates platform routes behind a static bearer token.
func (s *Server) superadminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.adminToken == "" || c.GetHeader("Authorization") != "Bearer "+s.adminToken {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request", map[string]interface{}{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"took_ms": time.Since(start).Milliseconds(),
		})
	}
}

func tenantID(c *gin.Context) string {
	return c.GetString("tenant_id")
}
