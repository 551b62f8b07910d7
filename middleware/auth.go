// Package middleware holds the gin gates in front of the route groups.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	config "github.com/phillip/labapp-server-go/config"
	"github.com/phillip/labapp-server-go/logger"
	utils "github.com/phillip/labapp-server-go/utils"
)

// APIKeyHeader is checked when the key query parameter is absent.
const APIKeyHeader = "X-API-Key"

// APIKey rejects requests that do not carry cfg.APIKey as ?key= or in the
// X-API-Key header. An empty cfg.APIKey disables the check.
func APIKey(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APIKey == "" {
			c.Next()
			return
		}
		key := c.Query("key")
		if key == "" {
			key = c.GetHeader(APIKeyHeader)
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) != 1 {
			logger.Warn.Printf("[APIKey] rejected %s %s from %s", c.Request.Method, c.Request.URL.Path, c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// AdminRequired expects a bearer admin token issued by /auth/token. Without
// a configured JWT secret the gate is open.
func AdminRequired(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.JWTSecret == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		claims, err := utils.ParseAdminToken(cfg.JWTSecret, strings.TrimSpace(raw))
		if err != nil {
			logger.Warn.Printf("[AdminRequired] blocked %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Set("role", claims.Role)
		c.Next()
	}
}
