package controllers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	config "github.com/phillip/labapp-server-go/config"
	"github.com/phillip/labapp-server-go/logger"
	utils "github.com/phillip/labapp-server-go/utils"
)

// ---------------- TOKEN ----------------
// IssueAdminToken exchanges the configured admin key for a signed token.
func IssueAdminToken(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.AdminKey == "" || cfg.JWTSecret == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin tokens are not configured"})
			return
		}
		var input struct {
			Key string `json:"key" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(input.Key), []byte(cfg.AdminKey)) != 1 {
			logger.Warn.Printf("[IssueAdminToken] bad admin key from %s", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		token, err := utils.GenerateAdminToken(cfg.JWTSecret, cfg.TokenTTL)
		if err != nil {
			logger.Error.Printf("[IssueAdminToken] %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "expires_in": int(cfg.TokenTTL.Seconds())})
	}
}

// ---------------- HEALTH ----------------
func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
