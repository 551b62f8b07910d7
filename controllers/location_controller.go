package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	services "github.com/phillip/labapp-server-go/services"
)

// ---------------- ENTER / EXIT ----------------
func EnterExit(presence *services.PresenceReconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			User struct {
				Email string `json:"email"`
				Name  string `json:"name"`
			} `json:"user"`
			InDALI bool `json:"inDALI"`
			Share  bool `json:"share"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed"})
			return
		}

		err := presence.UpdatePresence(c.Request.Context(), services.PresenceUpdate{
			Email:   input.User.Email,
			Name:    input.User.Name,
			Present: input.InDALI,
			Share:   input.Share,
		})
		if err != nil {
			respondError(c, "EnterExit", err)
			return
		}
		c.String(http.StatusOK, "Noted")
	}
}

// ---------------- SHARED ----------------
func SharedUsers(presence *services.PresenceReconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := presence.ListPresent(c.Request.Context())
		if err != nil {
			respondError(c, "SharedUsers", err)
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

// ---------------- TRACKER ----------------
func UpdateTracker(presence *services.PresenceReconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Location string `json:"location"`
			Enter    bool   `json:"enter"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed"})
			return
		}
		if err := presence.UpdateSpecialTracker(c.Request.Context(), input.Location, input.Enter); err != nil {
			respondError(c, "UpdateTracker", err)
			return
		}
		c.String(http.StatusOK, "Noted")
	}
}

func GetTracker(presence *services.PresenceReconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := presence.GetSpecialTracker(c.Request.Context())
		if err != nil {
			respondError(c, "GetTracker", err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// ---------------- RESET ----------------
func ResetPresence(presence *services.PresenceReconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := presence.ResetAll(c.Request.Context()); err != nil {
			respondError(c, "ResetPresence", err)
			return
		}
		c.String(http.StatusOK, "Complete!")
	}
}
