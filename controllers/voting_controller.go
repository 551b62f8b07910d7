package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phillip/labapp-server-go/logger"
	services "github.com/phillip/labapp-server-go/services"
	utils "github.com/phillip/labapp-server-go/utils"
)

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02 15:04:05", "2006-01-02"}

func parseTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	// zone-less layouts are server-local, like the event defaults
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("invalid time format, use RFC3339 or YYYY-MM-DD")
}

// ---------------- CREATE ----------------
func CreateVotingEvent(svc *services.EventService, images utils.ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Name        string   `json:"name" form:"name"`
			Description string   `json:"description" form:"description"`
			Image       string   `json:"image" form:"image"`
			Options     []string `json:"options" form:"options"`
			StartTime   string   `json:"startTime" form:"startTime"`
			EndTime     string   `json:"endTime" form:"endTime"`
		}
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed. Invalid data!"})
			return
		}

		start, err := parseTime(input.StartTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		end, err := parseTime(input.EndTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// --- Optional image upload (multipart "image" file) ---
		uploaded := ""
		if fh, err := c.FormFile("image"); err == nil {
			if images == nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "image uploads are not configured"})
				return
			}
			file, err := fh.Open()
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open file"})
				return
			}
			uploaded, err = images.Upload(c.Request.Context(), file)
			file.Close()
			if err != nil {
				logger.Error.Printf("[CreateVotingEvent] image upload failed: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "image upload failed"})
				return
			}
			input.Image = uploaded
		}

		_, err = svc.CreateEvent(c.Request.Context(), services.NewEvent{
			Name:        input.Name,
			Description: input.Description,
			Image:       input.Image,
			Options:     input.Options,
			StartTime:   start,
			EndTime:     end,
		})
		if err != nil {
			if uploaded != "" {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if derr := images.Delete(ctx, uploaded); derr != nil {
					logger.Warn.Printf("[CreateVotingEvent] could not remove orphaned image %s: %v", uploaded, derr)
				}
				cancel()
			}
			respondError(c, "CreateVotingEvent", err)
			return
		}

		c.String(http.StatusOK, "Complete")
	}
}

// ---------------- CURRENT ----------------
func CurrentVotingEvent(resolver *services.EventResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		event, err := resolver.ResolveActive(c.Request.Context())
		if err != nil {
			respondError(c, "CurrentVotingEvent", err)
			return
		}

		etag := utils.GenerateETag(event.ID, event.UpdatedAt)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)
		c.Header("Last-Modified", event.UpdatedAt.UTC().Format(http.TimeFormat))

		c.JSON(http.StatusOK, event.PublicView())
	}
}

// ---------------- SUBMIT ----------------
func SubmitBallot(engine *services.VotingEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Event  string `json:"event"`
			First  string `json:"first"`
			Second string `json:"second"`
			Third  string `json:"third"`
			User   string `json:"user"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed. Invalid data!"})
			return
		}

		err := engine.SubmitBallot(c.Request.Context(), services.Ballot{
			Event:   input.Event,
			First:   input.First,
			Second:  input.Second,
			Third:   input.Third,
			User:    input.User,
			Address: c.ClientIP(),
		})
		if err != nil {
			respondError(c, "SubmitBallot", err)
			return
		}
		c.String(http.StatusOK, "Complete")
	}
}

// ---------------- RELEASE ----------------
func ReleaseResults(results *services.ResultsManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Event   string `json:"event"`
			Winners []struct {
				ID    string `json:"id"`
				Award string `json:"award"`
			} `json:"winners"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid data!"})
			return
		}

		winners := make([]services.Winner, 0, len(input.Winners))
		for _, w := range input.Winners {
			winners = append(winners, services.Winner{ID: w.ID, Award: w.Award})
		}
		if err := results.Release(c.Request.Context(), input.Event, winners); err != nil {
			respondError(c, "ReleaseResults", err)
			return
		}
		c.String(http.StatusOK, "Complete")
	}
}

// ---------------- RESULTS ----------------
func CurrentResults(results *services.ResultsManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := results.LiveScores(c.Request.Context())
		if err != nil {
			respondError(c, "CurrentResults", err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func FinalResults(results *services.ResultsManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		final, err := results.FinalResults(c.Request.Context(), c.Query("event"))
		if err != nil {
			respondError(c, "FinalResults", err)
			return
		}
		c.JSON(http.StatusOK, final)
	}
}
