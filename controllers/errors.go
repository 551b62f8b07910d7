package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phillip/labapp-server-go/logger"
	services "github.com/phillip/labapp-server-go/services"
)

var codeStatus = map[string]int{
	services.CodeDuplicateVote:   http.StatusMethodNotAllowed,
	services.CodeVotingClosed:    http.StatusBadRequest,
	services.CodeAlreadyReleased: http.StatusBadRequest,
	services.CodeNotReleased:     http.StatusBadRequest,
	services.CodeOverlap:         http.StatusConflict,
}

var kindStatus = map[services.Kind]int{
	services.KindInvalidRequest: http.StatusBadRequest,
	services.KindNotFound:       http.StatusNotFound,
	services.KindConflict:       http.StatusConflict,
	services.KindUnauthorized:   http.StatusForbidden,
	services.KindStoreFailure:   http.StatusInternalServerError,
	services.KindInconsistency:  http.StatusInternalServerError,
}

// statusFor maps a service error to an HTTP status, reason code first.
func statusFor(se *services.Error) int {
	if s, ok := codeStatus[se.Code]; ok {
		return s
	}
	if s, ok := kindStatus[se.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, op string, err error) {
	se := services.AsError(err)
	status := statusFor(se)
	if status >= http.StatusInternalServerError {
		logger.Error.Printf("[%s] request=%s %v", op, c.GetString("request_id"), err)
	} else {
		logger.Debug.Printf("[%s] request=%s %v", op, c.GetString("request_id"), err)
	}
	c.JSON(status, gin.H{"error": se.Message})
}
