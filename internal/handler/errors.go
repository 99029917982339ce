package handler

import (
	"errors"
	"net/http"

	"commission-service/internal/middleware"
	"commission-service/internal/service"
	"commission-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// statusForError maps service sentinels to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRuleConfiguration),
		errors.Is(err, service.ErrInvalidCommissionRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrRuleNotFound),
		errors.Is(err, service.ErrCommissionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidStatusTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusForError(err)
	_ = c.Error(err)
	c.JSON(status, response.Error(status, err.Error()))
}

// actorID parses the authenticated subject; uuid.Nil when missing or malformed
func actorID(c *gin.Context) uuid.UUID {
	id, err := uuid.Parse(middleware.CurrentUserID(c))
	if err != nil {
		return uuid.Nil
	}
	return id
}
