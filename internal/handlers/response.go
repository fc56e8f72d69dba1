package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/manuscript-backend/internal/apierr"
	"github.com/yungbote/manuscript-backend/internal/services"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondServiceError maps service sentinel errors onto HTTP statuses so
// every handler reports the same codes for the same failures.
func RespondServiceError(c *gin.Context, err error) {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		RespondError(c, ae.Status, ae.Code, ae)
		return
	}
	switch {
	case errors.Is(err, services.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, services.ErrForbidden):
		RespondError(c, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, services.ErrInvalidReference):
		RespondError(c, http.StatusUnprocessableEntity, "invalid_reference", err)
	case errors.Is(err, services.ErrArtifactInvalid):
		RespondError(c, http.StatusUnprocessableEntity, "artifact_invalid", err)
	case errors.Is(err, services.ErrImageInvalid):
		RespondError(c, http.StatusBadRequest, "image_invalid", err)
	case errors.Is(err, services.ErrEngineUnavailable):
		RespondError(c, http.StatusServiceUnavailable, "engine_unavailable", err)
	case errors.Is(err, services.ErrTrainingFailed):
		RespondError(c, http.StatusBadGateway, "training_failed", err)
	case errors.Is(err, services.ErrNoNewFeedback):
		RespondError(c, http.StatusConflict, "no_new_feedback", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
