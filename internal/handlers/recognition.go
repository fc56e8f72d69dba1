package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/manuscript-backend/internal/services"
)

type RecognitionHandler struct {
	recognitionService services.RecognitionService
}

func NewRecognitionHandler(recognitionService services.RecognitionService) *RecognitionHandler {
	return &RecognitionHandler{recognitionService: recognitionService}
}

func (rh *RecognitionHandler) Recognize(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	projectID, ok := parseUUIDParam(c, "projectID")
	if !ok {
		return
	}
	var req struct {
		PageImageID uuid.UUID `json:"page_image_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	result, err := rh.recognitionService.Recognize(c.Request.Context(), userID, projectID, req.PageImageID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (rh *RecognitionHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	projectID, ok := parseUUIDParam(c, "projectID")
	if !ok {
		return
	}
	results, err := rh.recognitionService.ListByProject(c.Request.Context(), userID, projectID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"recognitions": results})
}
