package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/manuscript-backend/internal/services"
)

type PageHandler struct {
	uploadService services.UploadService
}

func NewPageHandler(uploadService services.UploadService) *PageHandler {
	return &PageHandler{uploadService: uploadService}
}

func (ph *PageHandler) Upload(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	projectID, ok := parseUUIDParam(c, "projectID")
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_file", err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_file", err)
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	page, upErr := ph.uploadService.UploadPageImage(c.Request.Context(), userID, projectID, fileHeader.Filename, mimeType, data)
	if upErr != nil {
		RespondServiceError(c, upErr)
		return
	}
	c.JSON(http.StatusCreated, page)
}

func (ph *PageHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	projectID, ok := parseUUIDParam(c, "projectID")
	if !ok {
		return
	}
	pages, err := ph.uploadService.ListPageImages(c.Request.Context(), userID, projectID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"pages": pages})
}

func (ph *PageHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	projectID, ok := parseUUIDParam(c, "projectID")
	if !ok {
		return
	}
	pageID, ok := parseUUIDParam(c, "pageID")
	if !ok {
		return
	}
	if err := ph.uploadService.DeletePageImage(c.Request.Context(), userID, projectID, pageID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": "page deleted"})
}
