package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/manuscript-backend/internal/services"
)

type ModelHandler struct {
	registryService services.ModelRegistryService
}

func NewModelHandler(registryService services.ModelRegistryService) *ModelHandler {
	return &ModelHandler{registryService: registryService}
}

func (mh *ModelHandler) GetActive(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	storageRef, version, err := mh.registryService.ResolveActiveModel(c.Request.Context(), userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"version_number": version,
		"storage_ref":    storageRef,
		"is_base_model":  version == 0,
	})
}

func (mh *ModelHandler) History(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	versions, err := mh.registryService.History(c.Request.Context(), userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"versions": versions})
}
