package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/manuscript-backend/internal/services"
)

type TrainingHandler struct {
	trainingService services.TrainingService
}

func NewTrainingHandler(trainingService services.TrainingService) *TrainingHandler {
	return &TrainingHandler{trainingService: trainingService}
}

func (th *TrainingHandler) Request(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	job, alreadyInFlight, err := th.trainingService.RequestTraining(c.Request.Context(), userID, true)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if alreadyInFlight {
		c.JSON(http.StatusOK, gin.H{"job": job, "already_in_progress": true})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job, "already_in_progress": false})
}

func (th *TrainingHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	jobID, ok := parseUUIDParam(c, "jobID")
	if !ok {
		return
	}
	job, err := th.trainingService.GetJob(c.Request.Context(), userID, jobID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, job)
}

func (th *TrainingHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	jobs, err := th.trainingService.ListJobs(c.Request.Context(), userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"jobs": jobs})
}

func (th *TrainingHandler) Cancel(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	jobID, ok := parseUUIDParam(c, "jobID")
	if !ok {
		return
	}
	job, err := th.trainingService.CancelJob(c.Request.Context(), userID, jobID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, job)
}
