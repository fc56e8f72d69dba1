package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/manuscript-backend/internal/services"
)

type FeedbackHandler struct {
	corpusService   services.FeedbackCorpusService
	trainingService services.TrainingService
	autoTrain       bool
}

func NewFeedbackHandler(corpusService services.FeedbackCorpusService, trainingService services.TrainingService, autoTrain bool) *FeedbackHandler {
	return &FeedbackHandler{
		corpusService:   corpusService,
		trainingService: trainingService,
		autoTrain:       autoTrain,
	}
}

func (fh *FeedbackHandler) Record(c *gin.Context) {
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
		PageImageID         uuid.UUID `json:"page_image_id"`
		SourceRecognitionID uuid.UUID `json:"source_recognition_id"`
		CorrectedText       string    `json:"corrected_text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	rec, err := fh.corpusService.Record(c.Request.Context(), userID, projectID, req.PageImageID, req.SourceRecognitionID, req.CorrectedText)
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	// Feedback past the configured threshold enqueues training automatically;
	// below it the request is a no-op and the feedback just accumulates. The
	// record is already committed, so a failed enqueue must not fail the
	// request.
	if fh.autoTrain {
		if _, _, tErr := fh.trainingService.RequestTraining(c.Request.Context(), userID, false); tErr != nil {
			_ = c.Error(tErr)
		}
	}
	c.JSON(http.StatusCreated, rec)
}
