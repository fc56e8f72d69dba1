package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/manuscript-backend/internal/apierr"
	"github.com/yungbote/manuscript-backend/internal/services"
)

func respondTo(t *testing.T, err error) (int, ErrorEnvelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondServiceError(c, err)

	var env ErrorEnvelope
	if uErr := json.Unmarshal(w.Body.Bytes(), &env); uErr != nil {
		t.Fatalf("decode envelope: %v", uErr)
	}
	return w.Code, env
}

func TestRespondServiceError_SentinelMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{services.ErrNotFound, http.StatusNotFound, "not_found"},
		{services.ErrForbidden, http.StatusForbidden, "forbidden"},
		{services.ErrInvalidReference, http.StatusUnprocessableEntity, "invalid_reference"},
		{services.ErrArtifactInvalid, http.StatusUnprocessableEntity, "artifact_invalid"},
		{services.ErrImageInvalid, http.StatusBadRequest, "image_invalid"},
		{services.ErrEngineUnavailable, http.StatusServiceUnavailable, "engine_unavailable"},
		{services.ErrTrainingFailed, http.StatusBadGateway, "training_failed"},
		{services.ErrNoNewFeedback, http.StatusConflict, "no_new_feedback"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.wantCode, func(t *testing.T) {
			// Services wrap sentinels, so the mapping must see through fmt wrapping.
			status, env := respondTo(t, fmt.Errorf("context: %w", tc.err))
			if status != tc.wantStatus {
				t.Fatalf("status: want %d got %d", tc.wantStatus, status)
			}
			if env.Error.Code != tc.wantCode {
				t.Fatalf("code: want %q got %q", tc.wantCode, env.Error.Code)
			}
			if env.Error.Message == "" {
				t.Fatalf("message must carry the error text")
			}
		})
	}
}

func TestRespondServiceError_HonorsExplicitStatus(t *testing.T) {
	err := apierr.New(http.StatusTooManyRequests, "rate_limited", errors.New("slow down"))
	status, env := respondTo(t, fmt.Errorf("upstream: %w", err))
	if status != http.StatusTooManyRequests {
		t.Fatalf("status: want 429 got %d", status)
	}
	if env.Error.Code != "rate_limited" {
		t.Fatalf("code: want rate_limited got %q", env.Error.Code)
	}
}
