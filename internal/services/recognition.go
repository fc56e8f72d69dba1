package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/manuscript-backend/internal/logger"
	"github.com/yungbote/manuscript-backend/internal/repos"
	"github.com/yungbote/manuscript-backend/internal/types"
)

// RecognitionService transcribes uploaded pages with the requesting user's
// active model and persists each result with a snapshot of the model that
// produced it.
type RecognitionService interface {
	Recognize(ctx context.Context, userID, projectID, pageImageID uuid.UUID) (*types.RecognitionResult, error)
	ListByProject(ctx context.Context, userID, projectID uuid.UUID) ([]*types.RecognitionResult, error)
}

type recognitionService struct {
	db          *gorm.DB
	log         *logger.Logger
	recogRepo   repos.RecognitionRepo
	pageRepo    repos.PageImageRepo
	permissions PermissionService
	registry    ModelRegistryService
	bucket      BucketService
	engine      RecognitionEngine
}

func NewRecognitionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	recogRepo repos.RecognitionRepo,
	pageRepo repos.PageImageRepo,
	permissions PermissionService,
	registry ModelRegistryService,
	bucket BucketService,
	engine RecognitionEngine,
) RecognitionService {
	return &recognitionService{
		db:          db,
		log:         baseLog.With("service", "RecognitionService"),
		recogRepo:   recogRepo,
		pageRepo:    pageRepo,
		permissions: permissions,
		registry:    registry,
		bucket:      bucket,
		engine:      engine,
	}
}

func (rs *recognitionService) Recognize(ctx context.Context, userID, projectID, pageImageID uuid.UUID) (*types.RecognitionResult, error) {
	allowed, err := rs.permissions.HasPermission(ctx, userID, projectID, types.PermissionViewer)
	if err != nil {
		return nil, fmt.Errorf("check permission: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: user cannot view project", ErrForbidden)
	}

	pages, err := rs.pageRepo.GetByIDs(ctx, nil, []uuid.UUID{pageImageID})
	if err != nil {
		return nil, fmt.Errorf("load page image: %w", err)
	}
	if len(pages) == 0 || pages[0] == nil {
		return nil, fmt.Errorf("%w: page image %s", ErrNotFound, pageImageID)
	}
	page := pages[0]
	if page.ProjectID != projectID {
		return nil, fmt.Errorf("%w: page image belongs to another project", ErrInvalidReference)
	}

	imageBytes, err := rs.bucket.DownloadFile(ctx, page.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("download page image: %w", err)
	}

	// The recognizing user's own model, not the uploader's. Two collaborators
	// transcribing the same page can get different text.
	modelRef, version, err := rs.registry.ResolveActiveModel(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve model: %w", err)
	}

	text, confidence, err := rs.engine.Transcribe(ctx, imageBytes, page.MimeType, modelRef)
	if err != nil {
		return nil, err
	}

	result := &types.RecognitionResult{
		ID:               uuid.New(),
		OwnerID:          userID,
		ProjectID:        projectID,
		PageImageID:      pageImageID,
		ModelVersionUsed: version,
		StorageRefUsed:   modelRef,
		Text:             text,
		Confidence:       confidence,
		CreatedAt:        time.Now(),
	}
	if _, err := rs.recogRepo.Create(ctx, nil, []*types.RecognitionResult{result}); err != nil {
		return nil, fmt.Errorf("persist recognition: %w", err)
	}

	rs.log.Info("Recognized page",
		"recognition_id", result.ID,
		"user_id", userID,
		"project_id", projectID,
		"model_version", version,
		"confidence", confidence)
	return result, nil
}

func (rs *recognitionService) ListByProject(ctx context.Context, userID, projectID uuid.UUID) ([]*types.RecognitionResult, error) {
	allowed, err := rs.permissions.HasPermission(ctx, userID, projectID, types.PermissionViewer)
	if err != nil {
		return nil, fmt.Errorf("check permission: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: user cannot view project", ErrForbidden)
	}
	return rs.recogRepo.ListByProjectID(ctx, nil, projectID)
}
