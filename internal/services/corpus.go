package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/manuscript-backend/internal/logger"
	"github.com/yungbote/manuscript-backend/internal/repos"
	"github.com/yungbote/manuscript-backend/internal/types"
)

// FeedbackCorpusService owns the append-only correction corpus. Checkpoints
// are per-owner sequence positions; re-reading a range always yields the same
// records.
type FeedbackCorpusService interface {
	Record(ctx context.Context, ownerID, projectID, pageImageID, sourceRecognitionID uuid.UUID, correctedText string) (*types.FeedbackRecord, error)
	CountSince(ctx context.Context, ownerID uuid.UUID, checkpoint int64) (int64, error)
	Materialize(ctx context.Context, ownerID uuid.UUID, fromCheckpoint, toCheckpoint int64) ([]*types.FeedbackRecord, error)
	CurrentCheckpoint(ctx context.Context, ownerID uuid.UUID) (int64, error)
}

type feedbackCorpusService struct {
	db           *gorm.DB
	log          *logger.Logger
	feedbackRepo repos.FeedbackRepo
	recogRepo    repos.RecognitionRepo
	permissions  PermissionService
}

func NewFeedbackCorpusService(
	db *gorm.DB,
	baseLog *logger.Logger,
	feedbackRepo repos.FeedbackRepo,
	recogRepo repos.RecognitionRepo,
	permissions PermissionService,
) FeedbackCorpusService {
	return &feedbackCorpusService{
		db:           db,
		log:          baseLog.With("service", "FeedbackCorpusService"),
		feedbackRepo: feedbackRepo,
		recogRepo:    recogRepo,
		permissions:  permissions,
	}
}

func (fcs *feedbackCorpusService) Record(ctx context.Context, ownerID, projectID, pageImageID, sourceRecognitionID uuid.UUID, correctedText string) (*types.FeedbackRecord, error) {
	if strings.TrimSpace(correctedText) == "" {
		return nil, fmt.Errorf("%w: corrected text is empty", ErrInvalidReference)
	}

	allowed, err := fcs.permissions.HasPermission(ctx, ownerID, projectID, types.PermissionModelEditor)
	if err != nil {
		return nil, fmt.Errorf("check permission: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: user lacks model_editor on project", ErrForbidden)
	}

	sources, err := fcs.recogRepo.GetByIDs(ctx, nil, []uuid.UUID{sourceRecognitionID})
	if err != nil {
		return nil, fmt.Errorf("load source recognition: %w", err)
	}
	if len(sources) == 0 || sources[0] == nil {
		return nil, fmt.Errorf("%w: source recognition not found", ErrInvalidReference)
	}
	source := sources[0]
	if source.ProjectID != projectID || source.OwnerID != ownerID || source.PageImageID != pageImageID {
		return nil, fmt.Errorf("%w: source recognition does not match project/page/owner", ErrInvalidReference)
	}

	rec := &types.FeedbackRecord{
		ID:                  uuid.New(),
		OwnerID:             ownerID,
		ProjectID:           projectID,
		PageImageID:         pageImageID,
		SourceRecognitionID: sourceRecognitionID,
		CorrectedText:       correctedText,
		CreatedAt:           time.Now(),
	}
	// CreateWithNextSeq commits before we return, so the record is durable
	// before the caller sees an acknowledgment.
	if _, err := fcs.feedbackRepo.CreateWithNextSeq(ctx, nil, rec); err != nil {
		return nil, fmt.Errorf("append feedback: %w", err)
	}
	return rec, nil
}

func (fcs *feedbackCorpusService) CountSince(ctx context.Context, ownerID uuid.UUID, checkpoint int64) (int64, error) {
	return fcs.feedbackRepo.CountSince(ctx, nil, ownerID, checkpoint)
}

func (fcs *feedbackCorpusService) Materialize(ctx context.Context, ownerID uuid.UUID, fromCheckpoint, toCheckpoint int64) ([]*types.FeedbackRecord, error) {
	if fromCheckpoint > toCheckpoint {
		return nil, fmt.Errorf("%w: checkpoint range inverted", ErrInvalidReference)
	}
	return fcs.feedbackRepo.GetRange(ctx, nil, ownerID, fromCheckpoint, toCheckpoint)
}

func (fcs *feedbackCorpusService) CurrentCheckpoint(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	return fcs.feedbackRepo.MaxSeqForOwner(ctx, nil, ownerID)
}
