package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/manuscript-backend/internal/logger"
	"github.com/yungbote/manuscript-backend/internal/types"
)

type RecognitionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, results []*types.RecognitionResult) ([]*types.RecognitionResult, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.RecognitionResult, error)
	ListByProjectID(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) ([]*types.RecognitionResult, error)
}

type recognitionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecognitionRepo(db *gorm.DB, baseLog *logger.Logger) RecognitionRepo {
	repoLog := baseLog.With("repo", "RecognitionRepo")
	return &recognitionRepo{db: db, log: repoLog}
}

func (r *recognitionRepo) Create(ctx context.Context, tx *gorm.DB, results []*types.RecognitionResult) ([]*types.RecognitionResult, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(results) == 0 {
		return []*types.RecognitionResult{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *recognitionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.RecognitionResult, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.RecognitionResult
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *recognitionRepo) ListByProjectID(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) ([]*types.RecognitionResult, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.RecognitionResult
	if err := transaction.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
