package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/manuscript-backend/internal/logger"
	"github.com/yungbote/manuscript-backend/internal/types"
)

type PageImageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, pages []*types.PageImage) ([]*types.PageImage, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.PageImage, error)
	ListByProjectID(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) ([]*types.PageImage, error)
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type pageImageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPageImageRepo(db *gorm.DB, baseLog *logger.Logger) PageImageRepo {
	repoLog := baseLog.With("repo", "PageImageRepo")
	return &pageImageRepo{db: db, log: repoLog}
}

func (r *pageImageRepo) Create(ctx context.Context, tx *gorm.DB, pages []*types.PageImage) ([]*types.PageImage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(pages) == 0 {
		return []*types.PageImage{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&pages).Error; err != nil {
		return nil, err
	}
	return pages, nil
}

func (r *pageImageRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.PageImage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.PageImage
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

func (r *pageImageRepo) ListByProjectID(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) ([]*types.PageImage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.PageImage
	if err := transaction.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *pageImageRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.PageImage{}).Error
}
