package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/manuscript-backend/internal/logger"
	"github.com/yungbote/manuscript-backend/internal/types"
)

type ProjectPermissionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, perms []*types.ProjectPermission) ([]*types.ProjectPermission, error)
	Get(ctx context.Context, tx *gorm.DB, userID, projectID uuid.UUID) (*types.ProjectPermission, error)
	UpdateLevel(ctx context.Context, tx *gorm.DB, userID, projectID uuid.UUID, level types.PermissionLevel) error
	Delete(ctx context.Context, tx *gorm.DB, userID, projectID uuid.UUID) error
	ListByProjectID(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) ([]*types.ProjectPermission, error)
}

type projectPermissionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectPermissionRepo(db *gorm.DB, baseLog *logger.Logger) ProjectPermissionRepo {
	repoLog := baseLog.With("repo", "ProjectPermissionRepo")
	return &projectPermissionRepo{db: db, log: repoLog}
}

func (r *projectPermissionRepo) Create(ctx context.Context, tx *gorm.DB, perms []*types.ProjectPermission) ([]*types.ProjectPermission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(perms) == 0 {
		return []*types.ProjectPermission{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

func (r *projectPermissionRepo) Get(ctx context.Context, tx *gorm.DB, userID, projectID uuid.UUID) (*types.ProjectPermission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var perm types.ProjectPermission
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND project_id = ?", userID, projectID).
		Limit(1).
		Find(&perm).Error
	if err != nil {
		return nil, err
	}
	if perm.UserID == uuid.Nil {
		return nil, nil
	}
	return &perm, nil
}

func (r *projectPermissionRepo) UpdateLevel(ctx context.Context, tx *gorm.DB, userID, projectID uuid.UUID, level types.PermissionLevel) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.ProjectPermission{}).
		Where("user_id = ? AND project_id = ?", userID, projectID).
		Updates(map[string]interface{}{
			"level":      level,
			"updated_at": time.Now(),
		}).Error
}

func (r *projectPermissionRepo) Delete(ctx context.Context, tx *gorm.DB, userID, projectID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("user_id = ? AND project_id = ?", userID, projectID).
		Delete(&types.ProjectPermission{}).Error
}

func (r *projectPermissionRepo) ListByProjectID(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) ([]*types.ProjectPermission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ProjectPermission
	if err := transaction.WithContext(ctx).
		Where("project_id = ?", projectID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
