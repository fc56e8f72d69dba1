package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/manuscript-backend/internal/logger"
	"github.com/yungbote/manuscript-backend/internal/types"
)

type ModelVersionRepo interface {
	GetActiveByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) (*types.ModelVersion, error)
	ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) ([]*types.ModelVersion, error)

	// PublishNewVersion inserts the next version for the owner as active and
	// flips the prior active row to superseded, all in one transaction. There is
	// no point at which zero or two rows are active for the owner.
	PublishNewVersion(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, storageRef string, trainedCheckpoint int64) (*types.ModelVersion, error)
}

type modelVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewModelVersionRepo(db *gorm.DB, baseLog *logger.Logger) ModelVersionRepo {
	repoLog := baseLog.With("repo", "ModelVersionRepo")
	return &modelVersionRepo{db: db, log: repoLog}
}

func (r *modelVersionRepo) GetActiveByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) (*types.ModelVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if ownerID == uuid.Nil {
		return nil, nil
	}
	var mv types.ModelVersion
	err := transaction.WithContext(ctx).
		Where("owner_id = ? AND status = ?", ownerID, types.ModelStatusActive).
		Limit(1).
		Find(&mv).Error
	if err != nil {
		return nil, err
	}
	if mv.ID == uuid.Nil {
		return nil, nil
	}
	return &mv, nil
}

func (r *modelVersionRepo) ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) ([]*types.ModelVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ModelVersion
	if err := transaction.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("version_number DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *modelVersionRepo) PublishNewVersion(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, storageRef string, trainedCheckpoint int64) (*types.ModelVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var published *types.ModelVersion

	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		q := txx.Model(&types.ModelVersion{}).Where("owner_id = ?", ownerID)
		if txx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var maxVersion int
		row := struct{ Max int }{}
		if err := q.Select("COALESCE(MAX(version_number), 0) AS max").Scan(&row).Error; err != nil {
			return err
		}
		maxVersion = row.Max

		now := time.Now()
		if err := txx.Model(&types.ModelVersion{}).
			Where("owner_id = ? AND status = ?", ownerID, types.ModelStatusActive).
			Update("status", types.ModelStatusSuperseded).Error; err != nil {
			return err
		}

		mv := &types.ModelVersion{
			ID:                uuid.New(),
			OwnerID:           ownerID,
			VersionNumber:     maxVersion + 1,
			StorageRef:        storageRef,
			TrainedCheckpoint: trainedCheckpoint,
			Status:            types.ModelStatusActive,
			CreatedAt:         now,
		}
		if err := txx.Create(mv).Error; err != nil {
			return err
		}

		published = mv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return published, nil
}
