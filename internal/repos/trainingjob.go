package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/manuscript-backend/internal/logger"
	"github.com/yungbote/manuscript-backend/internal/types"
)

type TrainingJobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, jobs []*types.TrainingJob) ([]*types.TrainingJob, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.TrainingJob, error)
	GetInFlightForOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) (*types.TrainingJob, error)
	ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) ([]*types.TrainingJob, error)

	// LastSucceededCheckpoint is the corpus position of the owner's most recent
	// successful run; a fresh request re-derives its range from here.
	LastSucceededCheckpoint(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) (int64, error)

	// ClaimNextQueued picks the oldest queued job and flips it to running with a
	// compare-and-set on status, so exactly one worker wins a given job even
	// with several workers polling. Returns nil when there is nothing to claim
	// or the CAS lost.
	ClaimNextQueued(ctx context.Context, tx *gorm.DB) (*types.TrainingJob, error)

	// ClaimJob is the same CAS for one specific job id.
	ClaimJob(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error)

	CancelQueued(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error)
	MarkSucceeded(ctx context.Context, tx *gorm.DB, id uuid.UUID, resultingVersion int) (bool, error)
	MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string) (bool, error)
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error

	// FailStaleRunning force-fails running jobs whose last heartbeat (or start,
	// for rows that never heartbeat) predates the cutoff, so a wedged run
	// cannot hold the owner's single-flight slot forever. A healthy long
	// fine-tune keeps heartbeating and is left alone.
	FailStaleRunning(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type trainingJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTrainingJobRepo(db *gorm.DB, baseLog *logger.Logger) TrainingJobRepo {
	repoLog := baseLog.With("repo", "TrainingJobRepo")
	return &trainingJobRepo{db: db, log: repoLog}
}

func (r *trainingJobRepo) Create(ctx context.Context, tx *gorm.DB, jobs []*types.TrainingJob) ([]*types.TrainingJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(jobs) == 0 {
		return []*types.TrainingJob{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *trainingJobRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.TrainingJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.TrainingJob
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

func (r *trainingJobRepo) GetInFlightForOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) (*types.TrainingJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var job types.TrainingJob
	err := transaction.WithContext(ctx).
		Where("owner_id = ? AND status IN ?", ownerID, []string{types.JobStatusQueued, types.JobStatusRunning}).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *trainingJobRepo) ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) ([]*types.TrainingJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.TrainingJob
	if err := transaction.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *trainingJobRepo) LastSucceededCheckpoint(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	row := struct{ Max int64 }{}
	err := transaction.WithContext(ctx).
		Model(&types.TrainingJob{}).
		Where("owner_id = ? AND status = ?", ownerID, types.JobStatusSucceeded).
		Select("COALESCE(MAX(checkpoint_target), 0) AS max").
		Scan(&row).Error
	if err != nil {
		return 0, err
	}
	return row.Max, nil
}

func (r *trainingJobRepo) ClaimNextQueued(ctx context.Context, tx *gorm.DB) (*types.TrainingJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var claimed *types.TrainingJob

	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var job types.TrainingJob

		q := txx.Where("status = ?", types.JobStatusQueued).Order("created_at ASC")
		if txx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}

		now := time.Now()
		res := txx.Model(&types.TrainingJob{}).
			Where("id = ? AND status = ?", job.ID, types.JobStatusQueued).
			Updates(map[string]interface{}{
				"status":       types.JobStatusRunning,
				"started_at":   now,
				"heartbeat_at": now,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Someone else won the CAS; the next tick will try again.
			return nil
		}

		job.Status = types.JobStatusRunning
		job.StartedAt = &now
		job.HeartbeatAt = &now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *trainingJobRepo) ClaimJob(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	res := transaction.WithContext(ctx).
		Model(&types.TrainingJob{}).
		Where("id = ? AND status = ?", id, types.JobStatusQueued).
		Updates(map[string]interface{}{
			"status":       types.JobStatusRunning,
			"started_at":   now,
			"heartbeat_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *trainingJobRepo) CancelQueued(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	res := transaction.WithContext(ctx).
		Model(&types.TrainingJob{}).
		Where("id = ? AND status = ?", id, types.JobStatusQueued).
		Updates(map[string]interface{}{
			"status":      types.JobStatusCanceled,
			"finished_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *trainingJobRepo) MarkSucceeded(ctx context.Context, tx *gorm.DB, id uuid.UUID, resultingVersion int) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	res := transaction.WithContext(ctx).
		Model(&types.TrainingJob{}).
		Where("id = ? AND status = ?", id, types.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":            types.JobStatusSucceeded,
			"resulting_version": resultingVersion,
			"finished_at":       now,
			"updated_at":        now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *trainingJobRepo) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	res := transaction.WithContext(ctx).
		Model(&types.TrainingJob{}).
		Where("id = ? AND status = ?", id, types.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":      types.JobStatusFailed,
			"error":       reason,
			"finished_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *trainingJobRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.TrainingJob{}).
		Where("id = ? AND status = ?", id, types.JobStatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func (r *trainingJobRepo) FailStaleRunning(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	res := transaction.WithContext(ctx).
		Model(&types.TrainingJob{}).
		Where("status = ? AND COALESCE(heartbeat_at, started_at) < ?", types.JobStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":      types.JobStatusFailed,
			"error":       types.JobFailureTimeout,
			"finished_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
