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

type FeedbackRepo interface {
	// CreateWithNextSeq assigns the owner's next sequence number and inserts the
	// record in one transaction. The corpus is append-only; rows are never
	// updated after insert.
	CreateWithNextSeq(ctx context.Context, tx *gorm.DB, rec *types.FeedbackRecord) (*types.FeedbackRecord, error)
	MaxSeqForOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) (int64, error)
	CountSince(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, checkpoint int64) (int64, error)
	GetRange(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, fromCheckpoint, toCheckpoint int64) ([]*types.FeedbackRecord, error)
}

type feedbackRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFeedbackRepo(db *gorm.DB, baseLog *logger.Logger) FeedbackRepo {
	repoLog := baseLog.With("repo", "FeedbackRepo")
	return &feedbackRepo{db: db, log: repoLog}
}

func (r *feedbackRepo) CreateWithNextSeq(ctx context.Context, tx *gorm.DB, rec *types.FeedbackRecord) (*types.FeedbackRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		q := txx.Model(&types.FeedbackRecord{}).Where("owner_id = ?", rec.OwnerID)
		if txx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		row := struct{ Max int64 }{}
		if err := q.Select("COALESCE(MAX(seq), 0) AS max").Scan(&row).Error; err != nil {
			return err
		}
		rec.Seq = row.Max + 1
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now()
		}
		return txx.Create(rec).Error
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *feedbackRepo) MaxSeqForOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	row := struct{ Max int64 }{}
	err := transaction.WithContext(ctx).
		Model(&types.FeedbackRecord{}).
		Where("owner_id = ?", ownerID).
		Select("COALESCE(MAX(seq), 0) AS max").
		Scan(&row).Error
	if err != nil {
		return 0, err
	}
	return row.Max, nil
}

func (r *feedbackRepo) CountSince(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, checkpoint int64) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.FeedbackRecord{}).
		Where("owner_id = ? AND seq > ?", ownerID, checkpoint).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *feedbackRepo) GetRange(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, fromCheckpoint, toCheckpoint int64) ([]*types.FeedbackRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.FeedbackRecord
	err := transaction.WithContext(ctx).
		Where("owner_id = ? AND seq > ? AND seq <= ?", ownerID, fromCheckpoint, toCheckpoint).
		Order("seq ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
