package types

import (
	"github.com/google/uuid"
	"time"
)

// FeedbackRecord is an immutable correction on a recognition result. Records
// are append-only; Seq is monotonic per owner and is what training checkpoints
// count against.
type FeedbackRecord struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Seq                 int64     `gorm:"column:seq;not null;uniqueIndex:uq_feedback_owner_seq" json:"seq"`
	OwnerID             uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_feedback_owner_seq" json:"owner_id"`
	ProjectID           uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	PageImageID         uuid.UUID `gorm:"type:uuid;not null;index" json:"page_image_id"`
	SourceRecognitionID uuid.UUID `gorm:"type:uuid;not null;index" json:"source_recognition_id"`
	CorrectedText       string    `gorm:"column:corrected_text;not null" json:"corrected_text"`
	CreatedAt           time.Time `gorm:"not null;index" json:"created_at"`
}

func (FeedbackRecord) TableName() string {
	return "feedback_record"
}
