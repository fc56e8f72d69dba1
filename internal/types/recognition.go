package types

import (
	"github.com/google/uuid"
	"time"
)

// RecognitionResult is immutable once produced; ModelVersionUsed is a
// point-in-time snapshot and is never updated when newer models publish.
type RecognitionResult struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID          uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	ProjectID        uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	PageImageID      uuid.UUID `gorm:"type:uuid;not null;index" json:"page_image_id"`
	ModelVersionUsed int       `gorm:"column:model_version_used;not null" json:"model_version_used"`
	StorageRefUsed   string    `gorm:"column:storage_ref_used;not null" json:"storage_ref_used"`
	Text             string    `gorm:"column:text" json:"text"`
	Confidence       float64   `gorm:"column:confidence" json:"confidence"`
	CreatedAt        time.Time `gorm:"not null;index" json:"created_at"`
}

func (RecognitionResult) TableName() string {
	return "recognition_result"
}
