package types

import (
	"github.com/google/uuid"
	"time"
)

const (
	ModelStatusActive     = "active"
	ModelStatusSuperseded = "superseded"
)

// ModelVersion is one published personal model for an owner. Version 0 is the
// shared base model and never exists as a row; it is resolved implicitly.
type ModelVersion struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID           uuid.UUID `gorm:"type:uuid;not null;index:idx_model_version_owner;uniqueIndex:uq_model_version_owner_version" json:"owner_id"`
	VersionNumber     int       `gorm:"column:version_number;not null;uniqueIndex:uq_model_version_owner_version" json:"version_number"`
	StorageRef        string    `gorm:"column:storage_ref;not null" json:"storage_ref"`
	TrainedCheckpoint int64     `gorm:"column:trained_checkpoint;not null;default:0" json:"trained_checkpoint"`
	Status            string    `gorm:"column:status;not null;index:idx_model_version_owner" json:"status"` // active|superseded
	CreatedAt         time.Time `gorm:"not null;index" json:"created_at"`
}

func (ModelVersion) TableName() string {
	return "model_version"
}
