package types

import (
	"github.com/google/uuid"
	"time"
)

// PageImage is one uploaded handwriting page stored in the bucket.
type PageImage struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID    uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	Project      *Project  `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProjectID;references:ID" json:"project,omitempty"`
	UploaderID   uuid.UUID `gorm:"type:uuid;not null;index" json:"uploader_id"`
	OriginalName string    `gorm:"column:original_name;not null" json:"original_name"`
	MimeType     string    `gorm:"column:mime_type;not null" json:"mime_type"`
	SizeBytes    int64     `gorm:"column:size_bytes" json:"size_bytes"`
	StorageKey   string    `gorm:"column:storage_key;not null" json:"storage_key"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (PageImage) TableName() string {
	return "page_image"
}
