package types

import (
	"github.com/google/uuid"
	"time"
)

type Project struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID     uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	Owner       *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:OwnerID;references:ID" json:"owner,omitempty"`
	Name        string    `gorm:"column:name;not null;index" json:"name"`
	Description string    `gorm:"column:description" json:"description"`
	IsPublic    bool      `gorm:"column:is_public;not null;default:false" json:"is_public"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Project) TableName() string {
	return "project"
}

// PermissionLevel is a closed set; admin covers model_editor covers viewer.
type PermissionLevel string

const (
	PermissionViewer      PermissionLevel = "viewer"
	PermissionModelEditor PermissionLevel = "model_editor"
	PermissionAdmin       PermissionLevel = "admin"
)

func (l PermissionLevel) Valid() bool {
	switch l {
	case PermissionViewer, PermissionModelEditor, PermissionAdmin:
		return true
	}
	return false
}

func (l PermissionLevel) rank() int {
	switch l {
	case PermissionViewer:
		return 1
	case PermissionModelEditor:
		return 2
	case PermissionAdmin:
		return 3
	}
	return 0
}

func (l PermissionLevel) Covers(required PermissionLevel) bool {
	return l.rank() >= required.rank() && required.rank() > 0
}

type ProjectPermission struct {
	UserID    uuid.UUID       `gorm:"type:uuid;primaryKey" json:"user_id"`
	ProjectID uuid.UUID       `gorm:"type:uuid;primaryKey" json:"project_id"`
	User      *User           `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	Project   *Project        `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProjectID;references:ID" json:"project,omitempty"`
	Level     PermissionLevel `gorm:"column:level;not null" json:"level"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

func (ProjectPermission) TableName() string {
	return "project_permission"
}
