package types

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"time"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
	JobStatusCanceled  = "canceled"
)

const JobFailureTimeout = "timeout"

// TrainingJob is one fine-tune run over a corpus checkpoint range. At most one
// job per owner may be queued or running at any time.
type TrainingJob struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID           uuid.UUID      `gorm:"type:uuid;not null;index:idx_training_job_owner_status" json:"owner_id"`
	Status            string         `gorm:"column:status;not null;index:idx_training_job_owner_status" json:"status"` // queued|running|succeeded|failed|canceled
	CheckpointAtStart int64          `gorm:"column:checkpoint_at_start;not null;default:0" json:"checkpoint_at_start"`
	CheckpointTarget  int64          `gorm:"column:checkpoint_target;not null;default:0" json:"checkpoint_target"`
	ResultingVersion  *int           `gorm:"column:resulting_version" json:"resulting_version,omitempty"`
	Error             string         `gorm:"column:error" json:"error"`
	StartedAt         *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt        *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	HeartbeatAt       *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	Metadata          datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt         time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null;index" json:"updated_at"`
}

func (TrainingJob) TableName() string {
	return "training_job"
}

func (j *TrainingJob) Terminal() bool {
	switch j.Status {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}
