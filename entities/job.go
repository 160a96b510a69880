package entities

import (
	"github.com/google/uuid"
	"lesson-worker/constant"
	"time"
)

// Job is the durable, inspectable record of one pipeline dispatch. The queue
// message only carries its id.
type Job struct {
	ID         uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey"`
	EntityId   uuid.UUID          `json:"entity_id" gorm:"type:uuid;not null;index"`
	EntityType string             `json:"entity_type" gorm:"type:varchar(50);not null"`
	Status     constant.JobStatus `json:"status" gorm:"type:varchar(20);not null"`
	JobType    constant.JobType   `json:"job_type" gorm:"type:varchar(50);not null"`
	Generation int                `json:"generation" gorm:"not null;default:0"`
	Error      *string            `json:"error" gorm:"type:text"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func (Job) TableName() string {
	return "jobs"
}
