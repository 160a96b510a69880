package entities

import (
	"github.com/google/uuid"
	"lesson-worker/constant"
	"time"
)

type ProcessingTask struct {
	ID           uuid.UUID           `json:"id" gorm:"type:uuid;primaryKey"`
	VideoId      uuid.UUID           `json:"video_id" gorm:"type:uuid;not null;index"`
	TaskType     constant.TaskType   `json:"task_type" gorm:"type:varchar(30);not null"`
	Status       constant.TaskStatus `json:"status" gorm:"type:varchar(20);not null;default:'PENDING';index"`
	Progress     int                 `json:"progress" gorm:"not null;default:0"`
	ErrorMessage *string             `json:"error_message" gorm:"type:text"`
	StartedAt    *time.Time          `json:"started_at"`
	CompletedAt  *time.Time          `json:"completed_at"`
	CreatedAt    time.Time           `json:"created_at"`
}

func (ProcessingTask) TableName() string {
	return "processing_tasks"
}
