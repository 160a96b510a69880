package entities

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"lesson-worker/constant"
	"time"
)

// TaskJournal rows are append-only. The auto-increment ID totally orders
// entries of a lesson even when timestamps collide.
type TaskJournal struct {
	ID         uint64            `json:"id" gorm:"primaryKey;autoIncrement"`
	LessonId   uuid.UUID         `json:"lesson_id" gorm:"type:uuid;not null;index:ix_task_journals_lesson_step,priority:1"`
	StepName   constant.Step     `json:"step_name" gorm:"type:varchar(50);not null;index:ix_task_journals_lesson_step,priority:2"`
	Action     constant.Action   `json:"action" gorm:"type:varchar(20);not null"`
	Generation int               `json:"generation" gorm:"not null;default:0"`
	Context    datatypes.JSONMap `json:"context"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null"`
}

func (TaskJournal) TableName() string {
	return "task_journals"
}

// Error returns the error text recorded in a FAIL entry's context, if any.
func (j TaskJournal) Error() string {
	if j.Context == nil {
		return ""
	}
	if s, ok := j.Context["error"].(string); ok {
		return s
	}
	return ""
}
