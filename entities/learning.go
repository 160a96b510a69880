package entities

import (
	"github.com/google/uuid"
	"lesson-worker/constant"
	"time"
)

// UserCourse is an enrollment. A user has at most one active course.
type UserCourse struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserId         string    `json:"user_id" gorm:"type:varchar(64);not null;uniqueIndex:uq_user_course_enrollment,priority:1"`
	CourseId       uuid.UUID `json:"course_id" gorm:"type:uuid;not null;uniqueIndex:uq_user_course_enrollment,priority:2"`
	Course         *Course   `json:"-" gorm:"foreignKey:CourseId;constraint:OnDelete:CASCADE"`
	IsActive       bool      `json:"is_active" gorm:"not null;default:false"`
	JoinedAt       time.Time `json:"joined_at" gorm:"not null"`
	LastAccessedAt time.Time `json:"last_accessed_at" gorm:"not null"`
}

func (UserCourse) TableName() string {
	return "user_course_enrollments"
}

type UserProgress struct {
	ID                  uuid.UUID               `json:"id" gorm:"type:uuid;primaryKey"`
	UserId              string                  `json:"user_id" gorm:"type:varchar(64);not null;uniqueIndex:uq_user_lesson_progress,priority:1"`
	LessonId            uuid.UUID               `json:"lesson_id" gorm:"type:uuid;not null;uniqueIndex:uq_user_lesson_progress,priority:2;index"`
	Lesson              *Lesson                 `json:"-" gorm:"foreignKey:LessonId;constraint:OnDelete:CASCADE"`
	Status              constant.LearningStatus `json:"status" gorm:"type:varchar(20);not null;default:'LOCKED'"`
	ProgressPercent     int                     `json:"progress_percent" gorm:"not null;default:0"`
	LastPositionSeconds int                     `json:"last_position_seconds" gorm:"not null;default:0"`
	CompletedAt         *time.Time              `json:"completed_at"`
	CreatedAt           time.Time               `json:"created_at"`
	UpdatedAt           time.Time               `json:"updated_at"`
}

func (UserProgress) TableName() string {
	return "user_progress"
}
