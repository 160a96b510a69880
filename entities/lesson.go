package entities

import (
	"github.com/google/uuid"
	"lesson-worker/constant"
	"time"
)

type Lesson struct {
	ID               uuid.UUID             `json:"id" gorm:"type:uuid;primaryKey"`
	UnitId           uuid.UUID             `json:"unit_id" gorm:"type:uuid;not null;index"`
	Title            string                `json:"title" gorm:"type:varchar(255);not null"`
	OrderIndex       int                   `json:"order_index" gorm:"not null;default:0"`
	VideoId          *uuid.UUID            `json:"video_id" gorm:"type:uuid;index"`
	Video            *Video                `json:"-" gorm:"foreignKey:VideoId;constraint:OnDelete:SET NULL"`
	IsDeleted        bool                  `json:"is_deleted" gorm:"not null;default:false;index"`
	ProcessingStatus constant.LessonStatus `json:"processing_status" gorm:"type:varchar(20);not null;default:'PENDING'"`
	ProgressPercent  int                   `json:"progress_percent" gorm:"not null;default:0"`
	// Generation increments on every reprocess. Pipeline writes are guarded by it.
	Generation int           `json:"generation" gorm:"not null;default:0"`
	Journal    []TaskJournal `json:"-" gorm:"foreignKey:LessonId;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (Lesson) TableName() string {
	return "lessons"
}
