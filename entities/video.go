package entities

import (
	"github.com/google/uuid"
	"lesson-worker/constant"
	"time"
)

type Video struct {
	ID            uuid.UUID            `json:"id" gorm:"type:uuid;primaryKey"`
	Title         string               `json:"title" gorm:"type:varchar(255);not null"`
	FilePath      string               `json:"file_path" gorm:"type:varchar(500);not null;default:''"`
	ThumbnailPath *string              `json:"thumbnail_path" gorm:"type:varchar(500)"`
	Duration      *float64             `json:"duration"`
	FileSize      *int64               `json:"file_size" gorm:"type:bigint"`
	Format        *string              `json:"format" gorm:"type:varchar(50)"`
	Resolution    *string              `json:"resolution" gorm:"type:varchar(20)"`
	Status        constant.VideoStatus `json:"status" gorm:"type:varchar(20);not null;default:'UPLOADING'"`
	Subtitles     []Subtitle           `json:"-" gorm:"foreignKey:VideoId;constraint:OnDelete:CASCADE"`
	Tasks         []ProcessingTask     `json:"-" gorm:"foreignKey:VideoId;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func (Video) TableName() string {
	return "videos"
}
