package entities

import (
	"github.com/google/uuid"
	"time"
)

type Course struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Title       string    `json:"title" gorm:"type:varchar(255);not null"`
	Description *string   `json:"description" gorm:"type:text"`
	Level       *string   `json:"level" gorm:"type:varchar(50)"`
	Units       []Unit    `json:"units,omitempty" gorm:"foreignKey:CourseId;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Course) TableName() string {
	return "courses"
}

type Unit struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CourseId   uuid.UUID `json:"course_id" gorm:"type:uuid;not null;index"`
	Title      string    `json:"title" gorm:"type:varchar(255);not null"`
	OrderIndex int       `json:"order_index" gorm:"not null;default:0"`
	Lessons    []Lesson  `json:"lessons,omitempty" gorm:"foreignKey:UnitId;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Unit) TableName() string {
	return "units"
}
