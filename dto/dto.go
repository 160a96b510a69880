package dto

import (
	"github.com/google/uuid"
	"lesson-worker/entities"
	"time"
)

// PipelineMessage is the queue payload. The job row it names is the source of
// truth; the message is only a dispatch.
type PipelineMessage struct {
	JobId      uuid.UUID `json:"jobId"`
	LessonId   uuid.UUID `json:"lessonId"`
	Generation int       `json:"generation"`
}

type CreateCourseRequest struct {
	Title       string  `json:"title" binding:"required,max=255"`
	Description *string `json:"description"`
	Level       *string `json:"level"`
}

type CreateUnitRequest struct {
	Title      string `json:"title" binding:"required,max=255"`
	OrderIndex *int   `json:"order_index"`
}

type ProcessLessonRequest struct {
	Force bool `json:"force"`
}

type TriggerResponse struct {
	JobId      uuid.UUID `json:"job_id"`
	LessonId   uuid.UUID `json:"lesson_id"`
	Generation int       `json:"generation"`
	Status     string    `json:"status"`
}

type JournalEntry struct {
	Id         uint64                 `json:"id"`
	StepName   string                 `json:"step_name"`
	Action     string                 `json:"action"`
	Generation int                    `json:"generation"`
	Context    map[string]interface{} `json:"context"`
	CreatedAt  time.Time              `json:"created_at"`
}

type LessonStatusResponse struct {
	LessonId         uuid.UUID     `json:"lesson_id"`
	VideoId          *uuid.UUID    `json:"video_id"`
	ProcessingStatus string        `json:"processing_status"`
	ProgressPercent  int           `json:"progress_percent"`
	Generation       int           `json:"generation"`
	LastEntry        *JournalEntry `json:"last_entry,omitempty"`
	Error            string        `json:"error,omitempty"`
}

type SubTaskProgress struct {
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type VideoProgressResponse struct {
	VideoId   uuid.UUID         `json:"video_id"`
	Status    string            `json:"status"`
	Progress  int               `json:"progress"`
	Tasks     []SubTaskProgress `json:"tasks"`
	StartedAt *time.Time        `json:"started_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type CourseLessonProgress struct {
	LessonId         uuid.UUID      `json:"lesson_id"`
	Title            string         `json:"title"`
	ProcessingStatus string         `json:"processing_status"`
	ProgressPercent  int            `json:"progress_percent"`
	Journal          []JournalEntry `json:"journal"`
}

type CourseProgressResponse struct {
	CourseId uuid.UUID              `json:"course_id"`
	Lessons  []CourseLessonProgress `json:"lessons"`
}

type TaskItem struct {
	Id          uuid.UUID  `json:"id"`
	VideoId     uuid.UUID  `json:"video_id"`
	TaskType    string     `json:"task_type"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type TaskListResponse struct {
	Total  int64      `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
	Items  []TaskItem `json:"items"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type JoinCourseResponse struct {
	CourseId uuid.UUID `json:"course_id"`
	IsActive bool      `json:"is_active"`
	JoinedAt time.Time `json:"joined_at"`
}

type ProgressUpdateRequest struct {
	Status              string `json:"status" binding:"required"`
	ProgressPercent     int    `json:"progress_percent" binding:"min=0,max=100"`
	LastPositionSeconds int    `json:"last_position_seconds" binding:"min=0"`
}

type LearningStatusResponse struct {
	CourseId             uuid.UUID  `json:"course_id"`
	TotalLessons         int64      `json:"total_lessons"`
	CompletedLessons     int64      `json:"completed_lessons"`
	ProgressPercentTotal int        `json:"progress_percent_total"`
	LastAccessedLessonId *uuid.UUID `json:"last_accessed_lesson_id"`
	IsCompleted          bool       `json:"is_completed"`
}

// UpdateSubtitleRequest carries only the fields being edited.
type UpdateSubtitleRequest struct {
	OriginalText *string  `json:"original_text"`
	Translation  *string  `json:"translation"`
	Phonetic     *string  `json:"phonetic"`
	StartTime    *float64 `json:"start_time"`
	EndTime      *float64 `json:"end_time"`
}

type LessonContentResponse struct {
	LessonId      uuid.UUID            `json:"lesson_id"`
	Title         string               `json:"title"`
	VideoPath     string               `json:"video_path"`
	ThumbnailPath *string              `json:"thumbnail_path"`
	Duration      *float64             `json:"duration"`
	SubtitleUrl   string               `json:"subtitle_url"`
	Subtitles     []*entities.Subtitle `json:"subtitles"`
}
