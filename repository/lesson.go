package repository

import (
	"context"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"lesson-worker/constant"
	"lesson-worker/entities"
	"time"
)

type LessonRepository interface {
	CreateLesson(ctx context.Context, lesson *entities.Lesson) error
	FindLessonById(ctx context.Context, id uuid.UUID) (*entities.Lesson, error)
	FindLessonByVideoId(ctx context.Context, videoId uuid.UUID) (*entities.Lesson, error)
	LessonsForCourse(ctx context.Context, courseId uuid.UUID) ([]*entities.Lesson, error)
	SoftDeleteLesson(ctx context.Context, id uuid.UUID) error
	GuardGeneration(ctx context.Context, lessonId uuid.UUID, generation int) error
	SetLessonState(ctx context.Context, lessonId uuid.UUID, generation int, status constant.LessonStatus, progress int) error
	SetLessonStatus(ctx context.Context, lessonId uuid.UUID, generation int, status constant.LessonStatus) error
	ResetLesson(ctx context.Context, lessonId uuid.UUID, fromGeneration int) (int, error)
	DeletedLessonsWithMedia(ctx context.Context) ([]*entities.Lesson, error)
	DetachVideo(ctx context.Context, lessonId uuid.UUID) error
}

func (r *repo) CreateLesson(ctx context.Context, lesson *entities.Lesson) error {
	return r.conn(ctx).Create(lesson).Error
}

func (r *repo) FindLessonById(ctx context.Context, id uuid.UUID) (*entities.Lesson, error) {
	lesson := &entities.Lesson{}
	if err := r.conn(ctx).First(lesson, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return lesson, nil
}

func (r *repo) FindLessonByVideoId(ctx context.Context, videoId uuid.UUID) (*entities.Lesson, error) {
	lesson := &entities.Lesson{}
	if err := r.conn(ctx).First(lesson, "video_id = ?", videoId).Error; err != nil {
		return nil, notFound(err)
	}
	return lesson, nil
}

func (r *repo) LessonsForCourse(ctx context.Context, courseId uuid.UUID) ([]*entities.Lesson, error) {
	var lessons []*entities.Lesson
	err := r.conn(ctx).
		Joins("JOIN units ON units.id = lessons.unit_id").
		Where("units.course_id = ? AND lessons.is_deleted = ?", courseId, false).
		Order("units.order_index ASC").
		Order("lessons.order_index ASC").
		Find(&lessons).Error
	if err != nil {
		return nil, err
	}
	return lessons, nil
}

func (r *repo) SoftDeleteLesson(ctx context.Context, id uuid.UUID) error {
	res := r.conn(ctx).Model(&entities.Lesson{}).Where("id = ?", id).Update("is_deleted", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repo) guarded(ctx context.Context, lessonId uuid.UUID, generation int, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.conn(ctx).Model(&entities.Lesson{}).
		Where("id = ? AND generation = ?", lessonId, generation).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleGeneration
	}
	return nil
}

// GuardGeneration locks the lesson row for the rest of the transaction and
// fails with ErrStaleGeneration once a reprocess has bumped the generation.
func (r *repo) GuardGeneration(ctx context.Context, lessonId uuid.UUID, generation int) error {
	return r.guarded(ctx, lessonId, generation, map[string]interface{}{})
}

func (r *repo) SetLessonState(ctx context.Context, lessonId uuid.UUID, generation int, status constant.LessonStatus, progress int) error {
	return r.guarded(ctx, lessonId, generation, map[string]interface{}{
		"processing_status": status,
		"progress_percent":  progress,
	})
}

func (r *repo) SetLessonStatus(ctx context.Context, lessonId uuid.UUID, generation int, status constant.LessonStatus) error {
	return r.guarded(ctx, lessonId, generation, map[string]interface{}{
		"processing_status": status,
	})
}

// ResetLesson moves the lesson to a new generation with PENDING/0. It is a
// compare-and-swap on fromGeneration so two racing reprocess requests cannot
// both win.
func (r *repo) ResetLesson(ctx context.Context, lessonId uuid.UUID, fromGeneration int) (int, error) {
	err := r.guarded(ctx, lessonId, fromGeneration, map[string]interface{}{
		"generation":        gorm.Expr("generation + 1"),
		"processing_status": constant.LessonPending,
		"progress_percent":  0,
	})
	if err != nil {
		return 0, err
	}
	return fromGeneration + 1, nil
}

func (r *repo) DeletedLessonsWithMedia(ctx context.Context) ([]*entities.Lesson, error) {
	var lessons []*entities.Lesson
	err := r.conn(ctx).
		Where("is_deleted = ? AND video_id IS NOT NULL", true).
		Order("updated_at ASC").
		Find(&lessons).Error
	if err != nil {
		return nil, err
	}
	return lessons, nil
}

func (r *repo) DetachVideo(ctx context.Context, lessonId uuid.UUID) error {
	return r.conn(ctx).Model(&entities.Lesson{}).
		Where("id = ?", lessonId).
		Update("video_id", nil).Error
}
