package repository

import (
	"context"
	"github.com/google/uuid"
	"lesson-worker/constant"
	"lesson-worker/entities"
	"time"
)

type LearningRepository interface {
	JoinCourse(ctx context.Context, userId string, courseId uuid.UUID, at time.Time) (*entities.UserCourse, error)
	ActiveEnrollment(ctx context.Context, userId string) (*entities.UserCourse, error)
	FindProgress(ctx context.Context, userId string, lessonId uuid.UUID) (*entities.UserProgress, error)
	SaveProgress(ctx context.Context, progress *entities.UserProgress) error
	FirstLesson(ctx context.Context, courseId uuid.UUID) (*entities.Lesson, error)
	NextLesson(ctx context.Context, lesson *entities.Lesson) (*entities.Lesson, error)
	CountCourseLessons(ctx context.Context, courseId uuid.UUID) (int64, error)
	CountCompletedLessons(ctx context.Context, userId string, courseId uuid.UUID) (int64, error)
	LastAccessedProgress(ctx context.Context, userId string, courseId uuid.UUID) (*entities.UserProgress, error)
}

// JoinCourse makes courseId the user's only active enrollment, creating it on
// first join.
func (r *repo) JoinCourse(ctx context.Context, userId string, courseId uuid.UUID, at time.Time) (*entities.UserCourse, error) {
	enrollment := &entities.UserCourse{}
	err := r.Transaction(ctx, func(ctx context.Context) error {
		err := r.conn(ctx).Model(&entities.UserCourse{}).
			Where("user_id = ? AND course_id <> ?", userId, courseId).
			Update("is_active", false).Error
		if err != nil {
			return err
		}
		res := r.conn(ctx).Where("user_id = ? AND course_id = ?", userId, courseId).Limit(1).Find(enrollment)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			enrollment = &entities.UserCourse{
				UserId:         userId,
				CourseId:       courseId,
				IsActive:       true,
				JoinedAt:       at,
				LastAccessedAt: at,
			}
			return r.conn(ctx).Create(enrollment).Error
		}
		enrollment.IsActive = true
		enrollment.LastAccessedAt = at
		return r.conn(ctx).Model(enrollment).Updates(map[string]interface{}{
			"is_active":        true,
			"last_accessed_at": at,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return enrollment, nil
}

func (r *repo) ActiveEnrollment(ctx context.Context, userId string) (*entities.UserCourse, error) {
	enrollment := &entities.UserCourse{}
	err := r.conn(ctx).Where("user_id = ? AND is_active = ?", userId, true).Take(enrollment).Error
	if err != nil {
		return nil, notFound(err)
	}
	return enrollment, nil
}

func (r *repo) FindProgress(ctx context.Context, userId string, lessonId uuid.UUID) (*entities.UserProgress, error) {
	progress := &entities.UserProgress{}
	err := r.conn(ctx).Where("user_id = ? AND lesson_id = ?", userId, lessonId).Take(progress).Error
	if err != nil {
		return nil, notFound(err)
	}
	return progress, nil
}

// SaveProgress inserts a new record or overwrites an existing one.
func (r *repo) SaveProgress(ctx context.Context, progress *entities.UserProgress) error {
	if progress.ID == uuid.Nil {
		return r.conn(ctx).Create(progress).Error
	}
	return r.conn(ctx).Save(progress).Error
}

// FirstLesson returns the earliest live lesson of the course.
func (r *repo) FirstLesson(ctx context.Context, courseId uuid.UUID) (*entities.Lesson, error) {
	lesson := &entities.Lesson{}
	err := r.conn(ctx).
		Joins("JOIN units ON units.id = lessons.unit_id").
		Where("units.course_id = ? AND lessons.is_deleted = ?", courseId, false).
		Order("units.order_index ASC").
		Order("lessons.order_index ASC").
		Take(lesson).Error
	if err != nil {
		return nil, notFound(err)
	}
	return lesson, nil
}

// NextLesson returns the live lesson after lesson in course order: the next
// one in its unit, or else the first one of a later unit. ErrNotFound means
// lesson is the last.
func (r *repo) NextLesson(ctx context.Context, lesson *entities.Lesson) (*entities.Lesson, error) {
	next := &entities.Lesson{}
	res := r.conn(ctx).
		Where("unit_id = ? AND order_index > ? AND is_deleted = ?", lesson.UnitId, lesson.OrderIndex, false).
		Order("order_index ASC").
		Limit(1).
		Find(next)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		return next, nil
	}

	unit, err := r.FindUnitById(ctx, lesson.UnitId)
	if err != nil {
		return nil, err
	}
	next = &entities.Lesson{}
	err = r.conn(ctx).
		Joins("JOIN units ON units.id = lessons.unit_id").
		Where("units.course_id = ? AND units.order_index > ? AND lessons.is_deleted = ?", unit.CourseId, unit.OrderIndex, false).
		Order("units.order_index ASC").
		Order("lessons.order_index ASC").
		Take(next).Error
	if err != nil {
		return nil, notFound(err)
	}
	return next, nil
}

func (r *repo) CountCourseLessons(ctx context.Context, courseId uuid.UUID) (int64, error) {
	var count int64
	err := r.conn(ctx).Model(&entities.Lesson{}).
		Joins("JOIN units ON units.id = lessons.unit_id").
		Where("units.course_id = ? AND lessons.is_deleted = ?", courseId, false).
		Count(&count).Error
	return count, err
}

func (r *repo) CountCompletedLessons(ctx context.Context, userId string, courseId uuid.UUID) (int64, error) {
	var count int64
	err := r.conn(ctx).Model(&entities.UserProgress{}).
		Joins("JOIN lessons ON lessons.id = user_progress.lesson_id").
		Joins("JOIN units ON units.id = lessons.unit_id").
		Where("units.course_id = ? AND lessons.is_deleted = ?", courseId, false).
		Where("user_progress.user_id = ? AND user_progress.status = ?", userId, constant.LearningCompleted).
		Count(&count).Error
	return count, err
}

// LastAccessedProgress returns the user's most recently touched record in the
// course.
func (r *repo) LastAccessedProgress(ctx context.Context, userId string, courseId uuid.UUID) (*entities.UserProgress, error) {
	progress := &entities.UserProgress{}
	err := r.conn(ctx).
		Joins("JOIN lessons ON lessons.id = user_progress.lesson_id").
		Joins("JOIN units ON units.id = lessons.unit_id").
		Where("units.course_id = ? AND lessons.is_deleted = ?", courseId, false).
		Where("user_progress.user_id = ?", userId).
		Order("user_progress.updated_at DESC").
		Take(progress).Error
	if err != nil {
		return nil, notFound(err)
	}
	return progress, nil
}
