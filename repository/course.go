package repository

import (
	"context"
	"github.com/google/uuid"
	"lesson-worker/entities"
)

type CourseRepository interface {
	CreateCourse(ctx context.Context, course *entities.Course) error
	FindCourseById(ctx context.Context, id uuid.UUID) (*entities.Course, error)
	CreateUnit(ctx context.Context, unit *entities.Unit) error
	FindUnitById(ctx context.Context, id uuid.UUID) (*entities.Unit, error)
	NextUnitOrder(ctx context.Context, courseId uuid.UUID) (int, error)
	NextLessonOrder(ctx context.Context, unitId uuid.UUID) (int, error)
}

func (r *repo) CreateCourse(ctx context.Context, course *entities.Course) error {
	return r.conn(ctx).Create(course).Error
}

func (r *repo) FindCourseById(ctx context.Context, id uuid.UUID) (*entities.Course, error) {
	course := &entities.Course{}
	if err := r.conn(ctx).First(course, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return course, nil
}

func (r *repo) CreateUnit(ctx context.Context, unit *entities.Unit) error {
	return r.conn(ctx).Create(unit).Error
}

func (r *repo) FindUnitById(ctx context.Context, id uuid.UUID) (*entities.Unit, error) {
	unit := &entities.Unit{}
	if err := r.conn(ctx).First(unit, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return unit, nil
}

func (r *repo) NextUnitOrder(ctx context.Context, courseId uuid.UUID) (int, error) {
	var next int
	err := r.conn(ctx).Model(&entities.Unit{}).
		Select("COALESCE(MAX(order_index), -1) + 1").
		Where("course_id = ?", courseId).
		Scan(&next).Error
	return next, err
}

func (r *repo) NextLessonOrder(ctx context.Context, unitId uuid.UUID) (int, error) {
	var next int
	err := r.conn(ctx).Model(&entities.Lesson{}).
		Select("COALESCE(MAX(order_index), -1) + 1").
		Where("unit_id = ?", unitId).
		Scan(&next).Error
	return next, err
}
