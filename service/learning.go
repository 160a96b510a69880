package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"lesson-worker/constant"
	"lesson-worker/dto"
	"lesson-worker/entities"
	"lesson-worker/repository"
	"strings"
	"time"
)

// Learning tracks learners: which course each one is on and how far they got
// in every lesson.
type Learning struct {
	repo repository.Repository
	now  func() time.Time
}

func NewLearning(repo repository.Repository, now func() time.Time) *Learning {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Learning{repo: repo, now: now}
}

func requireUser(userId string) error {
	if strings.TrimSpace(userId) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return nil
}

// JoinCourse makes courseId the user's active course and unlocks its first
// lesson. Joining again only reactivates the enrollment.
func (l *Learning) JoinCourse(ctx context.Context, userId string, courseId uuid.UUID) (*entities.UserCourse, error) {
	if err := requireUser(userId); err != nil {
		return nil, err
	}
	if _, err := l.repo.FindCourseById(ctx, courseId); err != nil {
		return nil, err
	}

	var enrollment *entities.UserCourse
	err := l.repo.Transaction(ctx, func(ctx context.Context) error {
		var err error
		enrollment, err = l.repo.JoinCourse(ctx, userId, courseId, l.now())
		if err != nil {
			return err
		}
		first, err := l.repo.FirstLesson(ctx, courseId)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return l.unlock(ctx, userId, first.ID)
	})
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("user_id", userId).Str("course_id", courseId.String()).Msg("course joined")
	return enrollment, nil
}

func (l *Learning) CurrentCourse(ctx context.Context, userId string) (*entities.Course, error) {
	if err := requireUser(userId); err != nil {
		return nil, err
	}
	enrollment, err := l.repo.ActiveEnrollment(ctx, userId)
	if err != nil {
		return nil, err
	}
	return l.repo.FindCourseById(ctx, enrollment.CourseId)
}

// UpdateLessonProgress records a learner's report on one lesson. The stored
// percentage never goes down and a COMPLETED lesson stays COMPLETED. Once the
// lesson is completed the next lesson in course order is unlocked.
func (l *Learning) UpdateLessonProgress(ctx context.Context, userId string, lessonId uuid.UUID, req dto.ProgressUpdateRequest) (*entities.UserProgress, error) {
	if err := requireUser(userId); err != nil {
		return nil, err
	}
	status, err := constant.ParseLearningStatus(req.Status)
	if err != nil {
		return nil, err
	}
	if req.ProgressPercent < 0 || req.ProgressPercent > 100 || req.LastPositionSeconds < 0 {
		return nil, fmt.Errorf("%w: progress %d%% at %ds", ErrInvalidInput, req.ProgressPercent, req.LastPositionSeconds)
	}
	lesson, err := l.repo.FindLessonById(ctx, lessonId)
	if err != nil {
		return nil, err
	}
	if lesson.IsDeleted {
		return nil, repository.ErrNotFound
	}

	logger := zerolog.Ctx(ctx).With().Str("user_id", userId).Str("lesson_id", lessonId.String()).Logger()
	var progress *entities.UserProgress
	err = l.repo.Transaction(ctx, func(ctx context.Context) error {
		existing, err := l.repo.FindProgress(ctx, userId, lessonId)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			progress = &entities.UserProgress{UserId: userId, LessonId: lessonId}
		case err != nil:
			return err
		default:
			progress = existing
		}
		applyProgress(progress, status, req, l.now())
		if err := l.repo.SaveProgress(ctx, progress); err != nil {
			return err
		}
		if progress.Status != constant.LearningCompleted {
			return nil
		}

		next, err := l.repo.NextLesson(ctx, lesson)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info().Str("next_lesson_id", next.ID.String()).Msg("unlocking next lesson")
		return l.unlock(ctx, userId, next.ID)
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to update lesson progress")
		return nil, err
	}
	return progress, nil
}

func applyProgress(p *entities.UserProgress, status constant.LearningStatus, req dto.ProgressUpdateRequest, now time.Time) {
	if p.Status != constant.LearningCompleted {
		p.Status = status
	}
	if req.ProgressPercent > p.ProgressPercent {
		p.ProgressPercent = req.ProgressPercent
	}
	p.LastPositionSeconds = req.LastPositionSeconds
	if p.Status == constant.LearningCompleted {
		p.ProgressPercent = 100
		if p.CompletedAt == nil {
			p.CompletedAt = &now
		}
	}
}

// unlock makes the lesson playable for the user without touching a record
// that is already past LOCKED.
func (l *Learning) unlock(ctx context.Context, userId string, lessonId uuid.UUID) error {
	progress, err := l.repo.FindProgress(ctx, userId, lessonId)
	if errors.Is(err, repository.ErrNotFound) {
		return l.repo.SaveProgress(ctx, &entities.UserProgress{
			UserId:   userId,
			LessonId: lessonId,
			Status:   constant.LearningActive,
		})
	}
	if err != nil {
		return err
	}
	if progress.Status != constant.LearningLocked {
		return nil
	}
	progress.Status = constant.LearningActive
	return l.repo.SaveProgress(ctx, progress)
}

func (l *Learning) CourseLearningStatus(ctx context.Context, userId string, courseId uuid.UUID) (dto.LearningStatusResponse, error) {
	if err := requireUser(userId); err != nil {
		return dto.LearningStatusResponse{}, err
	}
	if _, err := l.repo.FindCourseById(ctx, courseId); err != nil {
		return dto.LearningStatusResponse{}, err
	}
	total, err := l.repo.CountCourseLessons(ctx, courseId)
	if err != nil {
		return dto.LearningStatusResponse{}, err
	}
	completed, err := l.repo.CountCompletedLessons(ctx, userId, courseId)
	if err != nil {
		return dto.LearningStatusResponse{}, err
	}

	resp := dto.LearningStatusResponse{
		CourseId:         courseId,
		TotalLessons:     total,
		CompletedLessons: completed,
		IsCompleted:      total > 0 && completed == total,
	}
	if total > 0 {
		resp.ProgressPercentTotal = int(completed * 100 / total)
	}
	last, err := l.repo.LastAccessedProgress(ctx, userId, courseId)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return dto.LearningStatusResponse{}, err
	default:
		resp.LastAccessedLessonId = &last.LessonId
	}
	return resp, nil
}
