package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"io"
	"lesson-worker/constant"
	"lesson-worker/dto"
	"lesson-worker/entities"
	"lesson-worker/journal"
	"lesson-worker/pkg/filestore"
	"lesson-worker/repository"
	"path/filepath"
	"strings"
	"time"
)

const entityTypeLesson = "lesson"

// Lessons handles the commands that create lessons and start pipeline runs.
type Lessons struct {
	repo    repository.Repository
	journal *journal.Journal
	store   *filestore.Store
	queue   Queue
}

func NewLessons(repo repository.Repository, store *filestore.Store, queue Queue, now func() time.Time) *Lessons {
	return &Lessons{
		repo:    repo,
		journal: journal.New(repo, now),
		store:   store,
		queue:   queue,
	}
}

func (l *Lessons) CreateCourse(ctx context.Context, req dto.CreateCourseRequest) (*entities.Course, error) {
	course := &entities.Course{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Level:       req.Level,
	}
	if course.Title == "" {
		return nil, fmt.Errorf("%w: course title is required", ErrInvalidInput)
	}
	if err := l.repo.CreateCourse(ctx, course); err != nil {
		return nil, err
	}
	return course, nil
}

// CreateUnit appends the unit after the course's last one unless an order
// index is given.
func (l *Lessons) CreateUnit(ctx context.Context, courseId uuid.UUID, req dto.CreateUnitRequest) (*entities.Unit, error) {
	if _, err := l.repo.FindCourseById(ctx, courseId); err != nil {
		return nil, err
	}
	unit := &entities.Unit{CourseId: courseId, Title: strings.TrimSpace(req.Title)}
	if unit.Title == "" {
		return nil, fmt.Errorf("%w: unit title is required", ErrInvalidInput)
	}
	if req.OrderIndex != nil {
		unit.OrderIndex = *req.OrderIndex
	} else {
		next, err := l.repo.NextUnitOrder(ctx, courseId)
		if err != nil {
			return nil, err
		}
		unit.OrderIndex = next
	}
	if err := l.repo.CreateUnit(ctx, unit); err != nil {
		return nil, err
	}
	return unit, nil
}

// CreateLessonFromUpload stores the uploaded video, creates its lesson and
// enqueues the first pipeline run.
func (l *Lessons) CreateLessonFromUpload(ctx context.Context, unitId uuid.UUID, title, filename string, r io.Reader) (*entities.Lesson, *entities.Job, error) {
	ext, err := filestore.ValidateExtension(filename)
	if err != nil {
		return nil, nil, err
	}
	if _, err := l.repo.FindUnitById(ctx, unitId); err != nil {
		return nil, nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}

	video := &entities.Video{Title: title, Status: constant.VideoUploading}
	if err := l.repo.CreateVideo(ctx, video); err != nil {
		return nil, nil, err
	}
	logger := zerolog.Ctx(ctx).With().Str("video_id", video.ID.String()).Logger()

	rel := filestore.OriginalPath(video.ID, ext)
	size, err := l.store.Save(rel, r)
	if err != nil {
		logger.Error().Err(err).Msg("failed to store upload")
		if statusErr := l.repo.SetVideoStatus(ctx, video.ID, constant.VideoFailed); statusErr != nil {
			logger.Error().Err(statusErr).Msg("failed to update video status")
		}
		return nil, nil, fmt.Errorf("store upload: %w", err)
	}
	logger.Info().Str("path", rel).Int64("size", size).Msg("upload stored")

	lesson := &entities.Lesson{
		UnitId:           unitId,
		Title:            title,
		VideoId:          &video.ID,
		ProcessingStatus: constant.LessonPending,
	}
	var job *entities.Job
	err = l.repo.Transaction(ctx, func(ctx context.Context) error {
		if err := l.repo.SetVideoFile(ctx, video.ID, rel, size); err != nil {
			return err
		}
		order, err := l.repo.NextLessonOrder(ctx, unitId)
		if err != nil {
			return err
		}
		lesson.OrderIndex = order
		if err := l.repo.CreateLesson(ctx, lesson); err != nil {
			return err
		}
		_, err = l.journal.Record(ctx, lesson.ID, lesson.Generation, constant.StepInit, constant.ActionComplete, journal.Context{
			"filename": filename,
			"video_id": video.ID.String(),
		})
		if err != nil {
			return err
		}
		job, err = l.createJob(ctx, lesson.ID, lesson.Generation)
		return err
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to create lesson")
		l.discardUpload(ctx, video.ID)
		return nil, nil, err
	}

	if err := l.dispatch(ctx, job); err != nil {
		return lesson, job, err
	}
	return lesson, job, nil
}

// discardUpload removes the stored file of an upload that never became a
// lesson and marks its video FAILED.
func (l *Lessons) discardUpload(ctx context.Context, videoId uuid.UUID) {
	logger := zerolog.Ctx(ctx).With().Str("video_id", videoId.String()).Logger()
	if err := l.store.RemoveVideo(videoId); err != nil {
		logger.Error().Err(err).Msg("failed to remove stored upload")
	}
	if err := l.repo.SetVideoStatus(ctx, videoId, constant.VideoFailed); err != nil {
		logger.Error().Err(err).Msg("failed to update video status")
	}
}

// Trigger resets the lesson to a new generation and enqueues a run. Subtitles
// and sub-task records of its media are discarded. A lesson already
// PROCESSING is rejected with ErrLessonBusy unless force is set; the old run
// then stops at its next generation-guarded write.
func (l *Lessons) Trigger(ctx context.Context, lessonId uuid.UUID, force bool) (*entities.Job, error) {
	lesson, err := l.repo.FindLessonById(ctx, lessonId)
	if err != nil {
		return nil, err
	}
	if lesson.IsDeleted {
		return nil, repository.ErrNotFound
	}
	if lesson.VideoId == nil {
		return nil, ErrNoMedia
	}
	if lesson.ProcessingStatus == constant.LessonProcessing && !force {
		return nil, ErrLessonBusy
	}
	if err := constant.ValidateLessonTransition(lesson.ProcessingStatus, constant.LessonPending); err != nil {
		return nil, err
	}
	videoId := *lesson.VideoId

	var job *entities.Job
	err = l.repo.Transaction(ctx, func(ctx context.Context) error {
		generation, err := l.repo.ResetLesson(ctx, lesson.ID, lesson.Generation)
		if errors.Is(err, repository.ErrStaleGeneration) {
			return ErrLessonBusy
		}
		if err != nil {
			return err
		}
		if err := l.repo.DeleteSubtitlesForVideo(ctx, videoId); err != nil {
			return err
		}
		if err := l.repo.DeleteTasksForVideo(ctx, videoId); err != nil {
			return err
		}
		if err := l.repo.SetVideoStatus(ctx, videoId, constant.VideoProcessing); err != nil {
			return err
		}
		_, err = l.journal.Record(ctx, lesson.ID, generation, constant.StepInit, constant.ActionComplete, journal.Context{
			"reason":     "reprocess",
			"generation": generation,
			"forced":     force,
		})
		if err != nil {
			return err
		}
		job, err = l.createJob(ctx, lesson.ID, generation)
		return err
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("lesson_id", lesson.ID.String()).
		Int("generation", job.Generation).
		Bool("force", force).
		Msg("lesson reprocess requested")
	if err := l.dispatch(ctx, job); err != nil {
		return job, err
	}
	return job, nil
}

// DeleteLesson soft-deletes the lesson. The watchdog releases its media later.
func (l *Lessons) DeleteLesson(ctx context.Context, lessonId uuid.UUID) error {
	return l.repo.SoftDeleteLesson(ctx, lessonId)
}

func (l *Lessons) createJob(ctx context.Context, lessonId uuid.UUID, generation int) (*entities.Job, error) {
	job := &entities.Job{
		EntityId:   lessonId,
		EntityType: entityTypeLesson,
		Status:     constant.JobStatusPending,
		JobType:    constant.JobTypeLessonPipeline,
		Generation: generation,
	}
	if err := l.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// dispatch publishes the job. A job that cannot be published is marked
// FAILED so it does not look queued.
func (l *Lessons) dispatch(ctx context.Context, job *entities.Job) error {
	err := l.queue.Enqueue(ctx, dto.PipelineMessage{
		JobId:      job.ID,
		LessonId:   job.EntityId,
		Generation: job.Generation,
	})
	if err == nil {
		return nil
	}
	zerolog.Ctx(ctx).Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to enqueue job")
	if failErr := l.repo.FailJob(ctx, job.ID, "enqueue: "+err.Error()); failErr != nil {
		zerolog.Ctx(ctx).Error().Err(failErr).Msg("failed to update job status")
	}
	job.Status = constant.JobStatusFailed
	return fmt.Errorf("enqueue job: %w", err)
}
