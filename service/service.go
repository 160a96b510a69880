package service

import (
	"context"
	"errors"
	"github.com/rs/zerolog"
	"lesson-worker/constant"
	"lesson-worker/dto"
	"lesson-worker/repository"
)

var (
	ErrNonRetryable  = errors.New("non-retryable error")
	ErrLessonBusy    = errors.New("lesson is already processing")
	ErrNoMedia       = errors.New("lesson has no media")
	ErrJobSuperseded = errors.New("job superseded by a newer generation")
	ErrInvalidInput  = errors.New("invalid input")
)

type Service interface {
	Process(ctx context.Context, message dto.PipelineMessage) error
}

type service struct {
	repo     repository.Repository
	pipeline *Pipeline
}

// Process runs the pipeline for one job. Deterministic failures mark the job
// FAILED and return nil so the message is acked; anything else puts the job
// back to PENDING and is returned for the consumer to retry.
func (s *service) Process(ctx context.Context, message dto.PipelineMessage) (err error) {
	logger := zerolog.Ctx(ctx).With().
		Str("job_id", message.JobId.String()).
		Str("lesson_id", message.LessonId.String()).
		Int("generation", message.Generation).
		Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Msg("processing job")

	job, err := s.repo.FindJobById(ctx, message.JobId)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Warn().Msg("job not found, dropping message")
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to find job by id")
		return err
	}

	if job.Status.Terminal() {
		logger.Info().Str("status", string(job.Status)).Msg("job already finished")
		return nil
	}

	lesson, err := s.repo.FindLessonById(ctx, job.EntityId)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Warn().Msg("lesson not found")
		return s.repo.FailJob(ctx, job.ID, "lesson not found")
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to find lesson")
		return err
	}
	if job.Generation < lesson.Generation {
		logger.Info().Err(ErrJobSuperseded).Int("lesson_generation", lesson.Generation).Msg("skipping job")
		return s.repo.UpdateStatusJob(ctx, constant.JobStatusSuperseded, job.ID)
	}
	if lesson.IsDeleted {
		return s.repo.FailJob(ctx, job.ID, "lesson deleted")
	}

	if err := s.repo.UpdateStatusJob(ctx, constant.JobStatusProcessing, job.ID); err != nil {
		logger.Error().Err(err).Msg("failed to update job status")
		return err
	}

	defer func() {
		if err != nil {
			if errors.Is(err, ErrNonRetryable) {
				if updateErr := s.repo.FailJob(ctx, job.ID, err.Error()); updateErr != nil {
					logger.Error().Err(updateErr).Msg("failed to update job status")
				}
				err = nil
			} else {
				if updateErr := s.repo.UpdateStatusJob(ctx, constant.JobStatusPending, job.ID); updateErr != nil {
					logger.Error().Err(updateErr).Msg("failed to update job status")
				}
			}
		}
	}()

	err = s.pipeline.Run(ctx, lesson.ID, job.Generation)
	if errors.Is(err, repository.ErrStaleGeneration) {
		logger.Info().Err(ErrJobSuperseded).Msg("run halted by reprocess")
		return s.repo.UpdateStatusJob(ctx, constant.JobStatusSuperseded, job.ID)
	}
	if err != nil {
		logger.Error().Err(err).Msg("pipeline failed")
		return err
	}

	if err = s.repo.UpdateStatusJob(ctx, constant.JobStatusCompleted, job.ID); err != nil {
		logger.Error().Err(err).Msg("failed to update job status")
		return err
	}
	logger.Info().Msg("job completed")
	return nil
}

func NewService(repo repository.Repository, pipeline *Pipeline) Service {
	return &service{
		repo:     repo,
		pipeline: pipeline,
	}
}
