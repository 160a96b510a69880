package service

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"lesson-worker/constant"
	"lesson-worker/entities"
	"lesson-worker/repository"
	"time"
)

// guardFunc runs fn in a transaction that first checks the run's generation.
type guardFunc func(ctx context.Context, fn func(ctx context.Context) error) error

// taskTracker moves one sub-task record through PENDING -> PROCESSING ->
// COMPLETED|FAILED. Each task is owned by a single goroutine.
type taskTracker struct {
	repo  repository.TaskRepository
	guard guardFunc
	now   func() time.Time
}

func (t taskTracker) create(ctx context.Context, videoId uuid.UUID, taskType constant.TaskType) (*entities.ProcessingTask, error) {
	task := &entities.ProcessingTask{
		VideoId:  videoId,
		TaskType: taskType,
		Status:   constant.TaskPending,
	}
	err := t.guard(ctx, func(ctx context.Context) error {
		return t.repo.CreateTask(ctx, task)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (t taskTracker) start(ctx context.Context, task *entities.ProcessingTask) error {
	now := t.now()
	progress := 0
	return t.transition(ctx, task, repository.TaskUpdate{
		Status:    constant.TaskProcessing,
		Progress:  &progress,
		StartedAt: &now,
	})
}

func (t taskTracker) progress(ctx context.Context, task *entities.ProcessingTask, percent int) error {
	if percent > 99 {
		percent = 99
	}
	return t.transition(ctx, task, repository.TaskUpdate{
		Status:   constant.TaskProcessing,
		Progress: &percent,
	})
}

func (t taskTracker) complete(ctx context.Context, task *entities.ProcessingTask) error {
	now := t.now()
	progress := 100
	return t.transition(ctx, task, repository.TaskUpdate{
		Status:      constant.TaskCompleted,
		Progress:    &progress,
		CompletedAt: &now,
	})
}

// fail records cause on the task. A task the watchdog already reaped stays as
// the watchdog left it.
func (t taskTracker) fail(ctx context.Context, task *entities.ProcessingTask, cause error) error {
	now := t.now()
	msg := cause.Error()
	err := t.transition(ctx, task, repository.TaskUpdate{
		Status:       constant.TaskFailed,
		ErrorMessage: &msg,
		CompletedAt:  &now,
	})
	if errors.Is(err, repository.ErrTaskConflict) {
		zerolog.Ctx(ctx).Warn().Str("task_id", task.ID.String()).Msg("task already finished elsewhere")
		return nil
	}
	return err
}

func (t taskTracker) transition(ctx context.Context, task *entities.ProcessingTask, update repository.TaskUpdate) error {
	err := t.guard(ctx, func(ctx context.Context) error {
		return t.repo.TransitionTask(ctx, task.ID, task.Status, update)
	})
	if err != nil {
		return err
	}
	task.Status = update.Status
	if update.Progress != nil {
		task.Progress = *update.Progress
	}
	if update.ErrorMessage != nil {
		task.ErrorMessage = update.ErrorMessage
	}
	if update.StartedAt != nil {
		task.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		task.CompletedAt = update.CompletedAt
	}
	zerolog.Ctx(ctx).Debug().
		Str("task_id", task.ID.String()).
		Str("task_type", string(task.TaskType)).
		Str("status", string(task.Status)).
		Int("progress", task.Progress).
		Msg("task updated")
	return nil
}
