package repository

import (
	"context"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"lesson-worker/constant"
	"lesson-worker/entities"
	"time"
)

// TaskUpdate carries the columns written by one sub-task transition. Nil
// pointers leave the column untouched.
type TaskUpdate struct {
	Status       constant.TaskStatus
	Progress     *int
	ErrorMessage *string
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

type TaskFilter struct {
	Status   *constant.TaskStatus
	TaskType *constant.TaskType
	VideoId  *uuid.UUID
	Limit    int
	Offset   int
}

type TaskRepository interface {
	CreateTask(ctx context.Context, task *entities.ProcessingTask) error
	FindTaskById(ctx context.Context, id uuid.UUID) (*entities.ProcessingTask, error)
	TransitionTask(ctx context.Context, id uuid.UUID, from constant.TaskStatus, update TaskUpdate) error
	TasksForVideo(ctx context.Context, videoId uuid.UUID) ([]*entities.ProcessingTask, error)
	StuckTasks(ctx context.Context, startedBefore time.Time) ([]*entities.ProcessingTask, error)
	ReapTask(ctx context.Context, id uuid.UUID, startedBefore time.Time, message string, now time.Time) (bool, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*entities.ProcessingTask, int64, error)
	DeleteTasksForVideo(ctx context.Context, videoId uuid.UUID) error
}

func (r *repo) CreateTask(ctx context.Context, task *entities.ProcessingTask) error {
	return r.conn(ctx).Create(task).Error
}

func (r *repo) FindTaskById(ctx context.Context, id uuid.UUID) (*entities.ProcessingTask, error) {
	task := &entities.ProcessingTask{}
	if err := r.conn(ctx).First(task, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return task, nil
}

// TransitionTask applies update only while the task is still in status from,
// so a reaped or already finished task is never overwritten.
func (r *repo) TransitionTask(ctx context.Context, id uuid.UUID, from constant.TaskStatus, update TaskUpdate) error {
	if err := constant.ValidateTaskTransition(from, update.Status); err != nil {
		return err
	}
	updates := map[string]interface{}{"status": update.Status}
	if update.Progress != nil {
		updates["progress"] = *update.Progress
	}
	if update.ErrorMessage != nil {
		updates["error_message"] = *update.ErrorMessage
	}
	if update.StartedAt != nil {
		updates["started_at"] = *update.StartedAt
	}
	if update.CompletedAt != nil {
		updates["completed_at"] = *update.CompletedAt
	}

	res := r.conn(ctx).Model(&entities.ProcessingTask{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTaskConflict
	}
	return nil
}

// TasksForVideo returns the video's sub-tasks, newest first.
func (r *repo) TasksForVideo(ctx context.Context, videoId uuid.UUID) ([]*entities.ProcessingTask, error) {
	var tasks []*entities.ProcessingTask
	err := r.conn(ctx).
		Where("video_id = ?", videoId).
		Order("created_at DESC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *repo) StuckTasks(ctx context.Context, startedBefore time.Time) ([]*entities.ProcessingTask, error) {
	var tasks []*entities.ProcessingTask
	err := r.conn(ctx).
		Where("status = ? AND started_at IS NOT NULL AND started_at < ?", constant.TaskProcessing, startedBefore).
		Order("started_at ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// ReapTask fails a stuck task. It reports false when another sweep, or the
// task's own worker, got there first.
func (r *repo) ReapTask(ctx context.Context, id uuid.UUID, startedBefore time.Time, message string, now time.Time) (bool, error) {
	res := r.conn(ctx).Model(&entities.ProcessingTask{}).
		Where("id = ? AND status = ? AND started_at < ?", id, constant.TaskProcessing, startedBefore).
		Updates(map[string]interface{}{
			"status":        constant.TaskFailed,
			"error_message": message,
			"completed_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListTasks(ctx context.Context, filter TaskFilter) ([]*entities.ProcessingTask, int64, error) {
	filtered := func() *gorm.DB {
		query := r.conn(ctx).Model(&entities.ProcessingTask{})
		if filter.Status != nil {
			query = query.Where("status = ?", *filter.Status)
		}
		if filter.TaskType != nil {
			query = query.Where("task_type = ?", *filter.TaskType)
		}
		if filter.VideoId != nil {
			query = query.Where("video_id = ?", *filter.VideoId)
		}
		return query
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var tasks []*entities.ProcessingTask
	err := filtered().Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&tasks).Error
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (r *repo) DeleteTasksForVideo(ctx context.Context, videoId uuid.UUID) error {
	return r.conn(ctx).Delete(&entities.ProcessingTask{}, "video_id = ?", videoId).Error
}
