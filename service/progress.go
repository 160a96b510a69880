package service

import (
	"lesson-worker/constant"
	"lesson-worker/entities"
	"time"
)

type TaskProgress struct {
	TaskType     constant.TaskType
	Status       constant.TaskStatus
	Progress     int
	ErrorMessage *string
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

type VideoProgress struct {
	Status    constant.VideoStatus
	Progress  int
	Tasks     []TaskProgress
	StartedAt *time.Time
	UpdatedAt *time.Time
}

// AggregateProgress combines sub-task records into one 0-100 figure. The
// newest record per type counts, weighted by constant.TaskWeights. A COMPLETED
// video always reports 100. Tasks lists every task type in pipeline order; a
// type with no record reads PENDING at 0. tasks may be in any order and is
// not modified.
func AggregateProgress(videoStatus constant.VideoStatus, tasks []*entities.ProcessingTask) VideoProgress {
	latest := make(map[constant.TaskType]*entities.ProcessingTask)
	for _, t := range tasks {
		if cur, ok := latest[t.TaskType]; !ok || newer(t, cur) {
			latest[t.TaskType] = t
		}
	}

	out := VideoProgress{Status: videoStatus, Tasks: make([]TaskProgress, 0, len(constant.TaskTypes))}
	total := 0
	for _, taskType := range constant.TaskTypes {
		t, ok := latest[taskType]
		if !ok {
			out.Tasks = append(out.Tasks, TaskProgress{TaskType: taskType, Status: constant.TaskPending})
			continue
		}
		out.Tasks = append(out.Tasks, TaskProgress{
			TaskType:     taskType,
			Status:       t.Status,
			Progress:     t.Progress,
			ErrorMessage: t.ErrorMessage,
			StartedAt:    t.StartedAt,
			CompletedAt:  t.CompletedAt,
		})
		total += t.Progress * constant.TaskWeights[taskType] / 100

		if t.StartedAt != nil && (out.StartedAt == nil || t.StartedAt.Before(*out.StartedAt)) {
			out.StartedAt = t.StartedAt
		}
		activity := t.CompletedAt
		if activity == nil {
			activity = t.StartedAt
		}
		if activity != nil && (out.UpdatedAt == nil || activity.After(*out.UpdatedAt)) {
			out.UpdatedAt = activity
		}
	}

	out.Progress = min(total, 100)
	if videoStatus == constant.VideoCompleted {
		out.Progress = 100
	}
	return out
}

func newer(a, b *entities.ProcessingTask) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID.String() > b.ID.String()
	}
	return a.CreatedAt.After(b.CreatedAt)
}
