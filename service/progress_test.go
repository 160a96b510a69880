package service_test

import (
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lesson-worker/constant"
	"lesson-worker/entities"
	"lesson-worker/service"
	"math/rand"
	"testing"
	"time"
)

func task(taskType constant.TaskType, status constant.TaskStatus, progress int, created time.Time) *entities.ProcessingTask {
	return &entities.ProcessingTask{
		ID:        uuid.New(),
		TaskType:  taskType,
		Status:    status,
		Progress:  progress,
		CreatedAt: created,
	}
}

func TestAggregateProgressWithoutTasks(t *testing.T) {
	got := service.AggregateProgress(constant.VideoProcessing, nil)
	assert.Equal(t, 0, got.Progress)
	require.Len(t, got.Tasks, len(constant.TaskTypes))
	for i, tp := range got.Tasks {
		assert.Equal(t, constant.TaskTypes[i], tp.TaskType)
		assert.Equal(t, constant.TaskPending, tp.Status)
		assert.Equal(t, 0, tp.Progress)
	}
	assert.Nil(t, got.StartedAt)
}

func TestAggregateProgressWeightsAndFloors(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tasks := []*entities.ProcessingTask{
		task(constant.TaskAudioExtraction, constant.TaskCompleted, 100, base),
		task(constant.TaskSubtitleGeneration, constant.TaskCompleted, 100, base),
		task(constant.TaskTranslation, constant.TaskProcessing, 50, base),
		task(constant.TaskPhonetic, constant.TaskProcessing, 33, base),
		task(constant.TaskGrammarAnalysis, constant.TaskPending, 0, base),
	}
	got := service.AggregateProgress(constant.VideoProcessing, tasks)
	// 10 + 20 + 15 + 6 + 0
	assert.Equal(t, 51, got.Progress)

	// The snapshot order does not matter.
	for i := 0; i < 10; i++ {
		shuffled := append([]*entities.ProcessingTask(nil), tasks...)
		rand.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, got, service.AggregateProgress(constant.VideoProcessing, shuffled))
	}
}

func TestAggregateProgressUsesLatestRecordPerType(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	old := task(constant.TaskTranslation, constant.TaskFailed, 0, base)
	retry := task(constant.TaskTranslation, constant.TaskCompleted, 100, base.Add(time.Minute))

	got := service.AggregateProgress(constant.VideoProcessing, []*entities.ProcessingTask{retry, old})
	assert.Equal(t, 30, got.Progress)
	assert.Equal(t, constant.TaskCompleted, got.Tasks[2].Status)
}

func TestAggregateProgressCompletedVideoIsFull(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tasks := []*entities.ProcessingTask{
		task(constant.TaskAudioExtraction, constant.TaskCompleted, 100, base),
		task(constant.TaskPhonetic, constant.TaskFailed, 10, base),
	}
	assert.Equal(t, 100, service.AggregateProgress(constant.VideoCompleted, tasks).Progress)
	assert.Equal(t, 100, service.AggregateProgress(constant.VideoCompleted, nil).Progress)
	assert.Equal(t, 12, service.AggregateProgress(constant.VideoFailed, tasks).Progress)
}

func TestAggregateProgressTimestamps(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first, second, done := base.Add(time.Minute), base.Add(2*time.Minute), base.Add(5*time.Minute)
	audio := task(constant.TaskAudioExtraction, constant.TaskCompleted, 100, base)
	audio.StartedAt, audio.CompletedAt = &first, &done
	subtitle := task(constant.TaskSubtitleGeneration, constant.TaskProcessing, 90, base)
	subtitle.StartedAt = &second

	got := service.AggregateProgress(constant.VideoProcessing, []*entities.ProcessingTask{subtitle, audio})
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(first))
	require.NotNil(t, got.UpdatedAt)
	assert.True(t, got.UpdatedAt.Equal(done))
	assert.Equal(t, 28, got.Progress)
}
