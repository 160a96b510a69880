package service_test

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lesson-worker/constant"
	"lesson-worker/entities"
	"lesson-worker/pkg/filestore"
	"lesson-worker/pkg/testdb"
	"lesson-worker/repository"
	"lesson-worker/service"
	"os"
	"strings"
	"testing"
	"time"
)

var sweepNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newWatchdog(repo repository.Repository, store *filestore.Store, artifacts service.ArtifactPublisher) *service.Watchdog {
	return service.NewWatchdog(service.WatchdogDeps{
		Repo:      repo,
		Store:     store,
		Artifacts: artifacts,
		Now:       func() time.Time { return sweepNow },
	})
}

func processingTask(t *testing.T, repo repository.Repository, videoId uuid.UUID, startedAt time.Time) *entities.ProcessingTask {
	t.Helper()
	task := &entities.ProcessingTask{
		VideoId:   videoId,
		TaskType:  constant.TaskSubtitleGeneration,
		Status:    constant.TaskProcessing,
		Progress:  40,
		StartedAt: &startedAt,
	}
	require.NoError(t, repo.CreateTask(context.Background(), task))
	return task
}

func TestReapStuckTasks(t *testing.T) {
	ctx := context.Background()
	repo := repository.New(testdb.Open(t))
	video := &entities.Video{Title: "a.mp4", Status: constant.VideoProcessing}
	require.NoError(t, repo.CreateVideo(ctx, video))

	stuck := processingTask(t, repo, video.ID, sweepNow.Add(-90*time.Minute))
	fresh := processingTask(t, repo, video.ID, sweepNow.Add(-10*time.Minute))

	w := newWatchdog(repo, filestore.New(afero.NewMemMapFs(), "/data"), nil)
	reaped, err := w.ReapStuck(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	got, err := repo.FindTaskById(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.TaskFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "task timed out: stuck in PROCESSING for more than 1h0m0s", *got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(sweepNow))

	other, err := repo.FindTaskById(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.TaskProcessing, other.Status)

	// A second sweep finds nothing new and changes nothing.
	reaped, err = w.ReapStuck(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, reaped)
	again, err := repo.FindTaskById(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Status, again.Status)
	assert.Equal(t, *got.ErrorMessage, *again.ErrorMessage)
	assert.True(t, got.CompletedAt.Equal(*again.CompletedAt))
}

// failingFs refuses to remove one directory.
type failingFs struct {
	afero.Fs
	deny string
}

func (f failingFs) RemoveAll(path string) error {
	if strings.Contains(path, f.deny) {
		return &os.PathError{Op: "removeall", Path: path, Err: errors.New("device busy")}
	}
	return f.Fs.RemoveAll(path)
}

func deletedLessonWithMedia(t *testing.T, repo repository.Repository, store *filestore.Store, unitId uuid.UUID) *entities.Lesson {
	t.Helper()
	ctx := context.Background()
	video := &entities.Video{Title: "v.mp4", Status: constant.VideoCompleted}
	require.NoError(t, repo.CreateVideo(ctx, video))
	rel := filestore.OriginalPath(video.ID, ".mp4")
	require.NoError(t, store.WriteFile(rel, []byte("bytes")))
	require.NoError(t, repo.SetVideoFile(ctx, video.ID, rel, 5))
	require.NoError(t, repo.ReplaceSubtitles(ctx, video.ID, []*entities.Subtitle{{SequenceNumber: 1, EndTime: 1, OriginalText: "hi"}}))

	lesson := &entities.Lesson{UnitId: unitId, Title: "l", VideoId: &video.ID, ProcessingStatus: constant.LessonReady}
	require.NoError(t, repo.CreateLesson(ctx, lesson))
	require.NoError(t, repo.SoftDeleteLesson(ctx, lesson.ID))
	return lesson
}

func TestCollectGarbageToleratesPartialFailure(t *testing.T) {
	ctx := context.Background()
	repo := repository.New(testdb.Open(t))
	mem := afero.NewMemMapFs()
	plain := filestore.New(mem, "/data")
	unitId := uuid.New()

	broken := deletedLessonWithMedia(t, repo, plain, unitId)
	healthy := deletedLessonWithMedia(t, repo, plain, unitId)
	brokenVideo, healthyVideo := *broken.VideoId, *healthy.VideoId

	artifacts := &recordingArtifacts{}
	store := filestore.New(failingFs{Fs: mem, deny: brokenVideo.String()}, "/data")
	w := newWatchdog(repo, store, artifacts)

	collected, failed, err := w.CollectGarbage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, collected)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []uuid.UUID{healthyVideo}, artifacts.purged)

	l, err := repo.FindLessonById(ctx, healthy.ID)
	require.NoError(t, err)
	assert.Nil(t, l.VideoId)
	_, err = repo.FindVideoById(ctx, healthyVideo)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.False(t, plain.Exists(filestore.VideoDir(healthyVideo)))
	subs, err := repo.SubtitlesForVideo(ctx, healthyVideo)
	require.NoError(t, err)
	assert.Empty(t, subs)

	l, err = repo.FindLessonById(ctx, broken.ID)
	require.NoError(t, err)
	require.NotNil(t, l.VideoId)
	_, err = repo.FindVideoById(ctx, brokenVideo)
	assert.NoError(t, err)

	// Once the disk recovers the next sweep picks up the leftover lesson only.
	recovered := newWatchdog(repo, plain, artifacts)
	collected, failed, err = recovered.CollectGarbage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, collected)
	assert.Equal(t, 0, failed)

	collected, failed, err = recovered.CollectGarbage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, collected)
	assert.Equal(t, 0, failed)
}

func TestCollectGarbageReadOnlyDiskKeepsRows(t *testing.T) {
	ctx := context.Background()
	repo := repository.New(testdb.Open(t))
	mem := afero.NewMemMapFs()
	lesson := deletedLessonWithMedia(t, repo, filestore.New(mem, "/data"), uuid.New())

	w := newWatchdog(repo, filestore.New(afero.NewReadOnlyFs(mem), "/data"), nil)
	collected, failed, err := w.CollectGarbage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, collected)
	assert.Equal(t, 1, failed)

	_, err = repo.FindVideoById(ctx, *lesson.VideoId)
	assert.NoError(t, err)
}

type deniedLock struct{}

func (deniedLock) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	return nil, false, nil
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	repo := repository.New(testdb.Open(t))
	video := &entities.Video{Title: "a.mp4", Status: constant.VideoProcessing}
	require.NoError(t, repo.CreateVideo(ctx, video))
	stuck := processingTask(t, repo, video.ID, sweepNow.Add(-2*time.Hour))

	w := service.NewWatchdog(service.WatchdogDeps{
		Repo:   repo,
		Store:  filestore.New(afero.NewMemMapFs(), "/data"),
		Locker: deniedLock{},
		Now:    func() time.Time { return sweepNow },
	})
	result, err := w.Sweep(ctx)
	require.NoError(t, err)
	assert.True(t, result.Skipped)

	got, err := repo.FindTaskById(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.TaskProcessing, got.Status)

	open := newWatchdog(repo, filestore.New(afero.NewMemMapFs(), "/data"), nil)
	result, err = open.Sweep(ctx)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, 1, result.Reaped)
}
