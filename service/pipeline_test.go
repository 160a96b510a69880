package service_test

import (
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lesson-worker/constant"
	"lesson-worker/entities"
	"lesson-worker/pkg/caption"
	"lesson-worker/pkg/filestore"
	"lesson-worker/pkg/whisper"
	"lesson-worker/repository"
	"strings"
	"testing"
)

func TestPipelineHappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lesson, job := f.upload(t, "greetings.mp4")
	require.Len(t, f.queue.messages, 1)
	assert.Equal(t, job.ID, f.queue.last().JobId)

	require.NoError(t, f.svc.Process(ctx, f.queue.last()))

	assert.Equal(t, []string{
		"INIT/COMPLETE",
		"METADATA/START", "METADATA/COMPLETE",
		"AUDIO_EXTRACT/START", "AUDIO_EXTRACT/COMPLETE",
		"SUBTITLE/START", "SUBTITLE/COMPLETE",
		"ANALYSIS/START", "ANALYSIS/COMPLETE",
		"WORKFLOW/COMPLETE",
	}, f.trail(t, lesson.ID))

	got := f.lesson(t, lesson.ID)
	assert.Equal(t, constant.LessonReady, got.ProcessingStatus)
	assert.Equal(t, 100, got.ProgressPercent)
	assert.Equal(t, constant.JobStatusCompleted, f.job(t, job.ID).Status)

	video, err := f.repo.FindVideoById(ctx, *lesson.VideoId)
	require.NoError(t, err)
	assert.Equal(t, constant.VideoCompleted, video.Status)
	require.NotNil(t, video.Duration)
	assert.InDelta(t, 12.5, *video.Duration, 0.001)
	require.NotNil(t, video.Resolution)
	assert.Equal(t, "1920x1080", *video.Resolution)
	require.NotNil(t, video.ThumbnailPath)
	assert.Equal(t, "videos/"+video.ID.String()+"/thumbnail.jpg", *video.ThumbnailPath)

	subtitles, err := f.repo.SubtitlesForVideo(ctx, video.ID)
	require.NoError(t, err)
	require.Len(t, subtitles, 3)
	for i, s := range subtitles {
		assert.Equal(t, i+1, s.SequenceNumber)
		require.NotNil(t, s.Translation)
		assert.Equal(t, "T:"+s.OriginalText, *s.Translation)
		require.NotNil(t, s.Phonetic)
		assert.Equal(t, "/"+s.OriginalText+"/", *s.Phonetic)
		require.NotNil(t, s.GrammarAnalysis)
		assert.Equal(t, []string{"present simple"}, []string(s.GrammarAnalysis.GrammarPoints))
	}

	vtt, err := f.store.ReadFile(filestore.SubtitlePath(video.ID))
	require.NoError(t, err)
	cues, err := caption.Parse(string(vtt))
	require.NoError(t, err)
	require.Len(t, cues, 3)
	assert.Equal(t, "How are you?", cues[1].Text)
	assert.Contains(t, f.artifacts.published, filestore.SubtitlePath(video.ID))

	for _, taskType := range constant.TaskTypes {
		task := f.latestTask(t, video.ID, string(taskType))
		assert.Equal(t, constant.TaskCompleted, task.Status, taskType)
		assert.Equal(t, 100, task.Progress, taskType)
		assert.NotNil(t, task.StartedAt, taskType)
		assert.NotNil(t, task.CompletedAt, taskType)
	}

	progress, err := f.queries.VideoProgress(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, progress.Progress)

	state, consistent, err := f.queries.Derived(ctx, lesson.ID)
	require.NoError(t, err)
	assert.True(t, consistent)
	assert.Equal(t, constant.LessonReady, state.Status)
}

func TestPipelineTranscriberFailureFreezesProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.transcriber.err = &whisper.TranscriptionError{Path: "audio.wav", Msg: "load model medium", Err: errors.New("out of memory")}
	lesson, job := f.upload(t, "greetings.mp4")

	// Deterministic failures are acked, not retried.
	require.NoError(t, f.svc.Process(ctx, f.queue.last()))

	assert.Equal(t, []string{
		"INIT/COMPLETE",
		"METADATA/START", "METADATA/COMPLETE",
		"AUDIO_EXTRACT/START", "AUDIO_EXTRACT/COMPLETE",
		"SUBTITLE/START", "SUBTITLE/FAIL",
	}, f.trail(t, lesson.ID))

	failure, err := f.repo.LatestJournalEntry(ctx, lesson.ID, constant.StepSubtitle)
	require.NoError(t, err)
	assert.Contains(t, failure.Error(), "out of memory")

	got := f.lesson(t, lesson.ID)
	assert.Equal(t, constant.LessonFailed, got.ProcessingStatus)
	assert.Equal(t, 30, got.ProgressPercent)

	failedJob := f.job(t, job.ID)
	assert.Equal(t, constant.JobStatusFailed, failedJob.Status)
	require.NotNil(t, failedJob.Error)
	assert.Contains(t, *failedJob.Error, "out of memory")

	task := f.latestTask(t, *lesson.VideoId, string(constant.TaskSubtitleGeneration))
	assert.Equal(t, constant.TaskFailed, task.Status)
	require.NotNil(t, task.ErrorMessage)
	assert.Contains(t, *task.ErrorMessage, "load model medium")

	status, err := f.queries.LessonStatus(ctx, lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, "FAILED", status.ProcessingStatus)
	assert.Contains(t, status.Error, "out of memory")

	// A redelivered message for the failed run does nothing.
	require.NoError(t, f.svc.Process(ctx, f.queue.last()))
	assert.Len(t, f.trail(t, lesson.ID), 7)
}

func TestPipelineMetadataFailureFailsStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.extractor.metadataErr = errors.New("moov atom not found")
	lesson, _ := f.upload(t, "broken.mov")

	require.NoError(t, f.svc.Process(ctx, f.queue.last()))

	assert.Equal(t, []string{"INIT/COMPLETE", "METADATA/START", "METADATA/FAIL"}, f.trail(t, lesson.ID))
	got := f.lesson(t, lesson.ID)
	assert.Equal(t, constant.LessonFailed, got.ProcessingStatus)
	assert.Equal(t, constant.ProgressStarted, got.ProgressPercent)

	_, consistent, err := f.queries.Derived(ctx, lesson.ID)
	require.NoError(t, err)
	assert.True(t, consistent)
}

func TestPipelineThumbnailFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.extractor.thumbErr = errors.New("no frame at 1s")
	lesson, _ := f.upload(t, "short.webm")

	require.NoError(t, f.svc.Process(ctx, f.queue.last()))

	got := f.lesson(t, lesson.ID)
	assert.Equal(t, constant.LessonReady, got.ProcessingStatus)
	video, err := f.repo.FindVideoById(ctx, *lesson.VideoId)
	require.NoError(t, err)
	assert.Nil(t, video.ThumbnailPath)
}

func TestPipelineStaleGenerationHaltsRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lesson, job := f.upload(t, "greetings.mp4")
	first := f.queue.last()

	// A forced reprocess lands while the first run is transcribing.
	f.transcriber.before = func() {
		f.transcriber.before = nil
		_, err := f.lessons.Trigger(ctx, lesson.ID, true)
		assert.NoError(t, err)
	}
	require.NoError(t, f.svc.Process(ctx, first))

	assert.Equal(t, constant.JobStatusSuperseded, f.job(t, job.ID).Status)
	got := f.lesson(t, lesson.ID)
	assert.Equal(t, 1, got.Generation)
	assert.Equal(t, constant.LessonPending, got.ProcessingStatus)
	assert.Equal(t, 0, got.ProgressPercent)

	subtitles, err := f.repo.SubtitlesForVideo(ctx, *lesson.VideoId)
	require.NoError(t, err)
	assert.Empty(t, subtitles)

	trail := f.trail(t, lesson.ID)
	assert.Equal(t, "INIT/COMPLETE", trail[len(trail)-1])
	assert.NotContains(t, trail, "SUBTITLE/COMPLETE")

	// The new generation then runs to completion.
	second := f.queue.last()
	assert.Equal(t, 1, second.Generation)
	require.NoError(t, f.svc.Process(ctx, second))
	got = f.lesson(t, lesson.ID)
	assert.Equal(t, constant.LessonReady, got.ProcessingStatus)
	assert.Equal(t, 100, got.ProgressPercent)
}

func TestPipelineResumesRedeliveredRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lesson, _ := f.upload(t, "greetings.mp4")

	// Simulate a worker that died after METADATA completed.
	entries := []struct {
		step   constant.Step
		action constant.Action
	}{
		{constant.StepMetadata, constant.ActionStart},
		{constant.StepMetadata, constant.ActionComplete},
	}
	for _, e := range entries {
		require.NoError(t, f.repo.AppendJournal(ctx, &entities.TaskJournal{
			LessonId: lesson.ID, StepName: e.step, Action: e.action, Generation: 0,
		}))
	}
	require.NoError(t, f.repo.SetLessonState(ctx, lesson.ID, 0, constant.LessonProcessing, 10))
	require.NoError(t, f.repo.UpdateStatusJob(ctx, constant.JobStatusProcessing, f.queue.last().JobId))

	require.NoError(t, f.svc.Process(ctx, f.queue.last()))

	trail := f.trail(t, lesson.ID)
	assert.Equal(t, 1, strings.Count(strings.Join(trail, ","), "METADATA/START"))
	assert.Equal(t, "WORKFLOW/COMPLETE", trail[len(trail)-1])
	assert.Equal(t, constant.LessonReady, f.lesson(t, lesson.ID).ProcessingStatus)
}

func TestProcessSkipsFinishedAndSupersededJobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lesson, job := f.upload(t, "greetings.mp4")
	stale := f.queue.last()

	_, err := f.lessons.Trigger(ctx, lesson.ID, false)
	require.NoError(t, err)

	require.NoError(t, f.svc.Process(ctx, stale))
	assert.Equal(t, constant.JobStatusSuperseded, f.job(t, job.ID).Status)
	assert.Equal(t, []string{"INIT/COMPLETE", "INIT/COMPLETE"}, f.trail(t, lesson.ID))

	unknown := stale
	unknown.JobId = lesson.ID
	require.NoError(t, f.svc.Process(ctx, unknown))
}

func TestProcessLessonWithoutMediaFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lesson := &entities.Lesson{UnitId: f.unit.ID, Title: "Reading", ProcessingStatus: constant.LessonPending}
	require.NoError(t, f.repo.CreateLesson(ctx, lesson))
	job := &entities.Job{EntityId: lesson.ID, EntityType: "lesson", Status: constant.JobStatusPending, JobType: constant.JobTypeLessonPipeline}
	require.NoError(t, f.repo.CreateJob(ctx, job))

	require.NoError(t, f.svc.Process(ctx, pipelineMessage(job)))

	assert.Equal(t, constant.JobStatusFailed, f.job(t, job.ID).Status)
	assert.Equal(t, constant.LessonFailed, f.lesson(t, lesson.ID).ProcessingStatus)
	last, err := f.repo.LastJournalEntry(ctx, lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.StepWorkflow, last.StepName)
	assert.Equal(t, constant.ActionFail, last.Action)
}

func TestGuardedRunRejectsWrongGeneration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lesson, _ := f.upload(t, "greetings.mp4")

	err := f.pipeline.Run(ctx, lesson.ID, 3)
	assert.ErrorIs(t, err, repository.ErrStaleGeneration)
}
