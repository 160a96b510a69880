package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lesson-worker/constant"
	"lesson-worker/entities"
	"lesson-worker/repository"
	"lesson-worker/service"
	"testing"
	"time"
)

func TestPartialPhoneticFailureStoresSentinels(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.transcriber.segments = segments("one", "two", "three", "four", "five")
	f.generator.failPhonetic = map[string]bool{"two": true, "four": true}
	lesson, _ := f.upload(t, "numbers.mp4")

	require.NoError(t, f.svc.Process(ctx, f.queue.last()))

	got := f.lesson(t, lesson.ID)
	assert.Equal(t, constant.LessonReady, got.ProcessingStatus)

	videoId := *lesson.VideoId
	assert.Equal(t, constant.TaskCompleted, f.latestTask(t, videoId, string(constant.TaskTranslation)).Status)
	phonetic := f.latestTask(t, videoId, string(constant.TaskPhonetic))
	assert.Equal(t, constant.TaskCompleted, phonetic.Status)
	assert.Equal(t, 100, phonetic.Progress)

	subtitles, err := f.repo.SubtitlesForVideo(ctx, videoId)
	require.NoError(t, err)
	require.Len(t, subtitles, 5)
	want := []string{"/one/", "", "/three/", "", "/five/"}
	for i, s := range subtitles {
		require.NotNil(t, s.Phonetic, s.OriginalText)
		assert.Equal(t, want[i], *s.Phonetic, s.OriginalText)
		require.NotNil(t, s.Translation)
		assert.Equal(t, "T:"+s.OriginalText, *s.Translation)
	}

	analysis, err := f.repo.LatestJournalEntry(ctx, lesson.ID, constant.StepAnalysis)
	require.NoError(t, err)
	assert.Equal(t, constant.ActionComplete, analysis.Action)
	phoneticCtx, ok := analysis.Context["phonetic"].(map[string]interface{})
	require.True(t, ok)
	failed, ok := phoneticCtx["failed_items"].(json.Number)
	require.True(t, ok, "failed_items is %T", phoneticCtx["failed_items"])
	n, err := failed.Int64()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

// grammarStoreDown fails every grammar write, so the GRAMMAR_ANALYSIS kind
// fails as a whole while the other kinds carry on.
type grammarStoreDown struct {
	repository.Repository
}

func (grammarStoreDown) SaveGrammarAnalysis(context.Context, *entities.GrammarAnalysis) error {
	return errors.New("grammar_analysis: disk full")
}

func TestWholeKindFailureFailsAnalysis(t *testing.T) {
	ctx := context.Background()
	f := newFixtureWithRepo(t, func(repo repository.Repository) repository.Repository {
		return grammarStoreDown{Repository: repo}
	})
	lesson, job := f.upload(t, "greetings.mp4")

	require.NoError(t, f.svc.Process(ctx, f.queue.last()))

	videoId := *lesson.VideoId
	assert.Equal(t, constant.TaskCompleted, f.latestTask(t, videoId, string(constant.TaskTranslation)).Status)
	assert.Equal(t, constant.TaskCompleted, f.latestTask(t, videoId, string(constant.TaskPhonetic)).Status)
	grammar := f.latestTask(t, videoId, string(constant.TaskGrammarAnalysis))
	assert.Equal(t, constant.TaskFailed, grammar.Status)
	require.NotNil(t, grammar.ErrorMessage)
	assert.Contains(t, *grammar.ErrorMessage, "disk full")

	got := f.lesson(t, lesson.ID)
	assert.Equal(t, constant.LessonFailed, got.ProcessingStatus)
	assert.Equal(t, 60, got.ProgressPercent)
	assert.Equal(t, constant.JobStatusFailed, f.job(t, job.ID).Status)

	trail := f.trail(t, lesson.ID)
	assert.Equal(t, "ANALYSIS/FAIL", trail[len(trail)-1])

	subtitles, err := f.repo.SubtitlesForVideo(ctx, videoId)
	require.NoError(t, err)
	for _, s := range subtitles {
		assert.NotNil(t, s.Translation)
		assert.Nil(t, s.GrammarAnalysis)
	}
}

func TestEnrichWithoutSubtitlesCompletesEveryKind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	video := &entities.Video{Title: "silent.mp4", Status: constant.VideoProcessing}
	require.NoError(t, f.repo.CreateVideo(ctx, video))

	enricher := service.NewEnricher(f.repo, f.generator, service.EnrichmentConfig{}, func() time.Time { return time.Now().UTC() })
	report, err := enricher.Enrich(ctx, video.ID, nil)
	require.NoError(t, err)
	assert.NoError(t, report.Err())
	assert.Equal(t, 0, report.Segments)
	require.Len(t, report.Kinds, 3)
	for _, k := range report.Kinds {
		assert.Equal(t, constant.TaskCompleted, k.Status, k.TaskType)
	}
}
