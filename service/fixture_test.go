package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"lesson-worker/dto"
	"lesson-worker/entities"
	"lesson-worker/pkg/filestore"
	"lesson-worker/pkg/llm"
	"lesson-worker/pkg/media"
	"lesson-worker/pkg/testdb"
	"lesson-worker/pkg/whisper"
	"lesson-worker/repository"
	"lesson-worker/service"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeExtractor struct {
	meta        media.Metadata
	metadataErr error
	audioErr    error
	thumbErr    error
}

func (f *fakeExtractor) ReadMetadata(context.Context, string) (media.Metadata, error) {
	return f.meta, f.metadataErr
}

func (f *fakeExtractor) ExtractAudio(_ context.Context, videoPath string) (string, error) {
	if f.audioErr != nil {
		return "", f.audioErr
	}
	return filepath.Join(filepath.Dir(videoPath), media.AudioFileName), nil
}

func (f *fakeExtractor) GenerateThumbnail(_ context.Context, videoPath string, _ float64) (string, error) {
	if f.thumbErr != nil {
		return "", f.thumbErr
	}
	return filepath.Join(filepath.Dir(videoPath), media.ThumbnailFileName), nil
}

type fakeTranscriber struct {
	segments []whisper.Segment
	err      error
	before   func()
	audio    []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audioPath, _ string) ([]whisper.Segment, error) {
	f.audio = append(f.audio, audioPath)
	if f.before != nil {
		f.before()
	}
	return f.segments, f.err
}

// fakeGenerator fails phonetic generation for the texts in failPhonetic.
type fakeGenerator struct {
	failPhonetic map[string]bool
}

func (f *fakeGenerator) Translate(_ context.Context, text, _ string) (string, error) {
	return "T:" + text, nil
}

func (f *fakeGenerator) GeneratePhonetic(_ context.Context, text, _ string) (string, error) {
	if f.failPhonetic[text] {
		return "", &llm.ServiceError{Op: "phonetic", StatusCode: 429, Err: errors.New("rate limited")}
	}
	return "/" + text + "/", nil
}

func (f *fakeGenerator) AnalyzeGrammar(_ context.Context, sentence string) (*llm.Grammar, error) {
	return &llm.Grammar{
		SentenceStructure: "simple",
		GrammarPoints:     []string{"present simple"},
		DifficultWords:    llm.DifficultWords{{Word: sentence, Definition: "a greeting"}},
		Phrases:           []string{},
		Explanation:       "A short sentence.",
	}, nil
}

type fakeQueue struct {
	mu       sync.Mutex
	messages []dto.PipelineMessage
	err      error
}

func (q *fakeQueue) Enqueue(_ context.Context, message dto.PipelineMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.messages = append(q.messages, message)
	return nil
}

func (q *fakeQueue) last() dto.PipelineMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.messages[len(q.messages)-1]
}

type recordingArtifacts struct {
	mu        sync.Mutex
	published []string
	purged    []uuid.UUID
}

func (a *recordingArtifacts) Publish(_ context.Context, _ uuid.UUID, rel string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.published = append(a.published, rel)
	return nil
}

func (a *recordingArtifacts) Purge(_ context.Context, videoId uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.purged = append(a.purged, videoId)
	return nil
}

type fixture struct {
	repo        repository.Repository
	store       *filestore.Store
	extractor   *fakeExtractor
	transcriber *fakeTranscriber
	generator   *fakeGenerator
	queue       *fakeQueue
	artifacts   *recordingArtifacts
	lessons     *service.Lessons
	queries     *service.Queries
	pipeline    *service.Pipeline
	svc         service.Service
	unit        *entities.Unit
	course      *entities.Course
}

func segments(texts ...string) []whisper.Segment {
	out := make([]whisper.Segment, 0, len(texts))
	for i, text := range texts {
		out = append(out, whisper.Segment{
			SequenceNumber: i + 1,
			StartTime:      float64(i) * 2.5,
			EndTime:        float64(i)*2.5 + 2.0,
			Text:           text,
		})
	}
	return out
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithRepo(t, nil)
}

// newFixtureWithRepo lets a test wrap the repository seen by the enricher.
func newFixtureWithRepo(t *testing.T, wrap func(repository.Repository) repository.Repository) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := repository.New(testdb.Open(t))
	enricherRepo := repo
	if wrap != nil {
		enricherRepo = wrap(repo)
	}

	f := &fixture{
		repo:  repo,
		store: filestore.New(afero.NewMemMapFs(), "/data/uploads"),
		extractor: &fakeExtractor{meta: media.Metadata{
			Duration:   12.5,
			Resolution: "1920x1080",
			Codec:      "h264",
			Size:       2048,
		}},
		transcriber: &fakeTranscriber{segments: segments("Hello there.", "How are you?", "I am fine.")},
		generator:   &fakeGenerator{},
		queue:       &fakeQueue{},
		artifacts:   &recordingArtifacts{},
	}
	now := func() time.Time { return time.Now().UTC() }

	enricher := service.NewEnricher(enricherRepo, f.generator, service.EnrichmentConfig{
		TargetLanguage:   "Chinese",
		Accent:           "American",
		TranslationBatch: 2,
		PhoneticBatch:    2,
		GrammarBatch:     1,
	}, now)
	pipeline := service.NewPipeline(service.PipelineDeps{
		Repo:        repo,
		Store:       f.store,
		Extractor:   f.extractor,
		Transcriber: f.transcriber,
		Enricher:    enricher,
		Artifacts:   f.artifacts,
		Config:      service.PipelineConfig{Language: "en", ThumbnailAt: 1},
		Now:         now,
	})
	f.pipeline = pipeline
	f.svc = service.NewService(repo, pipeline)
	f.lessons = service.NewLessons(repo, f.store, f.queue, now)
	f.queries = service.NewQueries(repo)

	course, err := f.lessons.CreateCourse(ctx, dto.CreateCourseRequest{Title: "Everyday English"})
	require.NoError(t, err)
	unit, err := f.lessons.CreateUnit(ctx, course.ID, dto.CreateUnitRequest{Title: "Greetings"})
	require.NoError(t, err)
	f.course, f.unit = course, unit
	return f
}

func (f *fixture) upload(t *testing.T, name string) (*entities.Lesson, *entities.Job) {
	t.Helper()
	lesson, job, err := f.lessons.CreateLessonFromUpload(context.Background(), f.unit.ID, "", name, bytes.NewReader([]byte("fake video bytes")))
	require.NoError(t, err)
	return lesson, job
}

func (f *fixture) lesson(t *testing.T, id uuid.UUID) *entities.Lesson {
	t.Helper()
	lesson, err := f.repo.FindLessonById(context.Background(), id)
	require.NoError(t, err)
	return lesson
}

func (f *fixture) job(t *testing.T, id uuid.UUID) *entities.Job {
	t.Helper()
	job, err := f.repo.FindJobById(context.Background(), id)
	require.NoError(t, err)
	return job
}

// trail lists journal entries oldest first as STEP/ACTION.
func (f *fixture) trail(t *testing.T, lessonId uuid.UUID) []string {
	t.Helper()
	entries, err := f.repo.JournalEntries(context.Background(), lessonId)
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, fmt.Sprintf("%s/%s", entries[i].StepName, entries[i].Action))
	}
	return out
}

func (f *fixture) latestTask(t *testing.T, videoId uuid.UUID, taskType string) *entities.ProcessingTask {
	t.Helper()
	tasks, err := f.repo.TasksForVideo(context.Background(), videoId)
	require.NoError(t, err)
	for _, task := range tasks {
		if string(task.TaskType) == taskType {
			return task
		}
	}
	t.Fatalf("no %s task for video %s", taskType, videoId)
	return nil
}

func pipelineMessage(job *entities.Job) dto.PipelineMessage {
	return dto.PipelineMessage{JobId: job.ID, LessonId: job.EntityId, Generation: job.Generation}
}
