package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"lesson-worker/constant"
	"lesson-worker/entities"
	"lesson-worker/journal"
	"lesson-worker/pkg/caption"
	"lesson-worker/pkg/filestore"
	"lesson-worker/pkg/media"
	"lesson-worker/pkg/whisper"
	"lesson-worker/repository"
	"path/filepath"
	"time"
)

type PipelineConfig struct {
	Language    string
	ThumbnailAt float64
}

type PipelineDeps struct {
	Repo        repository.Repository
	Journal     *journal.Journal
	Store       *filestore.Store
	Extractor   media.Extractor
	Transcriber whisper.Transcriber
	Enricher    *Enricher
	Artifacts   ArtifactPublisher
	Config      PipelineConfig
	Now         func() time.Time
}

// Pipeline drives one lesson through METADATA, AUDIO_EXTRACT, SUBTITLE and
// ANALYSIS. Every write happens in a short transaction that first checks the
// lesson generation, so a run overtaken by a reprocess stops writing.
type Pipeline struct {
	repo        repository.Repository
	journal     *journal.Journal
	store       *filestore.Store
	extractor   media.Extractor
	transcriber whisper.Transcriber
	enricher    *Enricher
	artifacts   ArtifactPublisher
	cfg         PipelineConfig
	now         func() time.Time
}

func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.Journal == nil {
		deps.Journal = journal.New(deps.Repo, deps.Now)
	}
	if deps.Artifacts == nil {
		deps.Artifacts = NoopArtifacts{}
	}
	return &Pipeline{
		repo:        deps.Repo,
		journal:     deps.Journal,
		store:       deps.Store,
		extractor:   deps.Extractor,
		transcriber: deps.Transcriber,
		enricher:    deps.Enricher,
		artifacts:   deps.Artifacts,
		cfg:         deps.Config,
		now:         deps.Now,
	}
}

// run is the state of one pipeline execution.
type run struct {
	lessonId   uuid.UUID
	generation int
	video      *entities.Video
	status     constant.LessonStatus
	progress   int
}

type stepFunc func(ctx context.Context, r *run) (journal.Context, error)

type pipelineStep struct {
	name constant.Step
	fn   stepFunc
}

func (p *Pipeline) steps() []pipelineStep {
	return []pipelineStep{
		{constant.StepMetadata, p.extractMetadata},
		{constant.StepAudioExtract, p.extractAudio},
		{constant.StepSubtitle, p.generateSubtitles},
		{constant.StepAnalysis, p.analyze},
	}
}

// Run executes the pipeline for lessonId at generation. A step failure is
// journaled, the lesson is marked FAILED and the returned error wraps
// ErrNonRetryable. repository.ErrStaleGeneration means a reprocess took over.
// Steps the journal already shows as completed for this generation are
// skipped, so a redelivered job resumes instead of redoing work.
func (p *Pipeline) Run(ctx context.Context, lessonId uuid.UUID, generation int) error {
	logger := zerolog.Ctx(ctx).With().Str("lesson_id", lessonId.String()).Int("generation", generation).Logger()
	ctx = logger.WithContext(ctx)

	lesson, err := p.repo.FindLessonById(ctx, lessonId)
	if err != nil {
		return err
	}
	if lesson.Generation != generation {
		return repository.ErrStaleGeneration
	}
	r := &run{
		lessonId:   lessonId,
		generation: generation,
		status:     lesson.ProcessingStatus,
		progress:   lesson.ProgressPercent,
	}

	switch lesson.ProcessingStatus {
	case constant.LessonReady:
		logger.Info().Msg("lesson already ready")
		return nil
	case constant.LessonFailed:
		return errors.Join(ErrNonRetryable, fmt.Errorf("lesson failed in generation %d, reprocess required", generation))
	}

	if lesson.VideoId == nil {
		return p.abort(ctx, r, constant.StepWorkflow, ErrNoMedia)
	}
	video, err := p.repo.FindVideoById(ctx, *lesson.VideoId)
	if errors.Is(err, repository.ErrNotFound) {
		return p.abort(ctx, r, constant.StepWorkflow, ErrNoMedia)
	}
	if err != nil {
		return err
	}
	r.video = video

	entries, err := p.journal.EntriesFor(ctx, lessonId)
	if err != nil {
		return err
	}
	done := make(map[constant.Step]bool)
	if prior := journal.Derive(entries); prior.Generation == generation && prior.Failure == nil {
		for _, step := range prior.Completed {
			done[step] = true
		}
	}

	err = p.guarded(ctx, r, func(ctx context.Context) error {
		if err := p.repo.SetVideoStatus(ctx, video.ID, constant.VideoProcessing); err != nil {
			return err
		}
		return p.setLesson(ctx, r, constant.LessonProcessing, max(r.progress, constant.ProgressStarted))
	})
	if err != nil {
		return err
	}
	logger.Info().Str("video_id", video.ID.String()).Msg("pipeline started")

	for _, step := range p.steps() {
		if done[step.name] {
			logger.Info().Str("step", string(step.name)).Msg("step already completed, skipping")
			continue
		}
		if err := p.runStep(ctx, r, step); err != nil {
			return err
		}
	}
	return p.finish(ctx, r)
}

func (p *Pipeline) runStep(ctx context.Context, r *run, step pipelineStep) error {
	logger := zerolog.Ctx(ctx).With().Str("step", string(step.name)).Logger()
	ctx = logger.WithContext(ctx)

	err := p.guarded(ctx, r, func(ctx context.Context) error {
		_, err := p.journal.Record(ctx, r.lessonId, r.generation, step.name, constant.ActionStart, nil)
		return err
	})
	if err != nil {
		return err
	}
	logger.Info().Msg("step started")

	data, err := step.fn(ctx, r)
	if err != nil {
		if errors.Is(err, repository.ErrStaleGeneration) || ctx.Err() != nil {
			return err
		}
		logger.Error().Err(err).Msg("step failed")
		return p.abort(ctx, r, step.name, err)
	}

	err = p.guarded(ctx, r, func(ctx context.Context) error {
		if _, err := p.journal.Record(ctx, r.lessonId, r.generation, step.name, constant.ActionComplete, data); err != nil {
			return err
		}
		return p.setLesson(ctx, r, constant.LessonProcessing, max(r.progress, step.name.Checkpoint()))
	})
	if err != nil {
		return err
	}
	logger.Info().Int("progress", r.progress).Msg("step completed")
	return nil
}

// finish closes the run only if the journal itself shows every step completed.
func (p *Pipeline) finish(ctx context.Context, r *run) error {
	entries, err := p.journal.EntriesFor(ctx, r.lessonId)
	if err != nil {
		return err
	}
	state := journal.Derive(entries)
	if state.Generation != r.generation {
		return repository.ErrStaleGeneration
	}
	if !state.AllStepsCompleted() {
		return p.abort(ctx, r, constant.StepWorkflow, fmt.Errorf("journal shows %v completed, want %v", state.Completed, constant.PipelineSteps))
	}

	err = p.guarded(ctx, r, func(ctx context.Context) error {
		progress := constant.StepWorkflow.Checkpoint()
		if _, err := p.journal.Record(ctx, r.lessonId, r.generation, constant.StepWorkflow, constant.ActionComplete, journal.Context{"progress": progress}); err != nil {
			return err
		}
		if err := p.repo.SetVideoStatus(ctx, r.video.ID, constant.VideoCompleted); err != nil {
			return err
		}
		return p.setLesson(ctx, r, constant.LessonReady, progress)
	})
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Msg("pipeline completed")
	return nil
}

// abort journals cause as a FAIL of step, marks the lesson and its media
// FAILED and returns cause as non-retryable.
func (p *Pipeline) abort(ctx context.Context, r *run, step constant.Step, cause error) error {
	err := p.guarded(ctx, r, func(ctx context.Context) error {
		if _, err := p.journal.Record(ctx, r.lessonId, r.generation, step, constant.ActionFail, journal.Context{"error": cause.Error()}); err != nil {
			return err
		}
		if r.video != nil {
			if err := p.repo.SetVideoStatus(ctx, r.video.ID, constant.VideoFailed); err != nil {
				return err
			}
		}
		return p.setLesson(ctx, r, constant.LessonFailed, r.progress)
	})
	if err != nil {
		return err
	}
	return errors.Join(ErrNonRetryable, fmt.Errorf("%s: %w", step, cause))
}

func (p *Pipeline) setLesson(ctx context.Context, r *run, status constant.LessonStatus, progress int) error {
	if err := constant.ValidateLessonTransition(r.status, status); err != nil {
		return err
	}
	if err := p.repo.SetLessonState(ctx, r.lessonId, r.generation, status, progress); err != nil {
		return err
	}
	r.status = status
	r.progress = progress
	return nil
}

func (p *Pipeline) guarded(ctx context.Context, r *run, fn func(ctx context.Context) error) error {
	return p.repo.Transaction(ctx, func(ctx context.Context) error {
		if err := p.repo.GuardGeneration(ctx, r.lessonId, r.generation); err != nil {
			return err
		}
		return fn(ctx)
	})
}

func (p *Pipeline) guardFor(r *run) guardFunc {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		return p.guarded(ctx, r, fn)
	}
}

func (p *Pipeline) tasks(r *run) taskTracker {
	return taskTracker{repo: p.repo, guard: p.guardFor(r), now: p.now}
}

func (p *Pipeline) videoPath(r *run) string {
	return p.store.Abs(r.video.FilePath)
}

// audioPath is where the extractor leaves the audio track, next to the video.
func (p *Pipeline) audioPath(r *run) string {
	return filepath.Join(filepath.Dir(p.videoPath(r)), media.AudioFileName)
}

func (p *Pipeline) extractMetadata(ctx context.Context, r *run) (journal.Context, error) {
	if r.video.FilePath == "" {
		return nil, ErrNoMedia
	}
	path := p.videoPath(r)
	meta, err := p.extractor.ReadMetadata(ctx, path)
	if err != nil {
		return nil, err
	}
	err = p.guarded(ctx, r, func(ctx context.Context) error {
		return p.repo.SetVideoMetadata(ctx, r.video.ID, repository.VideoMetadata{
			Duration:   meta.Duration,
			Resolution: meta.Resolution,
			Format:     meta.Codec,
			FileSize:   meta.Size,
		})
	})
	if err != nil {
		return nil, err
	}
	data := journal.Context{
		"duration":   meta.Duration,
		"resolution": meta.Resolution,
		"codec":      meta.Codec,
		"file_size":  meta.Size,
	}

	thumb, err := p.extractor.GenerateThumbnail(ctx, path, p.cfg.ThumbnailAt)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("thumbnail generation failed")
		return data, nil
	}
	rel := p.store.Rel(thumb)
	err = p.guarded(ctx, r, func(ctx context.Context) error {
		return p.repo.SetVideoThumbnail(ctx, r.video.ID, rel)
	})
	if err != nil {
		return nil, err
	}
	data["thumbnail"] = rel
	p.publish(ctx, r.video.ID, rel)
	return data, nil
}

func (p *Pipeline) extractAudio(ctx context.Context, r *run) (journal.Context, error) {
	tasks := p.tasks(r)
	task, err := tasks.create(ctx, r.video.ID, constant.TaskAudioExtraction)
	if err != nil {
		return nil, err
	}
	if err := tasks.start(ctx, task); err != nil {
		return nil, err
	}

	audio, err := p.extractor.ExtractAudio(ctx, p.videoPath(r))
	if err != nil {
		return nil, p.failTask(ctx, tasks, task, err)
	}
	if err := tasks.complete(ctx, task); err != nil {
		return nil, err
	}
	return journal.Context{"audio_path": p.store.Rel(audio)}, nil
}

func (p *Pipeline) generateSubtitles(ctx context.Context, r *run) (journal.Context, error) {
	tasks := p.tasks(r)
	task, err := tasks.create(ctx, r.video.ID, constant.TaskSubtitleGeneration)
	if err != nil {
		return nil, err
	}
	if err := tasks.start(ctx, task); err != nil {
		return nil, err
	}

	segments, err := p.transcriber.Transcribe(ctx, p.audioPath(r), p.cfg.Language)
	if err != nil {
		return nil, p.failTask(ctx, tasks, task, err)
	}
	if err := tasks.progress(ctx, task, 90); err != nil {
		return nil, err
	}

	subtitles := make([]*entities.Subtitle, 0, len(segments))
	cues := make([]caption.Cue, 0, len(segments))
	for _, seg := range segments {
		subtitles = append(subtitles, &entities.Subtitle{
			VideoId:        r.video.ID,
			SequenceNumber: seg.SequenceNumber,
			StartTime:      seg.StartTime,
			EndTime:        seg.EndTime,
			OriginalText:   seg.Text,
		})
		cues = append(cues, caption.Cue{Index: seg.SequenceNumber, Start: seg.StartTime, End: seg.EndTime, Text: seg.Text})
	}
	err = p.guarded(ctx, r, func(ctx context.Context) error {
		return p.repo.ReplaceSubtitles(ctx, r.video.ID, subtitles)
	})
	if err != nil {
		return nil, p.failTask(ctx, tasks, task, err)
	}

	vtt := filestore.SubtitlePath(r.video.ID)
	if err := p.store.WriteFile(vtt, []byte(caption.Format(cues))); err != nil {
		return nil, p.failTask(ctx, tasks, task, err)
	}
	p.publish(ctx, r.video.ID, vtt)

	if err := tasks.complete(ctx, task); err != nil {
		return nil, err
	}
	return journal.Context{"segment_count": len(segments), "subtitle_path": vtt}, nil
}

func (p *Pipeline) analyze(ctx context.Context, r *run) (journal.Context, error) {
	report, err := p.enricher.Enrich(ctx, r.video.ID, p.guardFor(r))
	if err != nil {
		return nil, err
	}
	if err := report.Err(); err != nil {
		return nil, err
	}
	return report.Context(), nil
}

// failTask records cause on the task and returns it. Stale-generation errors
// from the bookkeeping take precedence so the run halts quietly.
func (p *Pipeline) failTask(ctx context.Context, tasks taskTracker, task *entities.ProcessingTask, cause error) error {
	if errors.Is(cause, repository.ErrStaleGeneration) {
		return cause
	}
	if err := tasks.fail(ctx, task, cause); err != nil {
		if errors.Is(err, repository.ErrStaleGeneration) {
			return err
		}
		zerolog.Ctx(ctx).Error().Err(err).Str("task_id", task.ID.String()).Msg("failed to record task failure")
	}
	return cause
}

func (p *Pipeline) publish(ctx context.Context, videoId uuid.UUID, rel string) {
	if err := p.artifacts.Publish(ctx, videoId, rel); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("artifact", rel).Msg("failed to mirror artifact")
	}
}
