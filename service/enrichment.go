package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"lesson-worker/constant"
	"lesson-worker/entities"
	"lesson-worker/journal"
	"lesson-worker/pkg/llm"
	"lesson-worker/repository"
	"strings"
	"time"
)

type EnrichmentConfig struct {
	TargetLanguage   string
	Accent           string
	TranslationBatch int
	PhoneticBatch    int
	GrammarBatch     int
}

// Enricher adds translation, phonetic and grammar annotations to the
// subtitles of a video. Each kind is its own sub-task: one kind failing does
// not stop the other two.
type Enricher struct {
	repo repository.Repository
	gen  llm.Generator
	cfg  EnrichmentConfig
	now  func() time.Time
}

func NewEnricher(repo repository.Repository, gen llm.Generator, cfg EnrichmentConfig, now func() time.Time) *Enricher {
	if cfg.TranslationBatch < 1 {
		cfg.TranslationBatch = llm.TranslationBatchSize
	}
	if cfg.PhoneticBatch < 1 {
		cfg.PhoneticBatch = llm.PhoneticBatchSize
	}
	if cfg.GrammarBatch < 1 {
		cfg.GrammarBatch = llm.GrammarBatchSize
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Enricher{repo: repo, gen: gen, cfg: cfg, now: now}
}

type KindReport struct {
	TaskType    constant.TaskType
	Status      constant.TaskStatus
	Items       int
	FailedItems int
	Error       string
}

type EnrichmentReport struct {
	Segments int
	Kinds    []KindReport
}

// Err joins the errors of every kind whose sub-task FAILED as a whole.
// Item-level failures are not errors.
func (r EnrichmentReport) Err() error {
	var errs []error
	for _, k := range r.Kinds {
		if k.Status == constant.TaskFailed {
			errs = append(errs, fmt.Errorf("%s: %s", k.TaskType, k.Error))
		}
	}
	return errors.Join(errs...)
}

func (r EnrichmentReport) Context() journal.Context {
	data := journal.Context{"segment_count": r.Segments}
	for _, k := range r.Kinds {
		data[strings.ToLower(string(k.TaskType))] = map[string]interface{}{
			"status":       string(k.Status),
			"failed_items": k.FailedItems,
		}
	}
	return data
}

// Enrich runs the three kinds concurrently over the video's subtitles. The
// returned error is reserved for a halted run: stale generation or a
// cancelled ctx. guard may be nil outside a pipeline run.
func (e *Enricher) Enrich(ctx context.Context, videoId uuid.UUID, guard guardFunc) (EnrichmentReport, error) {
	if guard == nil {
		guard = func(ctx context.Context, fn func(ctx context.Context) error) error {
			return e.repo.Transaction(ctx, fn)
		}
	}
	logger := zerolog.Ctx(ctx).With().Str("video_id", videoId.String()).Logger()
	ctx = logger.WithContext(ctx)

	// texts and the results applied to subtitles share this one ordered slice.
	subtitles, err := e.repo.SubtitlesForVideo(ctx, videoId)
	if err != nil {
		return EnrichmentReport{}, err
	}
	texts := make([]string, len(subtitles))
	for i, s := range subtitles {
		texts[i] = s.OriginalText
	}

	tracker := taskTracker{repo: e.repo, guard: guard, now: e.now}
	kinds := []constant.TaskType{constant.TaskTranslation, constant.TaskPhonetic, constant.TaskGrammarAnalysis}
	tasks := make([]*entities.ProcessingTask, len(kinds))
	for i, kind := range kinds {
		task, err := tracker.create(ctx, videoId, kind)
		if err != nil {
			return EnrichmentReport{}, err
		}
		tasks[i] = task
	}

	reports := make([]KindReport, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		reports[0], err = enrich(gctx, tracker, tasks[0], subtitles,
			func(ctx context.Context, progress func(done, total int)) (llm.BatchResult[string], error) {
				return llm.BatchTranslate(ctx, e.gen, texts, e.cfg.TargetLanguage, e.cfg.TranslationBatch, progress)
			},
			func(ctx context.Context, s *entities.Subtitle, translation string) error {
				return e.repo.SetTranslation(ctx, s.ID, translation)
			})
		return err
	})
	g.Go(func() error {
		var err error
		reports[1], err = enrich(gctx, tracker, tasks[1], subtitles,
			func(ctx context.Context, progress func(done, total int)) (llm.BatchResult[string], error) {
				return llm.BatchPhonetic(ctx, e.gen, texts, e.cfg.Accent, e.cfg.PhoneticBatch, progress)
			},
			func(ctx context.Context, s *entities.Subtitle, phonetic string) error {
				return e.repo.SetPhonetic(ctx, s.ID, phonetic)
			})
		return err
	})
	g.Go(func() error {
		var err error
		reports[2], err = enrich(gctx, tracker, tasks[2], subtitles,
			func(ctx context.Context, progress func(done, total int)) (llm.BatchResult[*llm.Grammar], error) {
				return llm.BatchGrammar(ctx, e.gen, texts, e.cfg.GrammarBatch, progress)
			},
			func(ctx context.Context, s *entities.Subtitle, grammar *llm.Grammar) error {
				if grammar == nil {
					return nil
				}
				return e.repo.SaveGrammarAnalysis(ctx, grammarAnalysis(s.ID, grammar))
			})
		return err
	})
	if err := g.Wait(); err != nil {
		return EnrichmentReport{}, err
	}

	report := EnrichmentReport{Segments: len(subtitles), Kinds: reports}
	logger.Info().Int("segments", report.Segments).AnErr("failure", report.Err()).Msg("enrichment finished")
	return report, nil
}

// enrich runs one kind on its sub-task. Failed items keep the zero value of T
// as their sentinel. A failure of the kind as a whole is recorded on the task
// and in the report; only a halted run is returned as an error.
func enrich[T any](
	ctx context.Context,
	tracker taskTracker,
	task *entities.ProcessingTask,
	subtitles []*entities.Subtitle,
	batch func(ctx context.Context, progress func(done, total int)) (llm.BatchResult[T], error),
	apply func(ctx context.Context, s *entities.Subtitle, value T) error,
) (KindReport, error) {
	logger := zerolog.Ctx(ctx).With().Str("task_type", string(task.TaskType)).Logger()
	ctx = logger.WithContext(ctx)
	report := KindReport{TaskType: task.TaskType, Status: constant.TaskPending, Items: len(subtitles)}

	failKind := func(cause error) (KindReport, error) {
		if errors.Is(cause, repository.ErrStaleGeneration) || ctx.Err() != nil {
			return report, cause
		}
		logger.Error().Err(cause).Msg("enrichment kind failed")
		if err := tracker.fail(ctx, task, cause); err != nil {
			if errors.Is(err, repository.ErrStaleGeneration) {
				return report, err
			}
			logger.Error().Err(err).Msg("failed to record task failure")
		}
		report.Status = constant.TaskFailed
		report.Error = cause.Error()
		return report, nil
	}

	if err := tracker.start(ctx, task); err != nil {
		return failKind(err)
	}

	res, err := batch(ctx, func(done, total int) {
		if total == 0 {
			return
		}
		if err := tracker.progress(ctx, task, done*100/total); err != nil {
			logger.Warn().Err(err).Msg("failed to update task progress")
		}
	})
	if err != nil {
		return failKind(err)
	}
	if len(res.Values) != len(subtitles) {
		return failKind(fmt.Errorf("batch returned %d results for %d subtitles", len(res.Values), len(subtitles)))
	}
	for i, itemErr := range res.Errors {
		if itemErr != nil {
			logger.Warn().Err(itemErr).Int("sequence_number", subtitles[i].SequenceNumber).Msg("item failed, storing sentinel")
		}
	}
	report.FailedItems = res.Failed()

	err = tracker.guard(ctx, func(ctx context.Context) error {
		for i, s := range subtitles {
			if err := apply(ctx, s, res.Values[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return failKind(err)
	}

	if err := tracker.complete(ctx, task); err != nil {
		return failKind(err)
	}
	report.Status = constant.TaskCompleted
	logger.Info().Int("items", report.Items).Int("failed_items", report.FailedItems).Msg("enrichment kind completed")
	return report, nil
}

func grammarAnalysis(subtitleId uuid.UUID, g *llm.Grammar) *entities.GrammarAnalysis {
	words := make([]entities.DifficultWord, 0, len(g.DifficultWords))
	for _, w := range g.DifficultWords {
		words = append(words, entities.DifficultWord{
			Word:         w.Word,
			Definition:   w.Definition,
			Phonetic:     w.Phonetic,
			PartOfSpeech: w.PartOfSpeech,
		})
	}
	analysis := &entities.GrammarAnalysis{
		SubtitleId:     subtitleId,
		GrammarPoints:  datatypes.JSONSlice[string](nonNil(g.GrammarPoints)),
		DifficultWords: datatypes.JSONSlice[entities.DifficultWord](words),
		Phrases:        datatypes.JSONSlice[string](nonNil(g.Phrases)),
	}
	if g.SentenceStructure != "" {
		analysis.SentenceStructure = &g.SentenceStructure
	}
	if g.Explanation != "" {
		analysis.Explanation = &g.Explanation
	}
	return analysis
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
