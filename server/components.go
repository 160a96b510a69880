package server

import (
	"context"
	"errors"
	"github.com/rs/zerolog"
	"lesson-worker/config"
	"lesson-worker/dto"
	"lesson-worker/pkg/filestore"
	"lesson-worker/pkg/llm"
	"lesson-worker/pkg/lock"
	"lesson-worker/pkg/media"
	"lesson-worker/pkg/rabbitmq"
	"lesson-worker/pkg/whisper"
	"lesson-worker/repository"
	"lesson-worker/service"
	"time"
)

var errQueueUnavailable = errors.New("queue unavailable")

// components are the handles shared by every process role.
type components struct {
	cfg       *config.Config
	repo      repository.Repository
	store     *filestore.Store
	artifacts service.ArtifactPublisher
}

func newComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	store, err := filestore.NewOS(cfg.Upload.Dir)
	if err != nil {
		return nil, err
	}

	var artifacts service.ArtifactPublisher = service.NoopArtifacts{}
	if cfg.Storage != nil && cfg.MinIOBucket != "" {
		artifacts = service.NewMinioArtifacts(cfg.Storage, cfg.MinIOBucket, store)
		zerolog.Ctx(ctx).Info().Str("bucket", cfg.MinIOBucket).Msg("mirroring artifacts to object storage")
	}

	return &components{
		cfg:       cfg,
		repo:      repository.NewRepo(cfg.DB),
		store:     store,
		artifacts: artifacts,
	}, nil
}

func now() time.Time {
	return time.Now().UTC()
}

func (c *components) pipeline() (*service.Pipeline, error) {
	generator, err := llm.New(llm.Config{
		BaseURL: c.cfg.OpenAI.BaseURL,
		APIKey:  c.cfg.OpenAI.APIKey,
		Model:   c.cfg.OpenAI.Model,
		Timeout: c.cfg.OpenAI.Timeout,
	})
	if err != nil {
		return nil, err
	}

	registry := whisper.NewRegistry(whisper.DirLoader(c.cfg.Whisper.ModelDir), c.cfg.Whisper.Slots)
	enricher := service.NewEnricher(c.repo, generator, service.EnrichmentConfig{
		TargetLanguage:   c.cfg.Pipeline.TargetLanguage,
		Accent:           c.cfg.Pipeline.Accent,
		TranslationBatch: c.cfg.Pipeline.TranslationBatch,
		PhoneticBatch:    c.cfg.Pipeline.PhoneticBatch,
		GrammarBatch:     c.cfg.Pipeline.GrammarBatch,
	}, now)

	return service.NewPipeline(service.PipelineDeps{
		Repo:        c.repo,
		Store:       c.store,
		Extractor:   media.NewFFmpeg(c.cfg.FFmpeg.FFmpeg, c.cfg.FFmpeg.FFprobe),
		Transcriber: whisper.NewCLI(c.cfg.Whisper.Binary, c.cfg.Whisper.Model, registry),
		Enricher:    enricher,
		Artifacts:   c.artifacts,
		Config: service.PipelineConfig{
			Language:    c.cfg.Pipeline.Language,
			ThumbnailAt: c.cfg.Pipeline.ThumbnailAt,
		},
		Now: now,
	}), nil
}

func (c *components) watchdog() *service.Watchdog {
	var locker lock.Locker = lock.Noop{}
	if c.cfg.Redis != nil {
		locker = lock.NewRedis(c.cfg.Redis)
	}
	return service.NewWatchdog(service.WatchdogDeps{
		Repo:         c.repo,
		Store:        c.store,
		Artifacts:    c.artifacts,
		Locker:       locker,
		StuckTimeout: c.cfg.Watchdog.StuckTimeout,
		Now:          now,
	})
}

// queue connects the publisher. Without a broker, uploads still succeed and
// their jobs are marked FAILED until the lesson is triggered again.
func (c *components) queue(ctx context.Context) service.Queue {
	conn, err := config.NewRabbitMQConn(ctx, c.cfg.Queue)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
		return unavailableQueue{}
	}
	return service.NewRabbitQueue(rabbitmq.NewPublisher(conn, c.cfg.Queue, rabbitmq.LessonPipeline))
}

type unavailableQueue struct{}

func (unavailableQueue) Enqueue(context.Context, dto.PipelineMessage) error {
	return errQueueUnavailable
}
