package service

import (
	"context"
	"fmt"
	"github.com/rs/zerolog"
	"lesson-worker/entities"
	"lesson-worker/pkg/filestore"
	"lesson-worker/pkg/lock"
	"lesson-worker/repository"
	"time"
)

const (
	DefaultStuckTimeout = time.Hour
	sweepLockKey        = "watchdog:sweep"
	sweepLockTTL        = 5 * time.Minute
)

type WatchdogDeps struct {
	Repo         repository.Repository
	Store        *filestore.Store
	Artifacts    ArtifactPublisher
	Locker       lock.Locker
	StuckTimeout time.Duration
	Now          func() time.Time
}

// Watchdog reaps sub-tasks stuck in PROCESSING and releases the media of
// soft-deleted lessons. Both sweeps only act on what they still find, so
// running them twice or on two replicas at once is harmless.
type Watchdog struct {
	repo      repository.Repository
	store     *filestore.Store
	artifacts ArtifactPublisher
	locker    lock.Locker
	timeout   time.Duration
	now       func() time.Time
}

func NewWatchdog(deps WatchdogDeps) *Watchdog {
	if deps.StuckTimeout <= 0 {
		deps.StuckTimeout = DefaultStuckTimeout
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.Locker == nil {
		deps.Locker = lock.Noop{}
	}
	if deps.Artifacts == nil {
		deps.Artifacts = NoopArtifacts{}
	}
	return &Watchdog{
		repo:      deps.Repo,
		store:     deps.Store,
		artifacts: deps.Artifacts,
		locker:    deps.Locker,
		timeout:   deps.StuckTimeout,
		now:       deps.Now,
	}
}

type SweepResult struct {
	Skipped    bool
	Reaped     int
	Collected  int
	GCFailures int
}

// ReapStuck fails every PROCESSING task started more than the timeout ago.
// The update is conditional, so a task finished or reaped concurrently is
// left alone and not counted.
func (w *Watchdog) ReapStuck(ctx context.Context) (int, error) {
	now := w.now()
	cutoff := now.Add(-w.timeout)
	tasks, err := w.repo.StuckTasks(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stuck tasks: %w", err)
	}

	msg := fmt.Sprintf("task timed out: stuck in PROCESSING for more than %s", w.timeout)
	reaped := 0
	for _, task := range tasks {
		logger := zerolog.Ctx(ctx).With().
			Str("task_id", task.ID.String()).
			Str("task_type", string(task.TaskType)).
			Str("video_id", task.VideoId.String()).
			Logger()

		ok, err := w.repo.ReapTask(ctx, task.ID, cutoff, msg, now)
		if err != nil {
			logger.Error().Err(err).Msg("failed to reap task")
			continue
		}
		if !ok {
			logger.Debug().Msg("task already moved on")
			continue
		}
		reaped++
		logger.Warn().Time("started_at", *task.StartedAt).Msg("reaped stuck task")
	}
	return reaped, nil
}

// CollectGarbage deletes files, objects and rows of the media owned by
// soft-deleted lessons. A lesson that fails is logged and retried on the
// next sweep.
func (w *Watchdog) CollectGarbage(ctx context.Context) (collected, failed int, err error) {
	lessons, err := w.repo.DeletedLessonsWithMedia(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("find deleted lessons: %w", err)
	}

	for _, lesson := range lessons {
		logger := zerolog.Ctx(ctx).With().
			Str("lesson_id", lesson.ID.String()).
			Str("video_id", lesson.VideoId.String()).
			Logger()
		if err := w.collect(ctx, lesson); err != nil {
			logger.Error().Err(err).Msg("failed to collect lesson media")
			failed++
			continue
		}
		collected++
		logger.Info().Msg("collected lesson media")
	}
	return collected, failed, nil
}

func (w *Watchdog) collect(ctx context.Context, lesson *entities.Lesson) error {
	videoId := *lesson.VideoId
	if err := w.store.RemoveVideo(videoId); err != nil {
		return fmt.Errorf("remove files: %w", err)
	}
	if err := w.artifacts.Purge(ctx, videoId); err != nil {
		return fmt.Errorf("purge artifacts: %w", err)
	}
	return w.repo.Transaction(ctx, func(ctx context.Context) error {
		if err := w.repo.DeleteVideo(ctx, videoId); err != nil {
			return err
		}
		return w.repo.DetachVideo(ctx, lesson.ID)
	})
}

// Sweep runs both sweeps once, unless another replica holds the sweep lock.
func (w *Watchdog) Sweep(ctx context.Context) (SweepResult, error) {
	release, ok, err := w.locker.TryLock(ctx, sweepLockKey, sweepLockTTL)
	if err != nil {
		return SweepResult{}, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		zerolog.Ctx(ctx).Info().Msg("sweep running elsewhere, skipping")
		return SweepResult{Skipped: true}, nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to release sweep lock")
		}
	}()

	var result SweepResult
	result.Reaped, err = w.ReapStuck(ctx)
	if err != nil {
		return result, err
	}
	result.Collected, result.GCFailures, err = w.CollectGarbage(ctx)
	if err != nil {
		return result, err
	}

	zerolog.Ctx(ctx).Info().
		Int("reaped", result.Reaped).
		Int("collected", result.Collected).
		Int("gc_failures", result.GCFailures).
		Msg("sweep completed")
	return result, nil
}

// Start sweeps immediately and then on every interval until ctx is done.
func (w *Watchdog) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got: %v", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	zerolog.Ctx(ctx).Info().Dur("interval", interval).Dur("stuck_timeout", w.timeout).Msg("watchdog started")
	for {
		if _, err := w.Sweep(ctx); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("sweep failed")
		}
		select {
		case <-ctx.Done():
			zerolog.Ctx(ctx).Info().Msg("watchdog stopped")
			return nil
		case <-ticker.C:
		}
	}
}
