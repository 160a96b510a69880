package server

import (
	"context"
	"github.com/rs/zerolog"
	"lesson-worker/config"
	jobHandler "lesson-worker/handler"
	"lesson-worker/pkg/rabbitmq"
	"lesson-worker/service"
	"os/signal"
	"syscall"
	"time"
)

// RunWorker consumes pipeline jobs until SIGINT or SIGTERM.
func RunWorker(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := newComponents(ctx, cfg)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("newComponents")
	}
	pipeline, err := c.pipeline()
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("pipeline")
	}

	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("NewRabbitMQConn")
	}

	serviceDeps := jobHandler.ServiceDependencies{
		PipelineService: service.NewService(c.repo, pipeline),
	}
	health := healthServer(ctx, cfg)

	consumer := rabbitmq.NewConsumer(conn, cfg.Queue, rabbitmq.LessonPipeline, cfg.Server.Workers, jobHandler.JobHandler)
	if err := consumer.Consume(ctx, serviceDeps); err != nil && ctx.Err() == nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("pipeline consumer error")
	}

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer stop()
	if err := health.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("health server shutdown")
	}
	zerolog.Ctx(ctx).Info().Msg("worker stopped")
}
