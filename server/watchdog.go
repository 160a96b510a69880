package server

import (
	"context"
	"github.com/rs/zerolog"
	"lesson-worker/config"
	"lesson-worker/service"
	"os/signal"
	"syscall"
)

// RunWatchdog sweeps on cfg.Watchdog.Interval until SIGINT or SIGTERM.
func RunWatchdog(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := newComponents(ctx, cfg)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("newComponents")
	}
	if cfg.Redis == nil {
		zerolog.Ctx(ctx).Warn().Msg("redis not configured, sweeps are not coordinated across replicas")
	}
	if err := c.watchdog().Start(ctx, cfg.Watchdog.Interval); err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("watchdog")
	}
}

// Sweep runs one watchdog pass.
func Sweep(ctx context.Context, cfg *config.Config) (service.SweepResult, error) {
	c, err := newComponents(ctx, cfg)
	if err != nil {
		return service.SweepResult{}, err
	}
	return c.watchdog().Sweep(ctx)
}
