package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"lesson-worker/api"
	"lesson-worker/config"
	"lesson-worker/constant"
	"lesson-worker/service"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	c, err := newComponents(ctx, cfg)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("newComponents")
	}
	if err := c.repo.AutoMigrate(); err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("AutoMigrate")
	}

	lessons := service.NewLessons(c.repo, c.store, c.queue(ctx), now)
	handler := api.NewHandler(lessons, service.NewQueries(c.repo), service.NewLearning(c.repo, now))

	var limiter *api.RateLimiter
	if cfg.Redis != nil {
		limiter = api.NewRateLimiter(cfg.Redis)
	}
	r := api.NewRouter(handler, limiter, *zerolog.Ctx(ctx), api.RouterConfig{
		TriggerLimit:  cfg.Server.TriggerLimit,
		TriggerWindow: cfg.Server.TriggerWindow,
	})

	srv := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Str("addr", srv.Addr).Msg("start http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

// healthServer exposes /health for processes that have no API.
func healthServer(ctx context.Context, cfg *config.Config) *http.Server {
	r := gin.New()
	api.AddHealth(r)
	srv := &http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("health server")
		}
	}()
	return srv
}

func SetupLogger(cfg *config.Config) context.Context {
	return setupLogger(cfg)
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
