package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"time"
)

type RouterConfig struct {
	AllowOrigins  []string
	TriggerLimit  int
	TriggerWindow time.Duration
}

// NewRouter mounts the lesson API under /api/v1. limiter may be nil.
func NewRouter(h *Handler, limiter *RateLimiter, logger zerolog.Logger, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	config := cors.DefaultConfig()
	if len(cfg.AllowOrigins) > 0 {
		config.AllowOrigins = cfg.AllowOrigins
	} else {
		config.AllowAllOrigins = true
	}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", headerUserId}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	r.Use(cors.New(config))

	AddHealth(r)

	api := r.Group("/api/v1")
	api.Use(RequestLogger(logger))
	{
		api.POST("/courses", h.CreateCourse)
		api.POST("/courses/:id/units", h.CreateUnit)
		api.GET("/courses/:id/progress", h.CourseProgress)
		api.POST("/courses/:id/join", h.JoinCourse)
		api.GET("/courses/:id/learning-status", h.LearningStatus)
		api.GET("/users/current-course", h.CurrentCourse)
		api.POST("/units/:id/lessons", h.UploadLesson)

		lessons := api.Group("/lessons/:id")
		{
			lessons.POST("/process", limiter.Limit("lesson_process", cfg.TriggerLimit, cfg.TriggerWindow), h.ProcessLesson)
			lessons.GET("/status", h.LessonStatus)
			lessons.GET("/journal", h.LessonJournal)
			lessons.GET("/subtitles", h.LessonSubtitles)
			lessons.GET("/subtitle.vtt", h.LessonCaptions)
			lessons.GET("/content", h.LessonContent)
			lessons.POST("/progress", h.ReportProgress)
			lessons.DELETE("", h.DeleteLesson)
		}

		api.PUT("/subtitles/:id", h.UpdateSubtitle)
		api.DELETE("/subtitles/:id", h.DeleteSubtitle)

		api.GET("/videos/:id/progress", h.VideoProgress)
		api.GET("/tasks", h.ListTasks)
	}

	return r
}

func AddHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}
