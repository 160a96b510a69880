package api

import (
	"errors"
	"fmt"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"io"
	"lesson-worker/constant"
	"lesson-worker/dto"
	"lesson-worker/repository"
	"lesson-worker/service"
	"net/http"
	"strconv"
)

type Handler struct {
	lessons  *service.Lessons
	queries  *service.Queries
	learning *service.Learning
}

func NewHandler(lessons *service.Lessons, queries *service.Queries, learning *service.Learning) *Handler {
	return &Handler{lessons: lessons, queries: queries, learning: learning}
}

func paramId(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", errBadId, c.Param(name))
	}
	return id, nil
}

// POST /api/v1/courses
func (h *Handler) CreateCourse(c *gin.Context) {
	var req dto.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	course, err := h.lessons.CreateCourse(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

// POST /api/v1/courses/:id/units
func (h *Handler) CreateUnit(c *gin.Context) {
	courseId, err := paramId(c, "id")
	if err != nil {
		abort(c, err)
		return
	}
	var req dto.CreateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	unit, err := h.lessons.CreateUnit(c.Request.Context(), courseId, req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, unit)
}

// POST /api/v1/units/:id/lessons (multipart: file, title)
func (h *Handler) UploadLesson(c *gin.Context) {
	unitId, err := paramId(c, "id")
	if err != nil {
		abort(c, err)
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "file is required"})
		return
	}
	file, err := header.Open()
	if err != nil {
		abort(c, err)
		return
	}
	defer file.Close()

	lesson, job, err := h.lessons.CreateLessonFromUpload(c.Request.Context(), unitId, c.PostForm("title"), header.Filename, file)
	if err != nil && lesson == nil {
		abort(c, err)
		return
	}
	resp := dto.TriggerResponse{
		JobId:      job.ID,
		LessonId:   lesson.ID,
		Generation: job.Generation,
		Status:     string(job.Status),
	}
	// The lesson exists even when dispatch failed; it can be triggered again.
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// POST /api/v1/lessons/:id/process
func (h *Handler) ProcessLesson(c *gin.Context) {
	lessonId, err := paramId(c, "id")
	if err != nil {
		abort(c, err)
		return
	}
	var req dto.ProcessLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	job, err := h.lessons.Trigger(c.Request.Context(), lessonId, req.Force)
	if err != nil && job == nil {
		abort(c, err)
		return
	}
	resp := dto.TriggerResponse{
		JobId:      job.ID,
		LessonId:   lessonId,
		Generation: job.Generation,
		Status:     string(job.Status),
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

// GET /api/v1/lessons/:id/status
func (h *Handler) LessonStatus(c *gin.Context) {
	lessonId, err := paramId(c, "id")
	if err != nil {
		abort(c, err)
		return
	}
	resp, err := h.queries.LessonStatus(c.Request.Context(), lessonId)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/v1/lessons/:id/journal
func (h *Handler) LessonJournal(c *gin.Context) {
	lessonId, err := paramId(c, "id")
	if err != nil {
		abort(c, err)
		return
	}
	entries, err := h.queries.Journal(c.Request.Context(), lessonId)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// GET /api/v1/lessons/:id/subtitles
func (h *Handler) LessonSubtitles(c *gin.Context) {
	lessonId, err := paramId(c, "id")
	if err != nil {
		abort(c, err)
		return
	}
	subtitles, err := h.queries.LessonSubtitles(c.Request.Context(), lessonId)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, subtitles)
}

// GET /api/v1/lessons/:id/subtitle.vtt
func (h *Handler) LessonCaptions(c *gin.Context) {
	lessonId, err := paramId(c, "id")
	if err != nil {
		abort(c, err)
		return
	}
	vtt, err := h.queries.LessonCaptions(c.Request.Context(), lessonId)
	if err != nil {
		abort(c, err)
		return
	}
	c.Data(http.StatusOK, "text/vtt; charset=utf-8", []byte(vtt))
}

// DELETE /api/v1/lessons/:id
func (h *Handler) DeleteLesson(c *gin.Context) {
	lessonId, err := paramId(c, "id")
	if err != nil {
		abort(c, err)
		return
	}
	if err := h.lessons.DeleteLesson(c.Request.Context(), lessonId); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/v1/videos/:id/progress
func (h *Handler) VideoProgress(c *gin.Context) {
	videoId, err := paramId(c, "id")
	if err != nil {
		abort(c, err)
		return
	}
	resp, err := h.queries.VideoProgress(c.Request.Context(), videoId)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/v1/courses/:id/progress
func (h *Handler) CourseProgress(c *gin.Context) {
	courseId, err := paramId(c, "id")
	if err != nil {
		abort(c, err)
		return
	}
	resp, err := h.queries.CourseProgress(c.Request.Context(), courseId)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/v1/tasks?status=&type=&video_id=&limit=&offset=
func (h *Handler) ListTasks(c *gin.Context) {
	filter, err := taskFilter(c)
	if err != nil {
		abort(c, err)
		return
	}
	resp, err := h.queries.Tasks(c.Request.Context(), filter)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func taskFilter(c *gin.Context) (repository.TaskFilter, error) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	filter := repository.TaskFilter{Limit: limit, Offset: offset}

	if s := c.Query("status"); s != "" {
		status, err := constant.ParseTaskStatus(s)
		if err != nil {
			return filter, err
		}
		filter.Status = &status
	}
	if s := c.Query("type"); s != "" {
		taskType, err := constant.ParseTaskType(s)
		if err != nil {
			return filter, err
		}
		filter.TaskType = &taskType
	}
	if s := c.Query("video_id"); s != "" {
		videoId, err := uuid.Parse(s)
		if err != nil {
			return filter, fmt.Errorf("%w: %s", errBadId, s)
		}
		filter.VideoId = &videoId
	}
	return filter, nil
}
