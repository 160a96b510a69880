package api

import (
	"github.com/gin-gonic/gin"
	"lesson-worker/dto"
	"net/http"
)

// POST /api/v1/courses/:id/join
func (h *Handler) JoinCourse(c *gin.Context) {
	courseId, err := paramId(c, "id")
	if err != nil {
		abort(c, err)
		return
	}
	enrollment, err := h.learning.JoinCourse(c.Request.Context(), c.GetHeader(headerUserId), courseId)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.JoinCourseResponse{
		CourseId: enrollment.CourseId,
		IsActive: enrollment.IsActive,
		JoinedAt: enrollment.JoinedAt,
	})
}

// GET /api/v1/users/current-course
func (h *Handler) CurrentCourse(c *gin.Context) {
	course, err := h.learning.CurrentCourse(c.Request.Context(), c.GetHeader(headerUserId))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

// GET /api/v1/courses/:id/learning-status
func (h *Handler) LearningStatus(c *gin.Context) {
	courseId, err := paramId(c, "id")
	if err != nil {
		abort(c, err)
		return
	}
	resp, err := h.learning.CourseLearningStatus(c.Request.Context(), c.GetHeader(headerUserId), courseId)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /api/v1/lessons/:id/progress
func (h *Handler) ReportProgress(c *gin.Context) {
	lessonId, err := paramId(c, "id")
	if err != nil {
		abort(c, err)
		return
	}
	var req dto.ProgressUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	progress, err := h.learning.UpdateLessonProgress(c.Request.Context(), c.GetHeader(headerUserId), lessonId, req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// GET /api/v1/lessons/:id/content
func (h *Handler) LessonContent(c *gin.Context) {
	lessonId, err := paramId(c, "id")
	if err != nil {
		abort(c, err)
		return
	}
	resp, err := h.queries.LessonContent(c.Request.Context(), lessonId)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PUT /api/v1/subtitles/:id
func (h *Handler) UpdateSubtitle(c *gin.Context) {
	subtitleId, err := paramId(c, "id")
	if err != nil {
		abort(c, err)
		return
	}
	var req dto.UpdateSubtitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	subtitle, err := h.lessons.UpdateSubtitle(c.Request.Context(), subtitleId, req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, subtitle)
}

// DELETE /api/v1/subtitles/:id
func (h *Handler) DeleteSubtitle(c *gin.Context) {
	subtitleId, err := paramId(c, "id")
	if err != nil {
		abort(c, err)
		return
	}
	if err := h.lessons.DeleteSubtitle(c.Request.Context(), subtitleId); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
