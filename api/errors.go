package api

import (
	"errors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"lesson-worker/constant"
	"lesson-worker/dto"
	"lesson-worker/pkg/filestore"
	"lesson-worker/repository"
	"lesson-worker/service"
	"net/http"
)

var errBadId = errors.New("invalid id")

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadId),
		errors.Is(err, service.ErrNoMedia),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, filestore.ErrUnsupportedFormat),
		errors.Is(err, constant.ErrUnknownStatus):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrLessonBusy),
		errors.Is(err, constant.ErrInvalidTransition):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// abort writes err as a JSON error body. Internal errors are logged and their
// text is not exposed.
func abort(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
		message = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, dto.ErrorResponse{Error: message})
}
