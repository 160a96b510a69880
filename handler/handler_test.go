package handler

import (
	"context"
	"errors"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lesson-worker/dto"
	"testing"
)

type recordingService struct {
	got []dto.PipelineMessage
	err error
}

func (s *recordingService) Process(_ context.Context, message dto.PipelineMessage) error {
	s.got = append(s.got, message)
	return s.err
}

func TestJobHandlerDecodesMessage(t *testing.T) {
	svc := &recordingService{}
	jobId, lessonId := uuid.New(), uuid.New()
	body := []byte(`{"jobId":"` + jobId.String() + `","lessonId":"` + lessonId.String() + `","generation":3}`)

	err := JobHandler(context.Background(), amqp.Delivery{Body: body}, ServiceDependencies{PipelineService: svc})
	require.NoError(t, err)
	require.Len(t, svc.got, 1)
	assert.Equal(t, dto.PipelineMessage{JobId: jobId, LessonId: lessonId, Generation: 3}, svc.got[0])
}

func TestJobHandlerBadPayloadIsPermanent(t *testing.T) {
	svc := &recordingService{}
	err := JobHandler(context.Background(), amqp.Delivery{Body: []byte("{not json")}, ServiceDependencies{PipelineService: svc})

	var permanent *backoff.PermanentError
	assert.True(t, errors.As(err, &permanent))
	assert.Empty(t, svc.got)
}

func TestJobHandlerPropagatesServiceError(t *testing.T) {
	svc := &recordingService{err: errors.New("db down")}
	body := []byte(`{"jobId":"` + uuid.NewString() + `","lessonId":"` + uuid.NewString() + `","generation":0}`)

	err := JobHandler(context.Background(), amqp.Delivery{Body: body}, ServiceDependencies{PipelineService: svc})
	assert.EqualError(t, err, "db down")
}
