package handler

import (
	"context"
	"encoding/json"
	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"lesson-worker/dto"
	"lesson-worker/service"
)

type ServiceDependencies struct {
	PipelineService service.Service
}

// JobHandler decodes one pipeline message and runs it. An undecodable payload
// goes straight to the dead-letter queue.
func JobHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var message dto.PipelineMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("message_id", msg.MessageId).Msg("failed to unmarshal pipeline message")
		return backoff.Permanent(err)
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", message.JobId.String()).
		Str("lesson_id", message.LessonId.String()).
		Int("generation", message.Generation).
		Msg("received pipeline message")

	return deps.PipelineService.Process(ctx, message)
}
