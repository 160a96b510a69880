package service

import (
	"context"
	"lesson-worker/dto"
	"lesson-worker/pkg/rabbitmq"
)

// Queue dispatches pipeline jobs. The job row stays the source of truth.
type Queue interface {
	Enqueue(ctx context.Context, message dto.PipelineMessage) error
}

type rabbitQueue struct {
	publisher rabbitmq.Publisher
}

func NewRabbitQueue(publisher rabbitmq.Publisher) Queue {
	return &rabbitQueue{publisher: publisher}
}

func (q *rabbitQueue) Enqueue(ctx context.Context, message dto.PipelineMessage) error {
	return q.publisher.Publish(ctx, message)
}
