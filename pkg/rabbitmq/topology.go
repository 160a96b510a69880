package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Topology names the exchange, queue and dead-letter pair of one job type.
type Topology struct {
	Exchange      string
	Queue         string
	RoutingKey    string
	DLX           string
	DLQ           string
	DLQRoutingKey string
}

var LessonPipeline = Topology{
	Exchange:      "lesson_exchange",
	Queue:         "lesson_pipeline_queue",
	RoutingKey:    "lesson.pipeline.request",
	DLX:           "lesson_exchange_dlx",
	DLQ:           "lesson_pipeline_queue_dlq",
	DLQRoutingKey: "dlq.lesson.pipeline.request",
}

// declare creates the exchanges and queues. Declarations are idempotent so
// producers and consumers both call it.
func (t Topology) declare(ch *amqp.Channel, kind string) error {
	if kind == "" {
		kind = amqp.ExchangeDirect
	}
	if err := ch.ExchangeDeclare(t.Exchange, kind, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(t.DLX, kind, true, false, false, false, nil); err != nil {
		return err
	}

	dlq, err := ch.QueueDeclare(t.DLQ, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(dlq.Name, t.DLQRoutingKey, t.DLX, false, nil); err != nil {
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    t.DLX,
		"x-dead-letter-routing-key": t.DLQRoutingKey,
	}
	q, err := ch.QueueDeclare(t.Queue, true, false, false, false, args)
	if err != nil {
		return err
	}
	return ch.QueueBind(q.Name, t.RoutingKey, t.Exchange, false, nil)
}
