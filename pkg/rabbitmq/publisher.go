package rabbitmq

import (
	"context"
	"encoding/json"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"lesson-worker/config"
	"time"
)

type Publisher interface {
	Publish(ctx context.Context, message interface{}) error
}

type publisher struct {
	conn     *amqp.Connection
	cfg      *config.RabbitMQ
	topology Topology
}

func NewPublisher(conn *amqp.Connection, cfg *config.RabbitMQ, topology Topology) Publisher {
	return &publisher{conn: conn, cfg: cfg, topology: topology}
}

// Publish sends message as a persistent JSON body on the topology's routing key.
func (p *publisher) Publish(ctx context.Context, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := p.topology.declare(ch, p.cfg.Kind); err != nil {
		return err
	}

	return ch.PublishWithContext(
		ctx,
		p.topology.Exchange,
		p.topology.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
}
