package notify

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultQueue = "appointment_notifications"

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher queues email jobs on a RabbitMQ queue for the mail worker.
type Publisher struct {
	channel Channel
	queue   string
}

func NewPublisher(channel Channel, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Publisher{channel: channel, queue: queue}
}

func (p *Publisher) Dispatch(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    payload.AppointmentID.String() + ":" + string(payload.Event),
		Type:         string(payload.Event),
		Headers: amqp.Table{
			"message_type":     "JSON",
			"requeue_strategy": "DROP",
		},
	}
	if err := p.channel.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Dial connects to the broker and declares the durable notification queue.
// The returned close func releases the channel and the connection.
func Dial(url, queue string) (*Publisher, func() error, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare queue %q: %w", queue, err)
	}

	closeFn := func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return NewPublisher(ch, queue), closeFn, nil
}
