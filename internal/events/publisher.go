package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher delivers domain events to RabbitMQ. Construct once at startup
// with NewPublisher and pass by reference; it holds a single connection and
// channel for the life of the process.
type Publisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher dials the broker and declares the queues this backend
// publishes to. Declaration is idempotent; queues are durable so messages
// survive broker restarts.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events.NewPublisher: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events.NewPublisher: channel: %w", err)
	}

	for _, queue := range []string{QueueStartAuthorized, QueueStartCodeRenewed} {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("events.NewPublisher: declare %s: %w", queue, err)
		}
	}

	return &Publisher{conn: conn, ch: ch}, nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return fmt.Errorf("events.Publisher.Close: %w", err)
	}
	return p.conn.Close()
}

// PublishStartAuthorized publishes to the trip.start_authorized queue.
func (p *Publisher) PublishStartAuthorized(ctx context.Context, ev StartAuthorized) error {
	return p.publish(ctx, QueueStartAuthorized, ev)
}

// PublishStartCodeRenewed publishes to the trip.start_code_renewed queue.
func (p *Publisher) PublishStartCodeRenewed(ctx context.Context, ev StartCodeRenewed) error {
	return p.publish(ctx, QueueStartCodeRenewed, ev)
}

// publish marshals the event and sends it through the default exchange with
// the queue name as routing key. Messages are marked persistent.
func (p *Publisher) publish(ctx context.Context, queue string, ev any) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events.Publisher: marshal %s: %w", queue, err)
	}

	err = p.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("events.Publisher: publish %s: %w", queue, err)
	}
	return nil
}
