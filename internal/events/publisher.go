// Package events delivers appointment lifecycle events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"medibook-server/internal/scheduling"
)

// RoutingKeyPrefix is prepended to the event type to form the routing key,
// e.g. "appointment.booked".
const RoutingKeyPrefix = "appointment."

// AMQPPublisher publishes events to a durable topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   zerolog.Logger

	// amqp channels are not safe for concurrent publishing
	mu sync.Mutex
}

// NewAMQPPublisher dials url and declares exchange.
func NewAMQPPublisher(url, exchange string, logger zerolog.Logger) (*AMQPPublisher, error) {
	logger = logger.With().Str("component", "events").Str("exchange", exchange).Logger()

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	logger.Info().Msg("rabbitmq publisher ready")
	return &AMQPPublisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// Publish sends ev as a persistent JSON message.
func (p *AMQPPublisher) Publish(ctx context.Context, ev scheduling.Event) error {
	msg, err := buildPublishing(ev)
	if err != nil {
		return err
	}
	key := RoutingKey(ev.Type)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.PublishWithContext(ctx, p.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	p.logger.Debug().Str("routing_key", key).Str("appointment_id", ev.AppointmentID).Msg("event published")
	return nil
}

// Close shuts down the channel and the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// RoutingKey returns the routing key for an event type.
func RoutingKey(t scheduling.EventType) string {
	return RoutingKeyPrefix + string(t)
}

func buildPublishing(ev scheduling.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.New().String(),
		Timestamp:    ev.OccurredAt,
		Type:         string(ev.Type),
		Body:         body,
	}, nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, scheduling.Event) error { return nil }

// Close is a no-op.
func (Nop) Close() error { return nil }
