package events

import (
	"encoding/json"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Publisher fans accepted pipeline events out to RabbitMQ. Publishing is best
// effort: it is disabled when no broker URL is configured, and failures are
// logged, never surfaced to the webhook path.
type Publisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	queue   string
	enabled bool
}

// NewPublisher connects to the broker. An empty URL returns a disabled
// publisher; a failed connection does too, so the pipeline keeps running
// without fan-out.
func NewPublisher(url, queue string) *Publisher {
	if queue == "" {
		queue = "zapdesk_events"
	}
	p := &Publisher{queue: queue}

	if url == "" {
		log.Info().Msg("RabbitMQ URL not set, event fan-out disabled")
		return p
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		log.Error().Err(err).Msg("Could not connect to RabbitMQ, event fan-out disabled")
		return p
	}
	channel, err := conn.Channel()
	if err != nil {
		log.Error().Err(err).Msg("Could not open RabbitMQ channel, event fan-out disabled")
		_ = conn.Close()
		return p
	}

	p.conn = conn
	p.channel = channel
	p.enabled = true
	log.Info().Str("queue", queue).Msg("RabbitMQ connection established")
	return p
}

// Enabled reports whether fan-out is active.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// Close releases the broker connection.
func (p *Publisher) Close() {
	if !p.enabled {
		return
	}
	_ = p.channel.Close()
	_ = p.conn.Close()
}

// Publish emits one event. The payload is wrapped with the event type and a
// timestamp.
func (p *Publisher) Publish(eventType string, payload interface{}) {
	if !p.enabled {
		return
	}

	body, err := json.Marshal(map[string]interface{}{
		"event":     eventType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"payload":   payload,
	})
	if err != nil {
		log.Error().Err(err).Str("eventType", eventType).Msg("Failed to marshal event for RabbitMQ")
		return
	}

	// Declare is idempotent.
	if _, err := p.channel.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		log.Error().Err(err).Str("queue", p.queue).Msg("Could not declare RabbitMQ queue")
		return
	}

	err = p.channel.Publish("", p.queue, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		log.Error().Err(err).Str("eventType", eventType).Str("queue", p.queue).Msg("Could not publish to RabbitMQ")
		return
	}
	log.Debug().Str("eventType", eventType).Str("queue", p.queue).Msg("Published event to RabbitMQ")
}
