package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"chatline/internal/telemetry"
)

// Publisher publishes JSON events to a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher dials the broker and declares a durable topic exchange.
// Any failure along the way yields a noop publisher so the service keeps
// serving chat traffic without an export path.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		return newNoop("empty amqp url")
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return newNoop(err.Error())
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return newNoop(err.Error())
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return newNoop(fmt.Sprintf("declare exchange %q: %v", exchange, err))
	}

	log.Printf("rabbitmq connected exchange=%s", exchange)
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange}
}

type amqpPublisher struct {
	// channels are not safe for concurrent publishes
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", routingKey, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         eventType(event),
		Body:         body,
	}

	p.mu.Lock()
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	p.mu.Unlock()
	if err != nil {
		log.Printf("rabbitmq publish failed routing_key=%s: %v", routingKey, err)
	}
	return err
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	reason string
}

func newNoop(reason string) noopPublisher {
	log.Printf("rabbitmq disabled, using noop: %s", reason)
	return noopPublisher{reason: reason}
}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	log.Printf("rabbitmq noop publish routing_key=%s event_type=%s", routingKey, eventType(event))
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// eventType extracts the envelope event type, or "" for unknown payloads.
func eventType(event any) string {
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		return envelope.EventType
	case *telemetry.AuditEnvelope:
		return envelope.EventType
	case ExportEnvelope:
		return envelope.EventType
	case *ExportEnvelope:
		return envelope.EventType
	default:
		return ""
	}
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason reports why the noop publisher was selected.
func PublisherNoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}
