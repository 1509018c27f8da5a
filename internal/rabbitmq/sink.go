package rabbitmq

import (
	"context"
	"log"
	"sync"
	"time"

	"chatline/internal/events"
	"chatline/internal/models"
	"chatline/internal/observability"
)

const (
	routingKeyPrefix   = "chat."
	defaultSinkBuffer  = 1024
	sinkPublishTimeout = 5 * time.Second
)

// ExportEnvelope is the message body written for each exported domain event.
type ExportEnvelope struct {
	SchemaVersion int    `json:"schema_version"`
	EventType     string `json:"event_type"`
	OccurredAt    string `json:"occurred_at"`
	Service       string `json:"service"`
	Payload       any    `json:"payload"`
}

type groupMessagePayload struct {
	Message   models.GroupMessageView `json:"message"`
	MemberIDs []int                   `json:"member_ids"`
}

type groupChangePayload struct {
	Action          models.GroupAction `json:"action"`
	GroupID         int                `json:"group_id"`
	Group           *models.Group      `json:"group,omitempty"`
	PreviousMembers []int              `json:"previous_members"`
	AffectedUserID  int                `json:"affected_user_id,omitempty"`
	ActorID         int                `json:"actor_id"`
}

type queuedEvent struct {
	routingKey string
	envelope   ExportEnvelope
}

// EventSink exports committed domain events over a Publisher. Handle only
// enqueues; a single worker publishes in order. Events are dropped when the
// queue is full.
type EventSink struct {
	publisher Publisher
	service   string
	queue     chan queuedEvent
	done      chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewEventSink starts the export worker. buffer <= 0 selects the default.
func NewEventSink(publisher Publisher, service string, buffer int) *EventSink {
	if buffer <= 0 {
		buffer = defaultSinkBuffer
	}
	s := &EventSink{
		publisher: publisher,
		service:   service,
		queue:     make(chan queuedEvent, buffer),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// RoutingKey returns the exchange routing key for event.
func RoutingKey(event events.Event) string {
	return routingKeyPrefix + event.EventName()
}

// Handle enqueues event for export.
func (s *EventSink) Handle(ctx context.Context, event events.Event) {
	payload, ok := exportPayload(event)
	if !ok {
		return
	}
	item := queuedEvent{
		routingKey: RoutingKey(event),
		envelope: ExportEnvelope{
			SchemaVersion: 1,
			EventType:     event.EventName(),
			OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
			Service:       s.service,
			Payload:       payload,
		},
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- item:
	default:
		observability.IncAMQPPublishError()
		log.Printf("event export dropped routing_key=%s: queue full", item.routingKey)
	}
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (s *EventSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *EventSink) run() {
	defer close(s.done)
	for item := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sinkPublishTimeout)
		if err := s.publisher.Publish(ctx, item.routingKey, item.envelope); err != nil {
			observability.IncAMQPPublishError()
			log.Printf("event export failed routing_key=%s: %v", item.routingKey, err)
		}
		cancel()
	}
}

func exportPayload(event events.Event) (any, bool) {
	switch e := event.(type) {
	case events.DirectMessageSent:
		return e.Message, true
	case events.GroupMessageSent:
		return groupMessagePayload{Message: e.Message, MemberIDs: e.Group.MemberIDs}, true
	case events.GroupChanged:
		return groupChangePayload{
			Action:          e.Action,
			GroupID:         e.GroupID,
			Group:           e.Group,
			PreviousMembers: e.PreviousMembers,
			AffectedUserID:  e.AffectedUserID,
			ActorID:         e.ActorID,
		}, true
	}
	return nil, false
}
