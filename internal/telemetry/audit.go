package telemetry

import (
	"context"
	"log"
	"strconv"
	"time"
)

// Publisher is the transport audit envelopes are written to.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter publishes one envelope per audited request.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level     string `json:"level"`
	Operation string `json:"operation"`
	Text      string `json:"text"`
	GroupID   int    `json:"group_id,omitempty"`
}

// AuditRecord describes one audited operation.
type AuditRecord struct {
	Level     string
	Operation string
	Text      string
	GroupID   int
	RequestID string
	UserID    int
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

// Emit publishes rec. A nil emitter is a no-op and publish failures are only logged.
func (e *AuditEmitter) Emit(ctx context.Context, rec AuditRecord) {
	if e == nil || e.publisher == nil {
		return
	}

	var userID *string
	if rec.UserID != 0 {
		id := strconv.Itoa(rec.UserID)
		userID = &id
	}
	log.Printf("audit emit: level=%s op=%s request_id=%s user_id=%d text=%q", rec.Level, rec.Operation, rec.RequestID, rec.UserID, rec.Text)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     rec.RequestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:     rec.Level,
			Operation: rec.Operation,
			Text:      rec.Text,
			GroupID:   rec.GroupID,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}
