package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatline/internal/mocks"
)

func TestAuditEmitterEnvelope(t *testing.T) {
	pub := &mocks.PublisherMock{}
	var got AuditEnvelope
	pub.On("Publish", mock.Anything, "audit.events", mock.AnythingOfType("telemetry.AuditEnvelope")).
		Run(func(args mock.Arguments) { got = args.Get(2).(AuditEnvelope) }).
		Return(nil)

	emitter := NewAuditEmitter(pub, "audit.events", "chatline", "test")
	emitter.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	emitter.Emit(context.Background(), AuditRecord{
		Level:     "INFO",
		Operation: "group.leave",
		Text:      "left group",
		GroupID:   7,
		RequestID: "req-1",
		UserID:    42,
	})

	pub.AssertExpectations(t)
	assert.Equal(t, "audit_log", got.EventType)
	assert.Equal(t, "2026-01-02T03:04:05Z", got.OccurredAt)
	assert.Equal(t, "req-1", got.RequestID)
	require.NotNil(t, got.UserID)
	assert.Equal(t, "42", *got.UserID)
	assert.Equal(t, 7, got.Payload.GroupID)
	assert.Equal(t, "group.leave", got.Payload.Operation)
}

func TestAuditEmitterToleratesFailures(t *testing.T) {
	pub := &mocks.PublisherMock{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("down"))
	emitter := NewAuditEmitter(pub, "audit.events", "chatline", "test")

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), AuditRecord{Level: "ERROR", Operation: "auth.login"})
	})

	var nilEmitter *AuditEmitter
	assert.NotPanics(t, func() {
		nilEmitter.Emit(context.Background(), AuditRecord{})
	})
}

func TestInitTracingWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "", "chatline", "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
