package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chatline/internal/auth"
	"chatline/internal/observability"
)

const lifecycleRoutingKey = "ws_events.connections"

// Authenticator resolves a session token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (int, error)
}

// LifecyclePublisher exports connection lifecycle events.
type LifecyclePublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// WebSocketHandler upgrades authenticated requests and registers them in the hub.
type WebSocketHandler struct {
	hub       *Hub
	auth      Authenticator
	publisher LifecyclePublisher
}

// NewWebSocketHandler constructs a WebSocketHandler. publisher may be nil.
func NewWebSocketHandler(hub *Hub, authenticator Authenticator, publisher LifecyclePublisher) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, auth: authenticator, publisher: publisher}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, registers the client and blocks until the
// peer disconnects.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chatline/ws").Start(c.Request.Context(), "ws.handshake", trace.WithSpanKind(trace.SpanKindServer))
	c.Request = c.Request.WithContext(ctx)

	token := auth.TokenFromRequest(c.Request)
	if token == "" {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	userID, err := h.auth.Authenticate(ctx, token)
	if err != nil {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	span.SetAttributes(attribute.Int("user.id", userID))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	span.End()
	if err != nil {
		log.Printf("websocket upgrade failed user_id=%d: %v", userID, err)
		return
	}

	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info)
	h.serve(client)
}

func (h *WebSocketHandler) serve(client *Client) {
	info := client.Info()
	h.hub.Register(info.UserID, client)
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publish(info.lifecycleEvent("ws_connect", ""))

	go client.WritePump()
	err := client.ReadPump()

	reason := ""
	if err != nil {
		reason = err.Error()
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			observability.IncWSEvent("ws_error")
			h.publish(info.lifecycleEvent("ws_error", reason))
		}
	}
	h.hub.UnregisterHandle(info.UserID, client)
	client.Close()
	observability.DecWSActive()
	observability.IncWSEvent("ws_disconnect")
	h.publish(info.lifecycleEvent("ws_disconnect", reason))
}

func (h *WebSocketHandler) publish(event lifecycleEnvelope) {
	if h.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.publisher.Publish(ctx, lifecycleRoutingKey, event); err != nil {
		observability.IncAMQPPublishError()
	}
}
