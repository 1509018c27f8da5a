package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatline/internal/services"
	"chatline/internal/storage"
	"chatline/internal/telemetry"
)

// MessageHandler serves direct-message endpoints.
type MessageHandler struct {
	messages *services.MessageService
	audit    *telemetry.AuditEmitter
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(messages *services.MessageService, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{messages: messages, audit: audit}
}

// ListUsers returns everyone the caller can message.
func (h *MessageHandler) ListUsers(c *gin.Context) {
	users, err := h.messages.ListContacts(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// GetMessages returns the conversation with the user in the path.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	otherID, ok := pathID(c, "id")
	if !ok {
		return
	}
	msgs, err := h.messages.ListDirect(c.Request.Context(), userIDFromContext(c), otherID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SendMessage persists a direct message and pushes it to the receiver.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	receiverID, ok := pathID(c, "id")
	if !ok {
		return
	}
	text, image, ok := bindMessage(c)
	if !ok {
		return
	}

	msg, err := h.messages.SendDirect(c.Request.Context(), userIDFromContext(c), receiverID, text, image)
	if err != nil {
		emitAudit(c, h.audit, "ERROR", "message.send", err.Error(), 0)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// bindMessage reads {"text", "image"} where image is a data URL. It writes
// the 400 response itself on failure.
func bindMessage(c *gin.Context) (string, *storage.Upload, bool) {
	var req struct {
		Text  string `json:"text"`
		Image string `json:"image"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return "", nil, false
	}
	image, err := dataURLUpload(req.Image)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", nil, false
	}
	return req.Text, image, true
}
