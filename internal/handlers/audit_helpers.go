package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatline/internal/middleware"
	"chatline/internal/observability"
	"chatline/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(observability.RequestIDKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(observability.RequestIDKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) int {
	return c.GetInt(middleware.UserIDKey)
}

// auditText is the failure reason when err is set, otherwise success.
func auditText(err error, success string) string {
	if err != nil {
		return err.Error()
	}
	return success
}

func emitAudit(c *gin.Context, emitter *telemetry.AuditEmitter, level, operation, text string, groupID int) {
	if emitter == nil {
		return
	}
	emitter.Emit(c.Request.Context(), telemetry.AuditRecord{
		Level:     level,
		Operation: operation,
		Text:      text,
		GroupID:   groupID,
		RequestID: requestIDFromContext(c),
		UserID:    userIDFromContext(c),
	})
}
