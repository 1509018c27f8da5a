package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type onlineLister interface {
	ListOnline() []int
}

// PresenceHandler exposes the presence registry snapshot.
type PresenceHandler struct {
	presence onlineLister
}

// NewPresenceHandler constructs a PresenceHandler.
func NewPresenceHandler(presence onlineLister) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// OnlineUsers returns the ids of connected users.
func (h *PresenceHandler) OnlineUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online_users": h.presence.ListOnline()})
}
