package ws

import (
	"encoding/json"
	"log"
	"sort"
	"sync"

	"chatline/internal/models"
)

// Handle is a live connection owned by the hub while it is registered.
type Handle interface {
	ID() string
	Send(payload []byte) error
	Close()
}

// Hub is the presence registry: at most one live handle per user.
type Hub struct {
	mu      sync.RWMutex
	clients map[int]Handle

	// broadcastMu orders online-user snapshots so a connection never sees an
	// older list after a newer one.
	broadcastMu sync.Mutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[int]Handle)}
}

// Register makes handle the user's live connection. A previously registered
// handle for the same user is replaced and closed.
func (h *Hub) Register(userID int, handle Handle) {
	h.mu.Lock()
	previous, had := h.clients[userID]
	h.clients[userID] = handle
	h.mu.Unlock()

	if had && previous != handle {
		previous.Close()
	}
	h.broadcastOnline()
}

// Unregister removes the user's handle, if any.
func (h *Hub) Unregister(userID int) {
	h.mu.Lock()
	_, had := h.clients[userID]
	delete(h.clients, userID)
	h.mu.Unlock()

	if had {
		h.broadcastOnline()
	}
}

// UnregisterHandle removes the user's entry only while it still points at
// handle, so a stale disconnect cannot evict a newer connection.
func (h *Hub) UnregisterHandle(userID int, handle Handle) bool {
	h.mu.Lock()
	current, ok := h.clients[userID]
	removed := ok && current == handle
	if removed {
		delete(h.clients, userID)
	}
	h.mu.Unlock()

	if removed {
		h.broadcastOnline()
	}
	return removed
}

// Lookup returns the user's live handle. Absence means unreachable.
func (h *Hub) Lookup(userID int) (Handle, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	handle, ok := h.clients[userID]
	return handle, ok
}

// ListOnline returns the ids of connected users in ascending order.
func (h *Hub) ListOnline() []int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onlineLocked()
}

// CloseAll closes every registered handle and empties the hub.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	handles := make([]Handle, 0, len(h.clients))
	for id, handle := range h.clients {
		handles = append(handles, handle)
		delete(h.clients, id)
	}
	h.mu.Unlock()

	for _, handle := range handles {
		handle.Close()
	}
}

func (h *Hub) onlineLocked() []int {
	ids := make([]int, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (h *Hub) broadcastOnline() {
	h.broadcastMu.Lock()
	defer h.broadcastMu.Unlock()

	h.mu.RLock()
	ids := h.onlineLocked()
	handles := make([]Handle, 0, len(h.clients))
	for _, handle := range h.clients {
		handles = append(handles, handle)
	}
	h.mu.RUnlock()

	payload, err := json.Marshal(models.SocketEvent{Event: models.EventOnlineUsers, Data: ids})
	if err != nil {
		log.Printf("online users marshal error: %v", err)
		return
	}
	for _, handle := range handles {
		if err := handle.Send(payload); err != nil {
			log.Printf("online users push dropped conn_id=%s: %v", handle.ID(), err)
		}
	}
}
