// Package delivery pushes committed messages and group changes to the live
// connections of the users they concern.
package delivery

import (
	"context"
	"encoding/json"
	"log"

	"chatline/internal/events"
	"chatline/internal/models"
	"chatline/internal/observability"
	"chatline/internal/ws"
)

// Presence resolves a user to their live connection.
type Presence interface {
	Lookup(userID int) (ws.Handle, bool)
}

// Router is an events.Subscriber that fans events out over the presence
// registry. Pushes are best-effort: offline users are skipped and a full or
// closed connection drops the event.
type Router struct {
	presence Presence
}

// NewRouter constructs a Router.
func NewRouter(presence Presence) *Router {
	return &Router{presence: presence}
}

// Handle routes a committed event.
func (r *Router) Handle(ctx context.Context, event events.Event) {
	switch e := event.(type) {
	case events.DirectMessageSent:
		r.RouteDirectMessage(e.Message)
	case events.GroupMessageSent:
		r.RouteGroupMessage(e.Message, e.Group)
	case events.GroupChanged:
		r.RouteGroupUpdate(e)
	}
}

// RouteDirectMessage pushes the message to its receiver only.
func (r *Router) RouteDirectMessage(msg models.Message) {
	if msg.ReceiverID == nil {
		return
	}
	payload, ok := encode(models.EventNewDirectMessage, msg)
	if !ok {
		return
	}
	r.push(*msg.ReceiverID, models.EventNewDirectMessage, payload)
}

// RouteGroupMessage pushes the message to every member except its sender.
func (r *Router) RouteGroupMessage(msg models.GroupMessageView, group models.Group) {
	payload, ok := encode(models.EventNewGroupMessage, msg)
	if !ok {
		return
	}
	for _, memberID := range group.MemberIDs {
		if memberID == msg.SenderID {
			continue
		}
		r.push(memberID, models.EventNewGroupMessage, payload)
	}
}

// RouteGroupUpdate pushes the new group state to its current members, or the
// deletion notice to the members it had before it was removed.
func (r *Router) RouteGroupUpdate(change events.GroupChanged) {
	update := models.GroupUpdate{
		Action:         change.Action,
		GroupID:        change.GroupID,
		AffectedUserID: change.AffectedUserID,
	}
	recipients := change.PreviousMembers
	if change.Action != models.ActionGroupDeleted {
		if change.Group == nil {
			return
		}
		update.Group = change.Group
		recipients = change.Group.MemberIDs
	}

	payload, ok := encode(models.EventGroupUpdate, update)
	if !ok {
		return
	}
	for _, memberID := range recipients {
		r.push(memberID, models.EventGroupUpdate, payload)
	}
}

func (r *Router) push(userID int, event string, payload []byte) {
	handle, ok := r.presence.Lookup(userID)
	if !ok {
		observability.IncPush(event, "offline")
		return
	}
	if err := handle.Send(payload); err != nil {
		observability.IncPush(event, "dropped")
		log.Printf("push dropped event=%s user_id=%d conn_id=%s: %v", event, userID, handle.ID(), err)
		return
	}
	observability.IncPush(event, "delivered")
}

func encode(event string, data any) ([]byte, bool) {
	payload, err := json.Marshal(models.SocketEvent{Event: event, Data: data})
	if err != nil {
		log.Printf("push marshal error event=%s: %v", event, err)
		return nil, false
	}
	return payload, true
}
