// Package events carries committed domain changes from the services to the
// components that react to them (live delivery, event export).
package events

import (
	"context"

	"chatline/internal/models"
)

// Event is a committed domain change.
type Event interface {
	EventName() string
}

// DirectMessageSent is published after a direct message is persisted.
type DirectMessageSent struct {
	Message models.Message
}

// GroupMessageSent is published after a group message is persisted. Group is
// the state the send was authorised against.
type GroupMessageSent struct {
	Message models.GroupMessageView
	Group   models.Group
}

// GroupChanged is published after a membership or detail change is
// persisted. Group is nil when Action is ActionGroupDeleted, in which case
// PreviousMembers holds who belonged to the group before it was removed.
type GroupChanged struct {
	Action          models.GroupAction
	GroupID         int
	Group           *models.Group
	PreviousMembers []int
	AffectedUserID  int
	ActorID         int
}

func (DirectMessageSent) EventName() string { return "direct_message" }
func (GroupMessageSent) EventName() string { return "group_message" }
func (e GroupChanged) EventName() string { return "group." + string(e.Action) }

// Publisher accepts committed events.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Subscriber reacts to committed events. Handle must not block on network I/O
// for long: it runs on the publishing request's goroutine.
type Subscriber interface {
	Handle(ctx context.Context, event Event)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, event Event)

// Handle calls f.
func (f SubscriberFunc) Handle(ctx context.Context, event Event) { f(ctx, event) }

// Bus delivers each event to every subscriber in registration order.
type Bus struct {
	subscribers []Subscriber
}

// NewBus builds a bus with the given subscribers.
func NewBus(subscribers ...Subscriber) *Bus {
	return &Bus{subscribers: subscribers}
}

// Subscribe adds a subscriber. It is not safe to call concurrently with Publish.
func (b *Bus) Subscribe(s Subscriber) {
	b.subscribers = append(b.subscribers, s)
}

// Publish hands the event to every subscriber synchronously.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if b == nil {
		return
	}
	for _, s := range b.subscribers {
		s.Handle(ctx, event)
	}
}
