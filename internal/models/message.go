package models

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrEmptyMessage     = errors.New("message must carry text or an image")
	ErrAmbiguousContent = errors.New("message must carry either text or an image, not both")
	ErrBadRecipient     = errors.New("message must be addressed to exactly one user or group")
)

// Message is an immutable direct or group message. Exactly one of
// ReceiverID and GroupID is set.
type Message struct {
	ID         int       `db:"id" json:"id"`
	SenderID   int       `db:"sender_id" json:"sender_id"`
	ReceiverID *int      `db:"receiver_id" json:"receiver_id,omitempty"`
	GroupID    *int      `db:"group_id" json:"group_id,omitempty"`
	Text       string    `db:"text" json:"text,omitempty"`
	ImageURL   string    `db:"image_url" json:"image_url,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// NewDirectMessage addresses a message to a single user.
func NewDirectMessage(senderID, receiverID int, text, imageURL string) Message {
	return Message{SenderID: senderID, ReceiverID: &receiverID, Text: text, ImageURL: imageURL}
}

// NewGroupMessage addresses a message to a group.
func NewGroupMessage(senderID, groupID int, text, imageURL string) Message {
	return Message{SenderID: senderID, GroupID: &groupID, Text: text, ImageURL: imageURL}
}

// IsDirect reports whether the message targets a single user.
func (m Message) IsDirect() bool {
	return m.ReceiverID != nil
}

// Validate checks the recipient union and the content rule.
func (m Message) Validate() error {
	if (m.ReceiverID == nil) == (m.GroupID == nil) {
		return ErrBadRecipient
	}
	return ValidateContent(m.Text, m.ImageURL != "")
}

// ValidateContent requires exactly one of text and image to be present.
func ValidateContent(text string, hasImage bool) error {
	hasText := strings.TrimSpace(text) != ""
	switch {
	case !hasText && !hasImage:
		return ErrEmptyMessage
	case hasText && hasImage:
		return ErrAmbiguousContent
	}
	return nil
}

// GroupMessageView is a group message with its sender's display info resolved.
type GroupMessageView struct {
	Message
	Sender UserSummary `json:"sender"`
}

// SocketEvent is the envelope written to live connections.
type SocketEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Live event names.
const (
	EventNewDirectMessage = "new-direct-message"
	EventNewGroupMessage  = "new-group-message"
	EventGroupUpdate      = "group-update"
	EventOnlineUsers      = "online-users"
)
