package services

import (
	"context"
	"strings"

	"chatline/internal/events"
	"chatline/internal/models"
	"chatline/internal/repositories"
	"chatline/internal/storage"
)

// MessageService handles direct messages between two users.
type MessageService struct {
	messages repositories.MessageRepository
	users    repositories.UserRepository
	media    storage.ObjectStore
	events   events.Publisher
}

// NewMessageService constructs a MessageService. publisher may be nil.
func NewMessageService(messages repositories.MessageRepository, users repositories.UserRepository, media storage.ObjectStore, publisher events.Publisher) *MessageService {
	if publisher == nil {
		publisher = events.NewBus()
	}
	return &MessageService{messages: messages, users: users, media: media, events: publisher}
}

// ListContacts returns every user except the caller for the sidebar.
func (s *MessageService) ListContacts(ctx context.Context, userID int) ([]models.UserSummary, error) {
	users, err := s.users.ListUsersExcept(ctx, userID)
	if err != nil {
		return nil, storageError("load users", err)
	}
	return users, nil
}

// ListDirect returns the conversation between userID and otherID oldest first.
func (s *MessageService) ListDirect(ctx context.Context, userID, otherID int) ([]models.Message, error) {
	if otherID <= 0 {
		return nil, validationError("invalid user id")
	}
	msgs, err := s.messages.ListDirectMessages(ctx, userID, otherID)
	if err != nil {
		return nil, storageError("load messages", err)
	}
	return msgs, nil
}

// SendDirect persists a message to receiverID and publishes it. The persisted
// message is returned whether or not the receiver is online.
func (s *MessageService) SendDirect(ctx context.Context, senderID, receiverID int, text string, image *storage.Upload) (models.Message, error) {
	if receiverID <= 0 {
		return models.Message{}, validationError("invalid receiver id")
	}
	if err := models.ValidateContent(text, image != nil); err != nil {
		return models.Message{}, validationError(err.Error())
	}
	if _, err := s.users.FindByID(ctx, receiverID); err != nil {
		return models.Message{}, userLookupError(err)
	}

	imageURL := ""
	if image != nil {
		url, err := storeUpload(ctx, s.media, *image, "store image")
		if err != nil {
			return models.Message{}, err
		}
		imageURL = url
	}

	msg, err := s.messages.AppendMessage(ctx, models.NewDirectMessage(senderID, receiverID, strings.TrimSpace(text), imageURL))
	if err != nil {
		return models.Message{}, storageError("save message", err)
	}
	s.events.Publish(ctx, events.DirectMessageSent{Message: msg})
	return msg, nil
}
