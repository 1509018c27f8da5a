package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"chatline/internal/models"
)

// MessageRepository defines interactions for direct and group messages.
// Messages are append-only; group messages only disappear with their group.
type MessageRepository interface {
	AppendMessage(ctx context.Context, msg models.Message) (models.Message, error)
	ListDirectMessages(ctx context.Context, userID, otherID int) ([]models.Message, error)
	ListGroupMessages(ctx context.Context, groupID int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, sender_id, receiver_id, group_id, text, image_url, created_at`

// AppendMessage stores a message and returns it with its id and timestamp.
func (r *MessageRepo) AppendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := msg.Validate(); err != nil {
		return models.Message{}, err
	}
	var stored models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (sender_id, receiver_id, group_id, text, image_url) VALUES ($1, $2, $3, $4, $5) RETURNING `+messageColumns,
		msg.SenderID, msg.ReceiverID, msg.GroupID, msg.Text, msg.ImageURL).StructScan(&stored)
	return stored, err
}

// ListDirectMessages returns the conversation between two users, oldest first.
func (r *MessageRepo) ListDirectMessages(ctx context.Context, userID, otherID int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + `
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at ASC, id ASC`
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, query, userID, otherID)
	return msgs, err
}

// ListGroupMessages returns a group's messages, oldest first.
func (r *MessageRepo) ListGroupMessages(ctx context.Context, groupID int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages WHERE group_id=$1 ORDER BY created_at ASC, id ASC`, groupID)
	return msgs, err
}
