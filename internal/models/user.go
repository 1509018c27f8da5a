package models

import "time"

// User is an account that can chat.
type User struct {
	ID           int       `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	FullName     string    `db:"full_name" json:"full_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	AvatarURL    string    `db:"avatar_url" json:"avatar_url"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// UserSummary is the display information attached to pushed and listed messages.
type UserSummary struct {
	ID        int    `db:"id" json:"id"`
	FullName  string `db:"full_name" json:"full_name"`
	AvatarURL string `db:"avatar_url" json:"avatar_url"`
}

// Summary strips credentials and email from the user.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, FullName: u.FullName, AvatarURL: u.AvatarURL}
}
