package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chatline/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

// UserRepository is the credential store.
type UserRepository interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, userID int) (models.User, error)
	ListUsersExcept(ctx context.Context, userID int) ([]models.UserSummary, error)
	BulkUsers(ctx context.Context, ids []int) ([]models.UserSummary, error)
	UpdateAvatar(ctx context.Context, userID int, avatarURL string) (models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, email, full_name, password_hash, avatar_url, created_at`

// CreateUser inserts a user. Emails are compared case-insensitively.
func (r *UserRepo) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	var created models.User
	err := r.db.QueryRowxContext(ctx, `INSERT INTO users (email, full_name, password_hash, avatar_url) VALUES ($1, $2, $3, $4) RETURNING `+userColumns,
		strings.ToLower(user.Email), user.FullName, user.PasswordHash, user.AvatarURL).StructScan(&created)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return models.User{}, ErrEmailTaken
	}
	return created, err
}

// FindByEmail looks a user up by email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email=$1`, strings.ToLower(email))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// FindByID looks a user up by id.
func (r *UserRepo) FindByID(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// ListUsersExcept returns everyone but the caller, for the contact sidebar.
func (r *UserRepo) ListUsersExcept(ctx context.Context, userID int) ([]models.UserSummary, error) {
	users := []models.UserSummary{}
	err := r.db.SelectContext(ctx, &users, `SELECT id, full_name, avatar_url FROM users WHERE id<>$1 ORDER BY full_name ASC`, userID)
	return users, err
}

// BulkUsers fetches display info for several users in one query.
func (r *UserRepo) BulkUsers(ctx context.Context, ids []int) ([]models.UserSummary, error) {
	users := []models.UserSummary{}
	if len(ids) == 0 {
		return users, nil
	}
	id64s := make([]int64, 0, len(ids))
	for _, id := range ids {
		id64s = append(id64s, int64(id))
	}
	err := r.db.SelectContext(ctx, &users, `SELECT id, full_name, avatar_url FROM users WHERE id = ANY($1)`, pq.Array(id64s))
	return users, err
}

// UpdateAvatar sets the profile picture URL.
func (r *UserRepo) UpdateAvatar(ctx context.Context, userID int, avatarURL string) (models.User, error) {
	var user models.User
	err := r.db.QueryRowxContext(ctx, `UPDATE users SET avatar_url=$1 WHERE id=$2 RETURNING `+userColumns, avatarURL, userID).StructScan(&user)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}
