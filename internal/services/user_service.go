package services

import (
	"context"

	"chatline/internal/models"
	"chatline/internal/repositories"
	"chatline/internal/storage"
)

// UserService serves profile reads and avatar changes.
type UserService struct {
	users repositories.UserRepository
	media storage.ObjectStore
}

// NewUserService constructs a UserService.
func NewUserService(users repositories.UserRepository, media storage.ObjectStore) *UserService {
	return &UserService{users: users, media: media}
}

// Profile returns the user's record.
func (s *UserService) Profile(ctx context.Context, userID int) (models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return models.User{}, userLookupError(err)
	}
	return user, nil
}

// UpdateAvatar stores the upload and points the user's avatar at it.
func (s *UserService) UpdateAvatar(ctx context.Context, userID int, upload *storage.Upload) (models.User, error) {
	if upload == nil {
		return models.User{}, validationError("profile pic is required")
	}
	if _, err := s.Profile(ctx, userID); err != nil {
		return models.User{}, err
	}
	url, err := storeUpload(ctx, s.media, *upload, "store avatar")
	if err != nil {
		return models.User{}, err
	}
	user, err := s.users.UpdateAvatar(ctx, userID, url)
	if err != nil {
		return models.User{}, userLookupError(err)
	}
	return user, nil
}
