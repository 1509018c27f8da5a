package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chatline/internal/models"
	"chatline/internal/repositories"
	"chatline/internal/storage"
)

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) CreateGroup(ctx context.Context, group models.Group) (models.Group, error) {
	args := m.Called(ctx, group)
	var created models.Group
	if val := args.Get(0); val != nil {
		created = val.(models.Group)
	}
	return created, args.Error(1)
}

func (m *GroupRepositoryMock) GetGroup(ctx context.Context, groupID int) (models.Group, error) {
	args := m.Called(ctx, groupID)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) SaveGroup(ctx context.Context, group models.Group) (models.Group, error) {
	args := m.Called(ctx, group)
	var saved models.Group
	if val := args.Get(0); val != nil {
		saved = val.(models.Group)
	}
	return saved, args.Error(1)
}

func (m *GroupRepositoryMock) DeleteGroup(ctx context.Context, groupID, expectedVersion int) error {
	args := m.Called(ctx, groupID, expectedVersion)
	return args.Error(0)
}

func (m *GroupRepositoryMock) ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error) {
	args := m.Called(ctx, userID)
	var groups []models.Group
	if val := args.Get(0); val != nil {
		groups = val.([]models.Group)
	}
	return groups, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) AppendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var saved models.Message
	if val := args.Get(0); val != nil {
		saved = val.(models.Message)
	}
	return saved, args.Error(1)
}

func (m *MessageRepositoryMock) ListDirectMessages(ctx context.Context, userID, otherID int) ([]models.Message, error) {
	args := m.Called(ctx, userID, otherID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListGroupMessages(ctx context.Context, groupID int) ([]models.Message, error) {
	args := m.Called(ctx, groupID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	args := m.Called(ctx, user)
	var created models.User
	if val := args.Get(0); val != nil {
		created = val.(models.User)
	}
	return created, args.Error(1)
}

func (m *UserRepositoryMock) FindByEmail(ctx context.Context, email string) (models.User, error) {
	args := m.Called(ctx, email)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) FindByID(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) ListUsersExcept(ctx context.Context, userID int) ([]models.UserSummary, error) {
	args := m.Called(ctx, userID)
	var users []models.UserSummary
	if val := args.Get(0); val != nil {
		users = val.([]models.UserSummary)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) BulkUsers(ctx context.Context, ids []int) ([]models.UserSummary, error) {
	args := m.Called(ctx, ids)
	var users []models.UserSummary
	if val := args.Get(0); val != nil {
		users = val.([]models.UserSummary)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) UpdateAvatar(ctx context.Context, userID int, avatarURL string) (models.User, error) {
	args := m.Called(ctx, userID, avatarURL)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

type ObjectStoreMock struct {
	mock.Mock
}

func (m *ObjectStoreMock) Store(ctx context.Context, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, data, contentType)
	return args.String(0), args.Error(1)
}

var _ repositories.GroupRepository = (*GroupRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ storage.ObjectStore = (*ObjectStoreMock)(nil)
