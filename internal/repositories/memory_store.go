package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"chatline/internal/models"
)

// MemoryStore keeps users, groups and messages in process memory. It
// implements UserRepository, GroupRepository and MessageRepository with the
// same version and cascade rules as the SQL repositories.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[int]models.User
	groups   map[int]models.Group
	messages []models.Message
	nextUser int
	nextGrp  int
	nextMsg  int
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[int]models.User),
		groups: make(map[int]models.Group),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var (
	_ UserRepository    = (*MemoryStore)(nil)
	_ GroupRepository   = (*MemoryStore)(nil)
	_ MessageRepository = (*MemoryStore)(nil)
)

// CreateUser stores a user.
func (s *MemoryStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(user.Email)
	for _, u := range s.users {
		if u.Email == email {
			return models.User{}, ErrEmailTaken
		}
	}
	s.nextUser++
	user.ID = s.nextUser
	user.Email = email
	user.CreatedAt = s.now()
	s.users[user.ID] = user
	return user, nil
}

// FindByEmail looks a user up by email.
func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, ErrUserNotFound
}

// FindByID looks a user up by id.
func (s *MemoryStore) FindByID(ctx context.Context, userID int) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return u, nil
}

// ListUsersExcept returns everyone but userID ordered by name.
func (s *MemoryStore) ListUsersExcept(ctx context.Context, userID int) ([]models.UserSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.UserSummary{}
	for id, u := range s.users {
		if id != userID {
			out = append(out, u.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

// BulkUsers returns display info for the known ids.
func (s *MemoryStore) BulkUsers(ctx context.Context, ids []int) ([]models.UserSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.UserSummary{}
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u.Summary())
		}
	}
	return out, nil
}

// UpdateAvatar sets a user's avatar URL.
func (s *MemoryStore) UpdateAvatar(ctx context.Context, userID int, avatarURL string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	u.AvatarURL = avatarURL
	s.users[userID] = u
	return u, nil
}

// CreateGroup stores a new group.
func (s *MemoryStore) CreateGroup(ctx context.Context, group models.Group) (models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextGrp++
	created := group.Clone()
	created.ID = s.nextGrp
	created.Version = 1
	created.CreatedAt = s.now()
	created.UpdatedAt = created.CreatedAt
	s.groups[created.ID] = created
	return created.Clone(), nil
}

// GetGroup returns a copy of the stored group.
func (s *MemoryStore) GetGroup(ctx context.Context, groupID int) (models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return models.Group{}, ErrGroupNotFound
	}
	return g.Clone(), nil
}

// SaveGroup replaces the stored group when the versions match.
func (s *MemoryStore) SaveGroup(ctx context.Context, group models.Group) (models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.groups[group.ID]
	if !ok {
		return models.Group{}, ErrGroupNotFound
	}
	if current.Version != group.Version {
		return models.Group{}, ErrVersionConflict
	}
	saved := group.Clone()
	saved.CreatedAt = current.CreatedAt
	saved.Version = current.Version + 1
	saved.UpdatedAt = s.now()
	s.groups[saved.ID] = saved
	return saved.Clone(), nil
}

// DeleteGroup removes the group and its messages if it is still at
// expectedVersion.
func (s *MemoryStore) DeleteGroup(ctx context.Context, groupID, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	delete(s.groups, groupID)
	s.deleteGroupMessagesLocked(groupID)
	return nil
}

// ListGroupsForUser returns the user's groups, newest first.
func (s *MemoryStore) ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Group{}
	for _, g := range s.groups {
		if g.Members().Contains(userID) {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// AppendMessage stores a message with a fresh id and timestamp.
func (s *MemoryStore) AppendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := msg.Validate(); err != nil {
		return models.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMsg++
	msg.ID = s.nextMsg
	msg.CreatedAt = s.now()
	s.messages = append(s.messages, msg)
	return msg, nil
}

// ListDirectMessages returns the conversation between two users, oldest first.
func (s *MemoryStore) ListDirectMessages(ctx context.Context, userID, otherID int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Message{}
	for _, m := range s.messages {
		if m.ReceiverID == nil {
			continue
		}
		if (m.SenderID == userID && *m.ReceiverID == otherID) || (m.SenderID == otherID && *m.ReceiverID == userID) {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListGroupMessages returns a group's messages, oldest first.
func (s *MemoryStore) ListGroupMessages(ctx context.Context, groupID int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Message{}
	for _, m := range s.messages {
		if m.GroupID != nil && *m.GroupID == groupID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryStore) deleteGroupMessagesLocked(groupID int) {
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.GroupID == nil || *m.GroupID != groupID {
			kept = append(kept, m)
		}
	}
	s.messages = kept
}
