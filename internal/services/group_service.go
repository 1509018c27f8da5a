package services

import (
	"context"
	"errors"
	"strings"

	"chatline/internal/events"
	"chatline/internal/models"
	"chatline/internal/observability"
	"chatline/internal/repositories"
	"chatline/internal/storage"
)

// maxSaveAttempts bounds retries when a save loses a version race with a
// writer outside this process.
const maxSaveAttempts = 3

// GroupService runs the group mutation protocol: load, authorize, validate,
// mutate, persist and then publish the committed change.
type GroupService struct {
	groups   repositories.GroupRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	media    storage.ObjectStore
	events   events.Publisher
	locks    *keyedMutex
}

// NewGroupService constructs a GroupService. publisher may be nil.
func NewGroupService(groups repositories.GroupRepository, messages repositories.MessageRepository, users repositories.UserRepository, media storage.ObjectStore, publisher events.Publisher) *GroupService {
	if publisher == nil {
		publisher = events.NewBus()
	}
	return &GroupService{
		groups:   groups,
		messages: messages,
		users:    users,
		media:    media,
		events:   publisher,
		locks:    newKeyedMutex(),
	}
}

// CreateGroupInput carries the fields accepted at creation.
type CreateGroupInput struct {
	Name        string
	Description string
	Avatar      *storage.Upload
}

// DetailsUpdate lists the detail fields to change. Nil fields are left alone.
type DetailsUpdate struct {
	Name        *string
	Description *string
	Avatar      *storage.Upload
}

func (u DetailsUpdate) empty() bool {
	return u.Name == nil && u.Description == nil && u.Avatar == nil
}

// outcome is what a mutation decided to do with the loaded group.
type outcome struct {
	affected int
	noop     bool
}

// Create makes the caller admin and sole member of a new group.
func (s *GroupService) Create(ctx context.Context, actorID int, in CreateGroupInput) (models.Group, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		observability.IncGroupMutation("create", "rejected")
		return models.Group{}, validationError("group name is required")
	}

	avatarURL := ""
	if in.Avatar != nil {
		url, err := s.storeAvatar(ctx, *in.Avatar)
		if err != nil {
			observability.IncGroupMutation("create", outcomeLabel(err))
			return models.Group{}, err
		}
		avatarURL = url
	}

	group, err := s.groups.CreateGroup(ctx, models.Group{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		AdminID:     actorID,
		MemberIDs:   []int{actorID},
		AvatarURL:   avatarURL,
	})
	if err != nil {
		observability.IncGroupMutation("create", "error")
		return models.Group{}, storageError("create group", err)
	}
	observability.IncGroupMutation("create", "ok")
	return group, nil
}

// Get returns a group the caller belongs to.
func (s *GroupService) Get(ctx context.Context, actorID, groupID int) (models.Group, error) {
	group, err := s.load(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	if !group.Members().Contains(actorID) {
		return models.Group{}, authorizationError("you are not a member of this group")
	}
	return group, nil
}

// List returns the caller's groups.
func (s *GroupService) List(ctx context.Context, actorID int) ([]models.Group, error) {
	groups, err := s.groups.ListGroupsForUser(ctx, actorID)
	if err != nil {
		return nil, storageError("load groups", err)
	}
	return groups, nil
}

// AddMembers adds users to the group. Ids already present are skipped; when
// nothing new remains the call succeeds without saving or notifying.
func (s *GroupService) AddMembers(ctx context.Context, actorID, groupID int, memberIDs []int) (models.Group, error) {
	if len(memberIDs) == 0 {
		return s.reject(models.ActionMembersAdded, validationError("please provide valid member ids"))
	}
	requested := models.NewMemberSet(nil)
	for _, id := range memberIDs {
		if id <= 0 {
			return s.reject(models.ActionMembersAdded, validationError("please provide valid member ids"))
		}
		requested.Add(id)
	}
	group, err := s.mutate(ctx, models.ActionMembersAdded, groupID, actorID, func(g *models.Group) (outcome, error) {
		if g.AdminID != actorID {
			return outcome{}, authorizationError("only the group admin can add members")
		}
		known, err := s.users.BulkUsers(ctx, requested.IDs())
		if err != nil {
			return outcome{}, storageError("load users", err)
		}
		if len(known) != requested.Len() {
			return outcome{}, notFoundError("one or more users were not found")
		}
		members := g.Members()
		added := 0
		for _, id := range requested.IDs() {
			if members.Add(id) {
				added++
			}
		}
		if added == 0 {
			return outcome{noop: true}, nil
		}
		g.MemberIDs = members.IDs()
		return outcome{}, nil
	})
	if err != nil {
		return models.Group{}, err
	}
	return *group, nil
}

// RemoveMember removes targetID. Admins may remove anyone, members only
// themselves. The returned group is nil when the removal emptied it.
func (s *GroupService) RemoveMember(ctx context.Context, actorID, groupID, targetID int) (*models.Group, error) {
	action := models.ActionMemberRemoved
	if actorID == targetID {
		action = models.ActionMemberLeft
	}
	return s.mutate(ctx, action, groupID, actorID, func(g *models.Group) (outcome, error) {
		if g.AdminID != actorID && actorID != targetID {
			return outcome{}, authorizationError("you don't have permission to remove this member")
		}
		if err := removeFromGroup(g, targetID); err != nil {
			return outcome{}, err
		}
		return outcome{affected: targetID}, nil
	})
}

// Leave removes the caller. The group and its messages are deleted when the
// caller was the last member, in which case the returned group is nil.
func (s *GroupService) Leave(ctx context.Context, actorID, groupID int) (*models.Group, error) {
	return s.mutate(ctx, models.ActionMemberLeft, groupID, actorID, func(g *models.Group) (outcome, error) {
		if err := removeFromGroup(g, actorID); err != nil {
			return outcome{}, err
		}
		return outcome{affected: actorID}, nil
	})
}

// UpdateDetails changes any subset of name, description and avatar.
func (s *GroupService) UpdateDetails(ctx context.Context, actorID, groupID int, update DetailsUpdate) (models.Group, error) {
	if update.empty() {
		return s.reject(models.ActionGroupUpdated, validationError("no update data provided"))
	}
	var name string
	if update.Name != nil {
		name = strings.TrimSpace(*update.Name)
		if name == "" {
			return s.reject(models.ActionGroupUpdated, validationError("group name cannot be empty"))
		}
	}

	avatarURL := ""
	if update.Avatar != nil {
		// Check before uploading so rejected callers cannot store media.
		if _, err := s.authorizeAdmin(ctx, actorID, groupID, "only the group admin can update group details"); err != nil {
			return s.reject(models.ActionGroupUpdated, err)
		}
		url, err := s.storeAvatar(ctx, *update.Avatar)
		if err != nil {
			return s.reject(models.ActionGroupUpdated, err)
		}
		avatarURL = url
	}

	group, err := s.mutate(ctx, models.ActionGroupUpdated, groupID, actorID, func(g *models.Group) (outcome, error) {
		if g.AdminID != actorID {
			return outcome{}, authorizationError("only the group admin can update group details")
		}
		if update.Name != nil {
			g.Name = name
		}
		if update.Description != nil {
			g.Description = strings.TrimSpace(*update.Description)
		}
		if avatarURL != "" {
			g.AvatarURL = avatarURL
		}
		return outcome{}, nil
	})
	if err != nil {
		return models.Group{}, err
	}
	return *group, nil
}

// DeleteGroup removes the group and all of its messages.
func (s *GroupService) DeleteGroup(ctx context.Context, actorID, groupID int) error {
	_, err := s.mutate(ctx, models.ActionGroupDeleted, groupID, actorID, func(g *models.Group) (outcome, error) {
		if g.AdminID != actorID {
			return outcome{}, authorizationError("only the group admin can delete the group")
		}
		g.MemberIDs = nil
		return outcome{}, nil
	})
	return err
}

// SendGroupMessage persists a message from a member and publishes it. The
// group lock is held so recipients observe messages in commit order.
func (s *GroupService) SendGroupMessage(ctx context.Context, actorID, groupID int, text string, image *storage.Upload) (models.GroupMessageView, error) {
	if err := models.ValidateContent(text, image != nil); err != nil {
		return models.GroupMessageView{}, validationError(err.Error())
	}

	imageURL := ""
	if image != nil {
		if _, err := s.Get(ctx, actorID, groupID); err != nil {
			return models.GroupMessageView{}, err
		}
		url, err := s.storeMedia(ctx, *image, "store image")
		if err != nil {
			return models.GroupMessageView{}, err
		}
		imageURL = url
	}

	unlock := s.locks.Lock(groupID)
	defer unlock()

	group, err := s.Get(ctx, actorID, groupID)
	if err != nil {
		return models.GroupMessageView{}, err
	}
	sender, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		return models.GroupMessageView{}, userLookupError(err)
	}

	msg, err := s.messages.AppendMessage(ctx, models.NewGroupMessage(actorID, groupID, strings.TrimSpace(text), imageURL))
	if err != nil {
		return models.GroupMessageView{}, storageError("save message", err)
	}
	view := models.GroupMessageView{Message: msg, Sender: sender.Summary()}
	s.events.Publish(ctx, events.GroupMessageSent{Message: view, Group: group})
	return view, nil
}

// ListGroupMessages returns the group's history oldest first with sender
// display info resolved.
func (s *GroupService) ListGroupMessages(ctx context.Context, actorID, groupID int) ([]models.GroupMessageView, error) {
	if _, err := s.Get(ctx, actorID, groupID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListGroupMessages(ctx, groupID)
	if err != nil {
		return nil, storageError("load messages", err)
	}

	senders := models.NewMemberSet(nil)
	for _, m := range msgs {
		senders.Add(m.SenderID)
	}
	byID := map[int]models.UserSummary{}
	if senders.Len() > 0 {
		users, err := s.users.BulkUsers(ctx, senders.IDs())
		if err != nil {
			return nil, storageError("load senders", err)
		}
		for _, u := range users {
			byID[u.ID] = u
		}
	}

	views := make([]models.GroupMessageView, 0, len(msgs))
	for _, m := range msgs {
		sender, ok := byID[m.SenderID]
		if !ok {
			sender = models.UserSummary{ID: m.SenderID}
		}
		views = append(views, models.GroupMessageView{Message: m, Sender: sender})
	}
	return views, nil
}

// mutate applies fn to the latest persisted group while holding the group's
// lock, persists the result and publishes it before releasing the lock. A
// group left without members is deleted instead of saved.
func (s *GroupService) mutate(ctx context.Context, action models.GroupAction, groupID, actorID int, fn func(g *models.Group) (outcome, error)) (*models.Group, error) {
	unlock := s.locks.Lock(groupID)
	defer unlock()

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		current, err := s.load(ctx, groupID)
		if err != nil {
			return nil, s.fail(action, err)
		}
		next := current.Clone()
		out, err := fn(&next)
		if err != nil {
			return nil, s.fail(action, err)
		}
		if out.noop {
			observability.IncGroupMutation(string(action), "noop")
			return &current, nil
		}

		if len(next.MemberIDs) == 0 {
			err := s.groups.DeleteGroup(ctx, groupID, current.Version)
			if errors.Is(err, repositories.ErrVersionConflict) {
				continue
			}
			if err != nil {
				if errors.Is(err, repositories.ErrGroupNotFound) {
					return nil, s.fail(action, notFoundError("group not found"))
				}
				return nil, s.fail(action, storageError("delete group", err))
			}
			observability.IncGroupMutation(string(action), "ok")
			s.events.Publish(ctx, events.GroupChanged{
				Action:          models.ActionGroupDeleted,
				GroupID:         groupID,
				PreviousMembers: current.MemberIDs,
				AffectedUserID:  out.affected,
				ActorID:         actorID,
			})
			return nil, nil
		}

		saved, err := s.groups.SaveGroup(ctx, next)
		if errors.Is(err, repositories.ErrVersionConflict) {
			continue
		}
		if errors.Is(err, repositories.ErrGroupNotFound) {
			return nil, s.fail(action, notFoundError("group not found"))
		}
		if err != nil {
			return nil, s.fail(action, storageError("save group", err))
		}
		observability.IncGroupMutation(string(action), "ok")
		s.events.Publish(ctx, events.GroupChanged{
			Action:          action,
			GroupID:         groupID,
			Group:           &saved,
			PreviousMembers: current.MemberIDs,
			AffectedUserID:  out.affected,
			ActorID:         actorID,
		})
		return &saved, nil
	}
	return nil, s.fail(action, conflictError("group was modified concurrently, please retry"))
}

func (s *GroupService) load(ctx context.Context, groupID int) (models.Group, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if errors.Is(err, repositories.ErrGroupNotFound) {
		return models.Group{}, notFoundError("group not found")
	}
	if err != nil {
		return models.Group{}, storageError("load group", err)
	}
	return group, nil
}

func (s *GroupService) authorizeAdmin(ctx context.Context, actorID, groupID int, msg string) (models.Group, error) {
	group, err := s.load(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	if group.AdminID != actorID {
		return models.Group{}, authorizationError(msg)
	}
	return group, nil
}

func (s *GroupService) storeAvatar(ctx context.Context, upload storage.Upload) (string, error) {
	return s.storeMedia(ctx, upload, "store group avatar")
}

func (s *GroupService) storeMedia(ctx context.Context, upload storage.Upload, op string) (string, error) {
	return storeUpload(ctx, s.media, upload, op)
}

func (s *GroupService) reject(action models.GroupAction, err error) (models.Group, error) {
	return models.Group{}, s.fail(action, err)
}

func (s *GroupService) fail(action models.GroupAction, err error) error {
	observability.IncGroupMutation(string(action), outcomeLabel(err))
	return err
}

// removeFromGroup drops userID from g. When the admin leaves and members
// remain, the earliest-joined remaining member becomes admin.
func removeFromGroup(g *models.Group, userID int) error {
	members := g.Members()
	if !members.Remove(userID) {
		return conflictError("user is not a member of this group")
	}
	g.MemberIDs = members.IDs()
	if g.AdminID == userID {
		if next, ok := members.First(); ok {
			g.AdminID = next
		}
	}
	return nil
}

func storeUpload(ctx context.Context, media storage.ObjectStore, upload storage.Upload, op string) (string, error) {
	if err := upload.Validate(); err != nil {
		return "", validationError(err.Error())
	}
	if media == nil {
		return "", validationError("media uploads are not enabled")
	}
	url, err := media.Store(ctx, upload.Data, upload.ContentType)
	if err != nil {
		return "", storageError(op, err)
	}
	return url, nil
}

func userLookupError(err error) error {
	if errors.Is(err, repositories.ErrUserNotFound) {
		return notFoundError("user not found")
	}
	return storageError("load user", err)
}

func outcomeLabel(err error) string {
	if KindOf(err) == KindStorage {
		return "error"
	}
	return "rejected"
}
