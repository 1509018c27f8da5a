package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/internal/events"
	"chatline/internal/storage"
)

func TestSendDirectToOfflineReceiver(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	sender, receiver := f.userIDs[0], f.userIDs[1]

	msg, err := f.direct.SendDirect(ctx, sender, receiver, "are you there?", nil)
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())

	history, err := f.direct.ListDirect(ctx, receiver, sender)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)

	all := f.events.all()
	require.Len(t, all, 1)
	sent, ok := all[0].(events.DirectMessageSent)
	require.True(t, ok)
	assert.Equal(t, msg.ID, sent.Message.ID)
}

func TestSendDirectValidation(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	sender, receiver := f.userIDs[0], f.userIDs[1]

	_, err := f.direct.SendDirect(ctx, sender, receiver, "", nil)
	assert.ErrorIs(t, err, ErrValidation)

	image := &storage.Upload{Data: []byte{1}, ContentType: "image/png"}
	_, err = f.direct.SendDirect(ctx, sender, receiver, "caption", image)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.direct.SendDirect(ctx, sender, 999, "hi", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	history, err := f.direct.ListDirect(ctx, sender, receiver)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, f.events.all())
}

func TestSendDirectImage(t *testing.T) {
	f := newFixture(t, 2)
	image := &storage.Upload{Data: []byte{1}, ContentType: "image/png"}

	msg, err := f.direct.SendDirect(context.Background(), f.userIDs[0], f.userIDs[1], "", image)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/1.png", msg.ImageURL)
	assert.Empty(t, msg.Text)
}

func TestListContactsExcludesCaller(t *testing.T) {
	f := newFixture(t, 3)
	contacts, err := f.direct.ListContacts(context.Background(), f.userIDs[0])
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	for _, c := range contacts {
		assert.NotEqual(t, f.userIDs[0], c.ID)
	}
}

func TestUserServiceUpdateAvatar(t *testing.T) {
	f := newFixture(t, 1)
	users := NewUserService(f.store, f.media)
	ctx := context.Background()

	_, err := users.UpdateAvatar(ctx, f.userIDs[0], nil)
	assert.ErrorIs(t, err, ErrValidation)

	updated, err := users.UpdateAvatar(ctx, f.userIDs[0], &storage.Upload{Data: []byte{1}, ContentType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/1.png", updated.AvatarURL)

	_, err = users.Profile(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}
