package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/internal/repositories"
)

func newTestService() *Service {
	return NewService(repositories.NewMemoryStore(), "test-secret", time.Hour)
}

func TestSignupAndLogin(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	user, token, err := svc.Signup(ctx, "Ada", "Ada@Example.com", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.NotEqual(t, "secret1", user.PasswordHash)

	id, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	logged, _, err := svc.Login(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)
}

func TestSignupValidation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, _, err := svc.Signup(ctx, "", "a@b.c", "secret1")
	assert.ErrorIs(t, err, ErrMissingFields)

	_, _, err = svc.Signup(ctx, "Ada", "a@b.c", "123")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, _, err = svc.Signup(ctx, "Ada", "a@b.c", "secret1")
	require.NoError(t, err)
	_, _, err = svc.Signup(ctx, "Ada", "A@B.C", "secret1")
	assert.ErrorIs(t, err, repositories.ErrEmailTaken)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	_, _, err := svc.Signup(ctx, "Ada", "a@b.c", "secret1")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "a@b.c", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody@b.c", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateRejectsExpiredAndForeignTokens(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	token, err := svc.IssueToken(7)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewService(repositories.NewMemoryStore(), "other-secret", time.Hour)
	foreign, err := other.IssueToken(7)
	require.NoError(t, err)
	svc.now = time.Now
	_, err = svc.Authenticate(ctx, foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=query", nil)
	assert.Equal(t, "query", TokenFromRequest(req))

	req.Header.Set("Authorization", "Bearer header")
	assert.Equal(t, "header", TokenFromRequest(req))

	req.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie"})
	assert.Equal(t, "cookie", TokenFromRequest(req))

	empty := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.Empty(t, TokenFromRequest(empty))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "secret1"))
	assert.False(t, VerifyPassword(hash, "secret2"))
}
