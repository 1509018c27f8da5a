package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"chatline/internal/models"
	"chatline/internal/repositories"
)

// CookieName is the session cookie set on login and signup.
const CookieName = "jwt"

const minPasswordLength = 6

var (
	ErrMissingFields      = errors.New("all fields are required")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Service issues and validates session tokens against the user store.
type Service struct {
	users  repositories.UserRepository
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService constructs an auth Service.
func NewService(users repositories.UserRepository, secret string, ttl time.Duration) *Service {
	return &Service{users: users, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is the lifetime of issued tokens.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Signup creates an account and returns it with a fresh token.
func (s *Service) Signup(ctx context.Context, fullName, email, password string) (models.User, string, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.TrimSpace(email)
	if fullName == "" || email == "" || password == "" {
		return models.User{}, "", ErrMissingFields
	}
	if len(password) < minPasswordLength {
		return models.User{}, "", ErrWeakPassword
	}
	hash, err := HashPassword(password)
	if err != nil {
		return models.User{}, "", err
	}
	user, err := s.users.CreateUser(ctx, models.User{Email: email, FullName: fullName, PasswordHash: hash})
	if err != nil {
		return models.User{}, "", err
	}
	token, err := s.IssueToken(user.ID)
	if err != nil {
		return models.User{}, "", err
	}
	return user, token, nil
}

// Login verifies credentials. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (models.User, string, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return models.User{}, "", ErrMissingFields
	}
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, repositories.ErrUserNotFound) {
		return models.User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, "", err
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return models.User{}, "", ErrInvalidCredentials
	}
	token, err := s.IssueToken(user.ID)
	if err != nil {
		return models.User{}, "", err
	}
	return user, token, nil
}

// IssueToken signs an HS256 token whose subject is the user id.
func (s *Service) IssueToken(userID int) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Authenticate resolves a token to the user id it was issued for.
func (s *Service) Authenticate(ctx context.Context, token string) (int, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.Atoi(claims.Subject)
	if err != nil || userID <= 0 {
		return 0, ErrInvalidToken
	}
	return userID, nil
}

// HashPassword hashes a password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// TokenFromRequest reads the session token from the cookie, the bearer
// header or the token query parameter, in that order.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get("token")
}
