package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatline/internal/auth"
)

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "userID"

// Authenticator resolves a session token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (int, error)
}

// AuthMiddleware validates the session token from the jwt cookie or the
// Authorization header.
func AuthMiddleware(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.TokenFromRequest(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		userID, err := authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}
