package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatline/internal/auth"
	"chatline/internal/middleware"
	"chatline/internal/repositories"
	"chatline/internal/services"
	"chatline/internal/storage"
	"chatline/internal/telemetry"
)

// AuthHandler serves signup, login and profile endpoints.
type AuthHandler struct {
	auth         *auth.Service
	users        *services.UserService
	audit        *telemetry.AuditEmitter
	cookieSecure bool
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(authService *auth.Service, users *services.UserService, audit *telemetry.AuditEmitter, cookieSecure bool) *AuthHandler {
	return &AuthHandler{auth: authService, users: users, audit: audit, cookieSecure: cookieSecure}
}

// Signup handles POST /api/auth/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req struct {
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	user, token, err := h.auth.Signup(c.Request.Context(), req.FullName, req.Email, req.Password)
	if err != nil {
		emitAudit(c, h.audit, "ERROR", "auth.signup", err.Error(), 0)
		writeAuthError(c, err)
		return
	}
	h.setSessionCookie(c, token)
	c.Set(middleware.UserIDKey, user.ID)
	emitAudit(c, h.audit, "INFO", "auth.signup", "user signed up", 0)
	c.JSON(http.StatusCreated, gin.H{"user": user, "token": token})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	user, token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		emitAudit(c, h.audit, "ERROR", "auth.login", err.Error(), 0)
		writeAuthError(c, err)
		return
	}
	h.setSessionCookie(c, token)
	c.Set(middleware.UserIDKey, user.ID)
	emitAudit(c, h.audit, "INFO", "auth.login", "user logged in", 0)
	c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(auth.CookieName, "", -1, "/", "", h.cookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

// Check handles GET /api/auth/check.
func (h *AuthHandler) Check(c *gin.Context) {
	user, err := h.users.Profile(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateProfile handles PUT /api/auth/update-profile. The avatar arrives as a
// multipart profilePic file or as a data URL in the JSON "image" field.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var (
		upload *storage.Upload
		err    error
	)
	if isMultipart(c) {
		upload, err = formUpload(c, "profilePic")
	} else {
		var req struct {
			Image string `json:"image"`
		}
		if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
			return
		}
		upload, err = dataURLUpload(req.Image)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.UpdateAvatar(c.Request.Context(), userIDFromContext(c), upload)
	emitAudit(c, h.audit, auditLevel(err), "auth.update_profile", auditText(err, "profile updated"), 0)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(auth.CookieName, token, int(h.auth.TTL().Seconds()), "/", "", h.cookieSecure, true)
}

func writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrMissingFields), errors.Is(err, auth.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
