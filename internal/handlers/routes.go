package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chatline/internal/middleware"
	"chatline/internal/observability"
	"chatline/internal/telemetry"
)

// Routes bundles everything the HTTP router serves.
type Routes struct {
	ServiceName   string
	Auth          *AuthHandler
	Messages      *MessageHandler
	Groups        *GroupHandler
	Presence      *PresenceHandler
	WebSocket     gin.HandlerFunc
	Authenticator middleware.Authenticator
	Audit         *telemetry.AuditEmitter
	UploadDir     string
	Debug         bool
}

// NewRouter builds the gin engine with middleware and every API route.
func NewRouter(r Routes) *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = 8 << 20
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(r.ServiceName))
	router.Use(observability.RequestIDMiddleware())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
	if r.UploadDir != "" {
		router.Static("/uploads", r.UploadDir)
	}
	if r.WebSocket != nil {
		router.GET("/ws", r.WebSocket)
	}

	authMiddleware := middleware.AuthMiddleware(r.Authenticator)
	api := router.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/signup", r.Auth.Signup)
	authGroup.POST("/login", r.Auth.Login)
	authGroup.POST("/logout", r.Auth.Logout)
	authGroup.PUT("/update-profile", authMiddleware, r.Auth.UpdateProfile)
	authGroup.GET("/check", authMiddleware, r.Auth.Check)

	messages := api.Group("/messages", authMiddleware)
	messages.GET("/users", r.Messages.ListUsers)
	messages.GET("/:id", r.Messages.GetMessages)
	messages.POST("/send/:id", r.Messages.SendMessage)

	groups := api.Group("/groups", authMiddleware)
	groups.POST("", r.Groups.CreateGroup)
	groups.GET("", r.Groups.ListGroups)
	groups.GET("/:group_id", r.Groups.GetGroup)
	groups.PUT("/:group_id", r.Groups.UpdateGroup)
	groups.DELETE("/:group_id", r.Groups.DeleteGroup)
	groups.POST("/:group_id/members", r.Groups.AddMembers)
	groups.DELETE("/:group_id/members/:member_id", r.Groups.RemoveMember)
	groups.DELETE("/:group_id/leave", r.Groups.LeaveGroup)
	groups.GET("/:group_id/messages", r.Groups.GetGroupMessages)
	groups.POST("/:group_id/messages", r.Groups.PostGroupMessage)

	api.GET("/presence/online", authMiddleware, r.Presence.OnlineUsers)

	RegisterDebugRoutes(router, r.Audit, r.Debug)
	return router
}
