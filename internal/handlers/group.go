package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatline/internal/services"
	"chatline/internal/telemetry"
)

// GroupHandler manages group-related endpoints.
type GroupHandler struct {
	groups *services.GroupService
	audit  *telemetry.AuditEmitter
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groups *services.GroupService, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{groups: groups, audit: audit}
}

// CreateGroup handles POST /api/groups. Multipart forms carry the avatar as
// the groupProfile file; JSON bodies carry it as a data URL in "image".
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var in services.CreateGroupInput
	if isMultipart(c) {
		in.Name = c.PostForm("name")
		in.Description = c.PostForm("description")
		avatar, err := formUpload(c, "groupProfile")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		in.Avatar = avatar
	} else {
		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Image       string `json:"image"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			emitAudit(c, h.audit, "ERROR", "group.create", "invalid request payload", 0)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
			return
		}
		avatar, err := dataURLUpload(req.Image)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		in = services.CreateGroupInput{Name: req.Name, Description: req.Description, Avatar: avatar}
	}

	group, err := h.groups.Create(c.Request.Context(), userIDFromContext(c), in)
	if err != nil {
		emitAudit(c, h.audit, "ERROR", "group.create", err.Error(), 0)
		writeError(c, err)
		return
	}
	emitAudit(c, h.audit, "INFO", "group.create", "group created", group.ID)
	c.JSON(http.StatusCreated, gin.H{"group": group})
}

// ListGroups returns groups the caller belongs to.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups, err := h.groups.List(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// GetGroup returns one group to a member.
func (h *GroupHandler) GetGroup(c *gin.Context) {
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}
	group, err := h.groups.Get(c.Request.Context(), userIDFromContext(c), groupID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// AddMembers handles POST /api/groups/:group_id/members.
func (h *GroupHandler) AddMembers(c *gin.Context) {
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}
	var req struct {
		Members []int `json:"members"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "please provide valid member ids"})
		return
	}

	group, err := h.groups.AddMembers(c.Request.Context(), userIDFromContext(c), groupID, req.Members)
	emitAudit(c, h.audit, auditLevel(err), "group.add_members", auditText(err, "members added"), groupID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// RemoveMember handles DELETE /api/groups/:group_id/members/:member_id.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}
	memberID, ok := pathID(c, "member_id")
	if !ok {
		return
	}

	group, err := h.groups.RemoveMember(c.Request.Context(), userIDFromContext(c), groupID, memberID)
	emitAudit(c, h.audit, auditLevel(err), "group.remove_member", auditText(err, "member removed"), groupID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group, "deleted": group == nil})
}

// UpdateGroup handles PUT /api/groups/:group_id. Only the fields present in
// the request are changed.
func (h *GroupHandler) UpdateGroup(c *gin.Context) {
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}

	var update services.DetailsUpdate
	if isMultipart(c) {
		if name, ok := c.GetPostForm("name"); ok {
			update.Name = &name
		}
		if desc, ok := c.GetPostForm("description"); ok {
			update.Description = &desc
		}
		avatar, err := formUpload(c, "groupProfile")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		update.Avatar = avatar
	} else {
		var req struct {
			Name        *string `json:"name"`
			Description *string `json:"description"`
			Image       string  `json:"image"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
			return
		}
		avatar, err := dataURLUpload(req.Image)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		update = services.DetailsUpdate{Name: req.Name, Description: req.Description, Avatar: avatar}
	}

	group, err := h.groups.UpdateDetails(c.Request.Context(), userIDFromContext(c), groupID, update)
	emitAudit(c, h.audit, auditLevel(err), "group.update", auditText(err, "group updated"), groupID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// LeaveGroup handles DELETE /api/groups/:group_id/leave.
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}
	group, err := h.groups.Leave(c.Request.Context(), userIDFromContext(c), groupID)
	emitAudit(c, h.audit, auditLevel(err), "group.leave", auditText(err, "left group"), groupID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group, "deleted": group == nil})
}

// DeleteGroup handles DELETE /api/groups/:group_id.
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}
	err := h.groups.DeleteGroup(c.Request.Context(), userIDFromContext(c), groupID)
	emitAudit(c, h.audit, auditLevel(err), "group.delete", auditText(err, "group deleted"), groupID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// GetGroupMessages returns messages in the group.
func (h *GroupHandler) GetGroupMessages(c *gin.Context) {
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}
	msgs, err := h.groups.ListGroupMessages(c.Request.Context(), userIDFromContext(c), groupID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostGroupMessage persists and broadcasts a group message.
func (h *GroupHandler) PostGroupMessage(c *gin.Context) {
	groupID, ok := pathID(c, "group_id")
	if !ok {
		return
	}
	text, image, ok := bindMessage(c)
	if !ok {
		return
	}

	msg, err := h.groups.SendGroupMessage(c.Request.Context(), userIDFromContext(c), groupID, text, image)
	if err != nil {
		emitAudit(c, h.audit, "ERROR", "group.send_message", err.Error(), groupID)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}
