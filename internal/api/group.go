package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/pulsechat/internal/chat"
	"github.com/lalith-99/pulsechat/internal/middleware"
	"go.uber.org/zap"
)

// GroupHandler serves group CRUD, history and sending. Membership changes
// live in membership.go.
type GroupHandler struct {
	svc    *chat.Service
	logger *zap.Logger
}

func NewGroupHandler(svc *chat.Service, logger *zap.Logger) *GroupHandler {
	return &GroupHandler{svc: svc, logger: logger}
}

// createGroupRequest is the JSON body for POST /v1/groups. The caller is
// always added, so members lists everyone else.
type createGroupRequest struct {
	Name    string      `json:"name"`
	Members []uuid.UUID `json:"members"`
}

type updateGroupRequest struct {
	Name  *string `json:"name"`
	Bio   *string `json:"bio"`
	Image string  `json:"image"`
}

// List handles GET /v1/groups
func (h *GroupHandler) List(c *gin.Context) {
	overview, err := h.svc.MyGroups(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err, "failed to list groups")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"groups":          overview.Groups,
		"unseen_messages": overview.Unseen,
	})
}

// Unread handles GET /v1/groups/unread
func (h *GroupHandler) Unread(c *gin.Context) {
	counts, err := h.svc.UnseenGroups(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err, "failed to count unread")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "unseen_messages": counts})
}

// Create handles POST /v1/groups
func (h *GroupHandler) Create(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	group, err := h.svc.CreateGroup(c.Request.Context(), middleware.GetUserID(c), chat.CreateGroupInput{
		Name:    req.Name,
		Members: req.Members,
	})
	if err != nil {
		fail(c, h.logger, err, "failed to create group")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "group": group})
}

// Update handles PUT /v1/groups/:id
func (h *GroupHandler) Update(c *gin.Context) {
	groupID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req updateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	group, err := h.svc.UpdateGroup(c.Request.Context(), middleware.GetUserID(c), groupID, chat.UpdateGroupInput{
		Name:  req.Name,
		Bio:   req.Bio,
		Image: req.Image,
	})
	if err != nil {
		fail(c, h.logger, err, "failed to update group")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "group": group})
}

// Messages handles GET /v1/groups/:id/messages
//
// Only messages after the caller's join time are returned, and they are
// marked seen first.
func (h *GroupHandler) Messages(c *gin.Context) {
	groupID, ok := paramID(c, "id")
	if !ok {
		return
	}

	messages, err := h.svc.OpenGroup(c.Request.Context(), middleware.GetUserID(c), groupID)
	if err != nil {
		fail(c, h.logger, err, "failed to load group messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": messages})
}

// Send handles POST /v1/groups/:id/messages
func (h *GroupHandler) Send(c *gin.Context) {
	groupID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	msg, err := h.svc.SendGroup(c.Request.Context(), middleware.GetUserID(c), groupID, chat.SendInput{
		Text:  req.Text,
		Image: req.Image,
	})
	if err != nil {
		fail(c, h.logger, err, "failed to send group message")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": msg})
}

// Seen handles PUT /v1/groups/:id/seen
func (h *GroupHandler) Seen(c *gin.Context) {
	groupID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.MarkGroupSeen(c.Request.Context(), middleware.GetUserID(c), groupID); err != nil {
		fail(c, h.logger, err, "failed to mark group seen")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
