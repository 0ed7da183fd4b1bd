package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/pulsechat/internal/chat"
	"github.com/lalith-99/pulsechat/internal/middleware"
	"go.uber.org/zap"
)

// MembershipHandler handles joining and leaving groups.
type MembershipHandler struct {
	svc    *chat.Service
	logger *zap.Logger
}

func NewMembershipHandler(svc *chat.Service, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{svc: svc, logger: logger}
}

// addMemberRequest is the JSON body for POST /v1/groups/:id/members
type addMemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// Add handles POST /v1/groups/:id/members
//
// The caller must already be a member. The new member only sees messages
// sent after this call returns.
func (h *MembershipHandler) Add(c *gin.Context) {
	groupID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	member, err := h.svc.AddMember(c.Request.Context(), middleware.GetUserID(c), groupID, req.UserID)
	if err != nil {
		fail(c, h.logger, err, "failed to add member")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "member": member})
}

// Exit handles POST /v1/groups/:id/exit
func (h *MembershipHandler) Exit(c *gin.Context) {
	groupID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.RemoveMember(c.Request.Context(), groupID, middleware.GetUserID(c)); err != nil {
		fail(c, h.logger, err, "failed to exit group")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
