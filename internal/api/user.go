package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/pulsechat/internal/chat"
	"github.com/lalith-99/pulsechat/internal/middleware"
	"go.uber.org/zap"
)

// UserHandler serves the sidebar and profile edits.
type UserHandler struct {
	svc    *chat.Service
	logger *zap.Logger
}

func NewUserHandler(svc *chat.Service, logger *zap.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger}
}

type updateProfileRequest struct {
	FullName *string `json:"full_name"`
	Bio      *string `json:"bio"`
	Image    string  `json:"image"`
}

// List handles GET /v1/users
//
// Every other user, with unseen direct counts per sender and the online set.
func (h *UserHandler) List(c *gin.Context) {
	overview, err := h.svc.ListUsers(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err, "failed to list users")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"users":           overview.Users,
		"unseen_messages": overview.Unseen,
		"online_users":    overview.Online,
	})
}

// UpdateMe handles PUT /v1/users/me
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	user, err := h.svc.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), chat.ProfileInput{
		FullName: req.FullName,
		Bio:      req.Bio,
		Image:    req.Image,
	})
	if err != nil {
		fail(c, h.logger, err, "failed to update profile")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}
