package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/pulsechat/internal/chat"
	"github.com/lalith-99/pulsechat/internal/middleware"
	"go.uber.org/zap"
)

// SessionHeader names the websocket session a REST call comes from. The
// sender's other sessions get the echo of a direct message; this one
// already rendered it.
const SessionHeader = "X-Session-ID"

type MessageHandler struct {
	svc    *chat.Service
	logger *zap.Logger
}

func NewMessageHandler(svc *chat.Service, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, logger: logger}
}

type sendRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// History handles GET /v1/messages/:peerID
//
// Opening a conversation marks the peer's messages as seen before they are
// listed, so the returned page already reflects the read.
func (h *MessageHandler) History(c *gin.Context) {
	peerID, ok := paramID(c, "peerID")
	if !ok {
		return
	}

	messages, err := h.svc.OpenDirect(c.Request.Context(), middleware.GetUserID(c), peerID)
	if err != nil {
		fail(c, h.logger, err, "failed to load messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": messages})
}

// Send handles POST /v1/messages/:peerID
func (h *MessageHandler) Send(c *gin.Context) {
	peerID, ok := paramID(c, "peerID")
	if !ok {
		return
	}
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	msg, err := h.svc.SendDirect(
		c.Request.Context(),
		middleware.GetUserID(c),
		peerID,
		chat.SendInput{Text: req.Text, Image: req.Image},
		c.GetHeader(SessionHeader),
	)
	if err != nil {
		fail(c, h.logger, err, "failed to send message")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": msg})
}
