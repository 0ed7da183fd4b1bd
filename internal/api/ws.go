package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/pulsechat/internal/chat"
	"github.com/lalith-99/pulsechat/internal/middleware"
	"github.com/lalith-99/pulsechat/internal/realtime"
	"go.uber.org/zap"
)

// WSHandler upgrades authenticated requests to live sessions.
type WSHandler struct {
	svc      *chat.Service
	upgrader websocket.Upgrader
	buffer   int
	logger   *zap.Logger
}

func NewWSHandler(svc *chat.Service, buffer int, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		buffer: buffer,
		logger: logger,
	}
}

// Serve handles GET /v1/ws?token=...
//
// The session id goes back in the upgrade response so the client can send
// it as X-Session-ID on REST calls. The request goroutine runs the read
// pump; a second goroutine owns every write to the connection.
func (h *WSHandler) Serve(c *gin.Context) {
	userID := middleware.GetUserID(c)
	sess := realtime.NewSession(userID, nil, h.buffer)

	header := http.Header{}
	header.Set(SessionHeader, sess.ID)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, header)
	if err != nil {
		// Upgrade has already answered the client.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	sess.Attach(conn)

	ctx := context.WithoutCancel(c.Request.Context())
	if err := h.svc.Connect(ctx, sess); err != nil {
		h.logger.Error("failed to connect session", zap.Stringer("user_id", userID), zap.Error(err))
		_ = conn.Close()
		return
	}

	go sess.WritePump()
	sess.ReadPump(ctx, h.svc, h.logger)
	h.svc.Disconnect(ctx, sess)
}
