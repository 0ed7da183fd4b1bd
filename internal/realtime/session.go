package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxInboundSize = 64 << 10
)

// Dispatcher handles one inbound websocket frame. It runs on the session's
// read goroutine, so frames from one session are handled in order.
type Dispatcher interface {
	Dispatch(ctx context.Context, s *Session, event string, data json.RawMessage)
}

// Session is one live client connection. A user may hold several.
//
// send is written only by Registry.Deliver under the registry read lock and
// closed only by Registry.Unregister under the write lock, so a delivery can
// never hit a closed channel.
type Session struct {
	ID     string
	UserID uuid.UUID

	conn   *websocket.Conn
	send   chan []byte
	closed bool
}

// NewSession wraps an upgraded connection. conn may be nil in tests, in
// which case frames are read from Outbox.
func NewSession(userID uuid.UUID, conn *websocket.Conn, buffer int) *Session {
	return &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, buffer),
	}
}

// Attach binds the upgraded connection. The id is minted before the upgrade
// so it can travel in the handshake response.
func (s *Session) Attach(conn *websocket.Conn) {
	s.conn = conn
}

// Outbox exposes the queued frames.
func (s *Session) Outbox() <-chan []byte {
	return s.send
}

// ReadPump reads frames until the connection fails, handing each to d.
// The caller unregisters the session when it returns.
func (s *Session) ReadPump(ctx context.Context, d Dispatcher, logger *zap.Logger) {
	s.conn.SetReadLimit(maxInboundSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read failed", zap.String("session_id", s.ID), zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			logger.Debug("dropping malformed frame", zap.String("session_id", s.ID))
			continue
		}
		d.Dispatch(ctx, s, frame.Event, frame.Data)
	}
}

// WritePump drains the outbox to the connection and keeps it alive with
// pings. It exits when the outbox is closed or a write fails.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
