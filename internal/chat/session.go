package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/pulsechat/internal/realtime"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Connect registers a live session, subscribes it to every group the user
// belongs to and publishes presence. The session is registered before the
// memberships are read, so a join that races the connect still reaches it.
// A session that is not the user's first gets the online set pushed to it
// alone; the others already hold it.
func (s *Service) Connect(ctx context.Context, sess *realtime.Session) error {
	s.hub.Registry.Register(sess)

	groupIDs, err := s.store.Memberships.ListGroupIDs(ctx, sess.UserID)
	if err != nil {
		s.hub.Registry.Unregister(sess)
		return fmt.Errorf("connect: %w", err)
	}
	for _, id := range groupIDs {
		s.hub.Registry.Subscribe(sess, realtime.GroupScope(id))
	}

	// A leave that commits between the read and the subscribe releases
	// subscriptions before this session holds them. Reading again after
	// subscribing catches it; any later leave unsubscribes us itself.
	current, err := s.store.Memberships.ListGroupIDs(ctx, sess.UserID)
	if err != nil {
		s.hub.Registry.Unregister(sess)
		return fmt.Errorf("connect: %w", err)
	}
	gone, _ := lo.Difference(groupIDs, current)
	for _, id := range gone {
		s.hub.Registry.Unsubscribe(sess, realtime.GroupScope(id))
	}

	if !s.presence.Connected(ctx, sess.UserID) {
		s.presence.SendTo(ctx, sess)
	}
	s.logger.Debug("session connected",
		zap.String("session_id", sess.ID),
		zap.Stringer("user_id", sess.UserID),
		zap.Int("groups", len(groupIDs)-len(gone)),
	)
	return nil
}

// Disconnect drops the session and every subscription it held. Pushes
// still queued for it are discarded.
func (s *Service) Disconnect(ctx context.Context, sess *realtime.Session) {
	s.hub.Registry.Unregister(sess)
	s.presence.Disconnected(ctx, sess.UserID)
	s.logger.Debug("session disconnected",
		zap.String("session_id", sess.ID),
		zap.Stringer("user_id", sess.UserID),
	)
}

type typingFrame struct {
	To uuid.UUID `json:"to"`
}

type groupFrame struct {
	GroupID uuid.UUID `json:"group_id"`
}

type peerFrame struct {
	PeerID uuid.UUID `json:"peer_id"`
}

// Dispatch handles inbound websocket events. Failures are logged and the
// session stays open; the client reconciles by pulling.
func (s *Service) Dispatch(ctx context.Context, sess *realtime.Session, event string, data json.RawMessage) {
	var err error
	switch event {
	case realtime.InboundTyping, realtime.InboundStopTyping:
		var f typingFrame
		if err = json.Unmarshal(data, &f); err == nil {
			s.Typing(ctx, sess, f.To, event == realtime.InboundStopTyping)
		}
	case realtime.InboundGroupTyping, realtime.InboundGroupStopTyping:
		var f groupFrame
		if err = json.Unmarshal(data, &f); err == nil {
			s.GroupTyping(ctx, sess, f.GroupID, event == realtime.InboundGroupStopTyping)
		}
	case realtime.InboundMarkSeen:
		var f peerFrame
		if err = json.Unmarshal(data, &f); err == nil {
			err = s.MarkDirectSeen(ctx, sess.UserID, f.PeerID)
		}
	case realtime.InboundMarkGroupSeen:
		var f groupFrame
		if err = json.Unmarshal(data, &f); err == nil {
			err = s.MarkGroupSeen(ctx, sess.UserID, f.GroupID)
		}
	default:
		s.logger.Debug("unknown inbound event", zap.String("event", event), zap.String("session_id", sess.ID))
		return
	}

	if err != nil {
		s.logger.Debug("inbound event failed",
			zap.String("event", event),
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	}
}
