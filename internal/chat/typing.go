package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/lalith-99/pulsechat/internal/realtime"
)

type TypingSignal struct {
	From uuid.UUID `json:"from"`
}

type GroupTypingSignal struct {
	GroupID uuid.UUID `json:"group_id"`
	From    uuid.UUID `json:"from"`
}

// Typing forwards a direct typing signal to the peer. Nothing is stored.
func (s *Service) Typing(ctx context.Context, sess *realtime.Session, to uuid.UUID, stop bool) {
	event := realtime.EventTyping
	if stop {
		event = realtime.EventStopTyping
	}
	s.hub.EmitToUser(ctx, to, event, TypingSignal{From: sess.UserID})
}

// GroupTyping forwards a group typing signal to the other members. A session
// not subscribed to the group is ignored.
func (s *Service) GroupTyping(ctx context.Context, sess *realtime.Session, groupID uuid.UUID, stop bool) {
	scope := realtime.GroupScope(groupID)
	if !s.hub.Registry.IsSubscribed(sess, scope) {
		return
	}
	event := realtime.EventGroupTyping
	if stop {
		event = realtime.EventGroupStopTyping
	}
	s.hub.Emit(ctx, scope, event, GroupTypingSignal{GroupID: groupID, From: sess.UserID},
		realtime.Exclude{UserID: sess.UserID})
}
