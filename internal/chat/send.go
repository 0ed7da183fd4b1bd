package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/pulsechat/internal/models"
	"github.com/lalith-99/pulsechat/internal/observ"
	"github.com/lalith-99/pulsechat/internal/realtime"
	"github.com/samber/lo"
)

// SendInput is the message body. Image is a data URL or bare base64 and is
// uploaded before anything is persisted.
type SendInput struct {
	Text  string `validate:"max=4000"`
	Image string
}

func (in SendInput) empty() bool {
	return in.Text == "" && in.Image == ""
}

// SendDirect persists a direct message and pushes it to the peer and to the
// sender's other sessions. originSession, when set, is the session that
// sent it; it already has the message and is skipped.
func (s *Service) SendDirect(ctx context.Context, senderID, peerID uuid.UUID, in SendInput, originSession string) (*models.Message, error) {
	if in.empty() {
		return nil, validationError(ErrEmptyMessage)
	}
	if err := s.checkInput(in); err != nil {
		return nil, err
	}
	if _, err := s.requireUser(ctx, peerID); err != nil {
		return nil, err
	}

	image, err := s.upload(ctx, in.Image)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.Messages.Create(ctx, &models.Message{
		Kind:        models.KindDirect,
		SenderID:    senderID,
		RecipientID: &peerID,
		Text:        in.Text,
		Image:       image,
	})
	if err != nil {
		return nil, fmt.Errorf("send direct: %w", err)
	}
	observ.MessagesTotal.WithLabelValues(string(models.KindDirect)).Inc()

	// A note to self goes out once, to the sender's other sessions.
	if peerID == senderID {
		s.hub.Emit(ctx, realtime.UserScope(senderID), realtime.EventNewMessage, msg,
			realtime.Exclude{SessionID: originSession})
		return msg, nil
	}
	s.hub.Emit(ctx, realtime.UserScope(peerID), realtime.EventNewMessage, msg, realtime.Exclude{})
	s.hub.Emit(ctx, realtime.UserScope(senderID), realtime.EventNewMessage, msg,
		realtime.Exclude{SessionID: originSession})
	return msg, nil
}

// SendGroup persists a group message with the current member list frozen
// into it and pushes it to every other member's sessions.
func (s *Service) SendGroup(ctx context.Context, senderID, groupID uuid.UUID, in SendInput) (*models.Message, error) {
	if in.empty() {
		return nil, validationError(ErrEmptyMessage)
	}
	if err := s.checkInput(in); err != nil {
		return nil, err
	}
	if _, err := s.requireGroup(ctx, groupID); err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, groupID, senderID); err != nil {
		return nil, err
	}

	image, err := s.upload(ctx, in.Image)
	if err != nil {
		return nil, err
	}

	// The snapshot and the insert happen under the group lock so no join
	// or exit lands between them on this instance.
	unlock := s.groups.Lock(groupID)
	members, err := s.store.Memberships.ListMembers(ctx, groupID)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("send group: %w", err)
	}
	snapshot := lo.Map(members, func(m models.GroupMember, _ int) uuid.UUID { return m.UserID })
	if !lo.Contains(snapshot, senderID) {
		unlock()
		return nil, forbiddenError(ErrNotAMember)
	}

	msg, err := s.store.Messages.Create(ctx, &models.Message{
		Kind:          models.KindGroup,
		SenderID:      senderID,
		GroupID:       &groupID,
		Text:          in.Text,
		Image:         image,
		MembersAtSend: snapshot,
	})
	unlock()
	if err != nil {
		return nil, fmt.Errorf("send group: %w", err)
	}
	observ.MessagesTotal.WithLabelValues(string(models.KindGroup)).Inc()

	s.hub.Emit(ctx, realtime.GroupScope(groupID), realtime.EventNewGroupMessage, msg,
		realtime.Exclude{UserID: senderID})
	return msg, nil
}
