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

// MessageSeenUpdate tells a direct-message sender which of their messages
// the reader just saw.
type MessageSeenUpdate struct {
	By         uuid.UUID   `json:"by"`
	MessageIDs []uuid.UUID `json:"message_ids"`
}

// GroupSeenUpdate tells a group-message sender which of their messages the
// reader just saw, with the receipts as they stand after the update.
type GroupSeenUpdate struct {
	GroupID uuid.UUID        `json:"group_id"`
	SeenBy  uuid.UUID        `json:"seen_by"`
	Updates []GroupSeenEntry `json:"updates"`
}

type GroupSeenEntry struct {
	MessageID uuid.UUID   `json:"message_id"`
	SeenBy    []uuid.UUID `json:"seen_by"`
	SeenByAll bool        `json:"seen_by_all"`
}

// OpenDirect is the read path for a direct conversation: mark the peer's
// messages seen, return both directions of history, advance the watermark
// and tell the peer. History is fetched after the mark so it already
// carries seen=true.
func (s *Service) OpenDirect(ctx context.Context, viewerID, peerID uuid.UUID) ([]models.Message, error) {
	if _, err := s.requireUser(ctx, peerID); err != nil {
		return nil, err
	}
	if err := s.markDirect(ctx, viewerID, peerID); err != nil {
		return nil, err
	}

	history, err := s.store.Messages.ListDirect(ctx, viewerID, peerID)
	if err != nil {
		return nil, fmt.Errorf("open direct: %w", err)
	}
	return history, nil
}

// MarkDirectSeen runs the read path without returning history.
func (s *Service) MarkDirectSeen(ctx context.Context, viewerID, peerID uuid.UUID) error {
	if _, err := s.requireUser(ctx, peerID); err != nil {
		return err
	}
	return s.markDirect(ctx, viewerID, peerID)
}

func (s *Service) markDirect(ctx context.Context, viewerID, peerID uuid.UUID) error {
	// The watermark goes first and bounds the mark. A message that lands
	// in between stays above the watermark and unseen.
	w, err := s.store.Watermarks.Advance(ctx, viewerID, models.DirectScope(peerID))
	if err != nil {
		return fmt.Errorf("mark direct seen: %w", err)
	}
	changed, err := s.store.Messages.MarkDirectSeen(ctx, viewerID, peerID, w.LastSeenAt)
	if err != nil {
		return fmt.Errorf("mark direct seen: %w", err)
	}
	if len(changed) == 0 {
		return nil
	}
	observ.SeenUpdatesTotal.Add(float64(len(changed)))

	bySender := lo.GroupBy(changed, func(m models.Message) uuid.UUID { return m.SenderID })
	for sender, msgs := range bySender {
		s.hub.EmitToUser(ctx, sender, realtime.EventMessageSeenUpdate, MessageSeenUpdate{
			By:         viewerID,
			MessageIDs: lo.Map(msgs, func(m models.Message, _ int) uuid.UUID { return m.ID }),
		})
	}
	return nil
}

// OpenGroup is the read path for a group. Only messages created strictly
// after the viewer joined are returned or marked.
func (s *Service) OpenGroup(ctx context.Context, viewerID, groupID uuid.UUID) ([]models.Message, error) {
	member, err := s.groupViewer(ctx, viewerID, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.markGroup(ctx, member); err != nil {
		return nil, err
	}

	history, err := s.store.Messages.ListGroup(ctx, groupID, member.JoinedAt)
	if err != nil {
		return nil, fmt.Errorf("open group: %w", err)
	}
	return history, nil
}

// MarkGroupSeen runs the group read path without returning history.
func (s *Service) MarkGroupSeen(ctx context.Context, viewerID, groupID uuid.UUID) error {
	member, err := s.groupViewer(ctx, viewerID, groupID)
	if err != nil {
		return err
	}
	return s.markGroup(ctx, member)
}

func (s *Service) groupViewer(ctx context.Context, viewerID, groupID uuid.UUID) (*models.GroupMember, error) {
	if _, err := s.requireGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.requireMember(ctx, groupID, viewerID)
}

func (s *Service) markGroup(ctx context.Context, member *models.GroupMember) error {
	w, err := s.store.Watermarks.Advance(ctx, member.UserID, models.GroupScope(member.GroupID))
	if err != nil {
		return fmt.Errorf("mark group seen: %w", err)
	}
	changed, err := s.store.Messages.MarkGroupSeen(ctx, member.GroupID, member.UserID, member.JoinedAt, w.LastSeenAt)
	if err != nil {
		return fmt.Errorf("mark group seen: %w", err)
	}
	if len(changed) == 0 {
		return nil
	}
	observ.SeenUpdatesTotal.Add(float64(len(changed)))

	bySender := lo.GroupBy(changed, func(m models.Message) uuid.UUID { return m.SenderID })
	for sender, msgs := range bySender {
		entries := lo.Map(msgs, func(m models.Message, _ int) GroupSeenEntry {
			return GroupSeenEntry{MessageID: m.ID, SeenBy: m.SeenBy, SeenByAll: m.SeenByAll()}
		})
		s.hub.EmitToUser(ctx, sender, realtime.EventGroupSeenUpdate, GroupSeenUpdate{
			GroupID: member.GroupID,
			SeenBy:  member.UserID,
			Updates: entries,
		})
	}
	return nil
}
