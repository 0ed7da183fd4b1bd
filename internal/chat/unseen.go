package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/pulsechat/internal/models"
)

// UsersOverview backs the sidebar: every other user, how many of their
// messages are unseen, and who is online right now.
type UsersOverview struct {
	Users  []models.User     `json:"users"`
	Unseen map[uuid.UUID]int `json:"unseen_messages"`
	Online []uuid.UUID       `json:"online_users"`
}

// GroupsOverview lists the caller's groups with per-group unseen counts.
type GroupsOverview struct {
	Groups []models.Group    `json:"groups"`
	Unseen map[uuid.UUID]int `json:"unseen_messages"`
}

// UnseenDirect counts unseen direct messages per sending peer. Counts are
// always recomputed from stored state.
func (s *Service) UnseenDirect(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error) {
	counts, err := s.store.Messages.CountUnseenDirect(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("unseen direct: %w", err)
	}
	return counts, nil
}

// UnseenGroups counts, per group, messages after max(watermark, joined_at)
// not sent by the user.
func (s *Service) UnseenGroups(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error) {
	counts, err := s.store.Messages.CountUnseenGroups(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("unseen groups: %w", err)
	}
	return counts, nil
}

func (s *Service) ListUsers(ctx context.Context, userID uuid.UUID) (*UsersOverview, error) {
	users, err := s.store.Users.ListExcept(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	unseen, err := s.UnseenDirect(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UsersOverview{Users: users, Unseen: unseen, Online: s.presence.Online(ctx)}, nil
}

func (s *Service) MyGroups(ctx context.Context, userID uuid.UUID) (*GroupsOverview, error) {
	groups, err := s.store.Groups.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("my groups: %w", err)
	}
	unseen, err := s.UnseenGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &GroupsOverview{Groups: groups, Unseen: unseen}, nil
}
