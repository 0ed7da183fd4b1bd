package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/pulsechat/internal/models"
	"github.com/lalith-99/pulsechat/internal/realtime"
	"github.com/lalith-99/pulsechat/internal/repository"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type CreateGroupInput struct {
	Name    string      `validate:"required,max=100"`
	Members []uuid.UUID `validate:"min=1"`
}

type UpdateGroupInput struct {
	Name  *string `validate:"omitempty,min=1,max=100"`
	Bio   *string `validate:"omitempty,max=500"`
	Image string
}

// MemberEvent is the payload of member-added and member-exited.
type MemberEvent struct {
	GroupID uuid.UUID `json:"group_id"`
	UserID  uuid.UUID `json:"user_id"`
}

// CreateGroup creates the group with the creator and the listed members,
// all joining at the same instant, and subscribes their live sessions.
func (s *Service) CreateGroup(ctx context.Context, creatorID uuid.UUID, in CreateGroupInput) (*models.Group, error) {
	if in.Name == "" || len(in.Members) == 0 {
		return nil, validationError(ErrInvalidGroup)
	}
	if err := s.checkInput(in); err != nil {
		return nil, err
	}

	memberIDs := lo.Uniq(append([]uuid.UUID{creatorID}, in.Members...))
	for _, id := range memberIDs {
		if _, err := s.requireUser(ctx, id); err != nil {
			return nil, err
		}
	}

	g, members, err := s.store.Groups.Create(ctx, in.Name, creatorID, memberIDs)
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	s.logger.Info("group created",
		zap.Stringer("group_id", g.ID),
		zap.Int("members", len(members)),
	)

	scope := realtime.GroupScope(g.ID)
	for _, m := range members {
		s.hub.Registry.SubscribeUser(m.UserID, scope)
		s.hub.EmitToUser(ctx, m.UserID, realtime.EventGroupCreated, g)
	}
	return g, nil
}

// AddMember adds userID to the group on behalf of actorID, who must be a
// member. The join notice shares the join instant, so the new member never
// sees it while everyone already in the group does.
func (s *Service) AddMember(ctx context.Context, actorID, groupID, userID uuid.UUID) (*models.GroupMember, error) {
	g, err := s.requireGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, groupID, actorID); err != nil {
		return nil, err
	}
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	unlock := s.groups.Lock(groupID)
	member, notice, err := s.store.Memberships.Join(ctx, groupID, userID, user.FullName+" joined the group")
	unlock()
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyMember) {
			return nil, conflictError(ErrAlreadyMember)
		}
		return nil, fmt.Errorf("add member: %w", err)
	}

	scope := realtime.GroupScope(groupID)
	s.hub.Emit(ctx, scope, realtime.EventNewGroupMessage, notice, realtime.Exclude{UserID: userID})
	s.hub.Registry.SubscribeUser(userID, scope)
	s.hub.EmitToUser(ctx, userID, realtime.EventAddedToGroup, g)
	s.hub.Emit(ctx, scope, realtime.EventMemberAdded, MemberEvent{GroupID: groupID, UserID: userID}, realtime.Exclude{})
	return member, nil
}

// RemoveMember takes userID out of the group and releases their group
// subscriptions. Their history stays untouched.
func (s *Service) RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error {
	if _, err := s.requireGroup(ctx, groupID); err != nil {
		return err
	}
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return err
	}

	unlock := s.groups.Lock(groupID)
	notice, err := s.store.Memberships.Leave(ctx, groupID, userID, user.FullName+" left the group")
	unlock()
	if err != nil {
		if errors.Is(err, repository.ErrNotMember) {
			return notFoundError(ErrNotAMember)
		}
		return fmt.Errorf("remove member: %w", err)
	}

	scope := realtime.GroupScope(groupID)
	s.hub.Emit(ctx, scope, realtime.EventMemberExited, MemberEvent{GroupID: groupID, UserID: userID}, realtime.Exclude{})
	s.hub.Emit(ctx, scope, realtime.EventNewGroupMessage, notice, realtime.Exclude{UserID: userID})
	s.hub.Registry.UnsubscribeUser(userID, scope)
	return nil
}

// UpdateGroup edits the group profile. Only members may edit it.
func (s *Service) UpdateGroup(ctx context.Context, actorID, groupID uuid.UUID, in UpdateGroupInput) (*models.Group, error) {
	if err := s.checkInput(in); err != nil {
		return nil, err
	}
	if _, err := s.requireGroup(ctx, groupID); err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, groupID, actorID); err != nil {
		return nil, err
	}

	upd := models.GroupUpdate{Name: in.Name, Bio: in.Bio}
	if in.Image != "" {
		url, err := s.upload(ctx, in.Image)
		if err != nil {
			return nil, err
		}
		upd.ProfilePic = &url
	}

	g, err := s.store.Groups.Update(ctx, groupID, upd)
	if err != nil {
		return nil, fmt.Errorf("update group: %w", err)
	}
	if g == nil {
		return nil, notFoundError(ErrGroupNotFound)
	}

	s.hub.Emit(ctx, realtime.GroupScope(groupID), realtime.EventGroupProfileUpdate, g, realtime.Exclude{})
	return g, nil
}
