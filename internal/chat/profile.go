package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/pulsechat/internal/models"
	"github.com/lalith-99/pulsechat/internal/realtime"
)

type ProfileInput struct {
	FullName *string `validate:"omitempty,min=1,max=100"`
	Bio      *string `validate:"omitempty,max=500"`
	Image    string
}

// UpdateProfile applies the changed fields and tells every session.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, in ProfileInput) (*models.User, error) {
	if err := s.checkInput(in); err != nil {
		return nil, err
	}

	upd := models.ProfileUpdate{FullName: in.FullName, Bio: in.Bio}
	if in.Image != "" {
		url, err := s.upload(ctx, in.Image)
		if err != nil {
			return nil, err
		}
		upd.ProfilePic = &url
	}

	u, err := s.store.Users.UpdateProfile(ctx, userID, upd)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if u == nil {
		return nil, notFoundError(ErrUserNotFound)
	}

	s.hub.Emit(ctx, realtime.AllScope, realtime.EventProfileUpdate, u, realtime.Exclude{})
	return u, nil
}
