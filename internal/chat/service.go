// Package chat is the messaging engine. It keeps three things consistent:
// the persisted history, the live connection registry and the per-user
// read watermarks.
//
// Every operation persists first and pushes second. Pushes are best effort;
// a client that missed one recovers by pulling history and unseen counts.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lalith-99/pulsechat/internal/media"
	"github.com/lalith-99/pulsechat/internal/models"
	"github.com/lalith-99/pulsechat/internal/realtime"
	"github.com/lalith-99/pulsechat/internal/repository"
	"go.uber.org/zap"
)

type Service struct {
	store    *repository.Store
	hub      *realtime.Hub
	presence *realtime.Presence
	uploader media.Uploader
	validate *validator.Validate
	groups   *keyedMutex
	logger   *zap.Logger
}

func NewService(
	store *repository.Store,
	hub *realtime.Hub,
	presence *realtime.Presence,
	uploader media.Uploader,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:    store,
		hub:      hub,
		presence: presence,
		uploader: uploader,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		groups:   newKeyedMutex(),
		logger:   logger,
	}
}

// checkInput runs struct validation and turns failures into a validation
// error naming the first offending field.
func (s *Service) checkInput(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return &Error{
			Kind:    KindValidation,
			Message: strings.ToLower(f.Field()) + " failed " + f.Tag() + " validation",
			Err:     err,
		}
	}
	return validationError(err)
}

// upload stores the image if one was sent. An empty image is not an error.
func (s *Service) upload(ctx context.Context, image string) (string, error) {
	if image == "" {
		return "", nil
	}
	url, err := s.uploader.Upload(ctx, image)
	if err != nil {
		s.logger.Warn("image upload failed", zap.Error(err))
		return "", uploadError(err)
	}
	return url, nil
}

func (s *Service) requireUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	u, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, notFoundError(ErrUserNotFound)
	}
	return u, nil
}

func (s *Service) requireGroup(ctx context.Context, groupID uuid.UUID) (*models.Group, error) {
	g, err := s.store.Groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, notFoundError(ErrGroupNotFound)
	}
	return g, nil
}

// requireMember returns the caller's membership row or a forbidden error.
func (s *Service) requireMember(ctx context.Context, groupID, userID uuid.UUID) (*models.GroupMember, error) {
	m, err := s.store.Memberships.GetMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, forbiddenError(ErrNotAMember)
	}
	return m, nil
}

// keyedMutex serializes membership changes per group inside one process.
// Across instances the (group_id, user_id) primary key is the backstop.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*refMutex)}
}

// Lock blocks until the key is free and returns its unlock func.
func (k *keyedMutex) Lock(key uuid.UUID) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
