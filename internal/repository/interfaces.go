package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/pulsechat/internal/models"
)

// Every method takes ctx first: a cancelled request cancels its queries.
//
// Lookups of a single row return nil, nil when the row does not exist. The
// sentinel errors below are reserved for write conflicts that the caller
// has to tell apart from infrastructure failures.

var (
	// ErrAlreadyMember is returned by Join when the (group, user) row exists.
	ErrAlreadyMember = errors.New("already a member")
	// ErrNotMember is returned by Leave when there is no (group, user) row.
	ErrNotMember = errors.New("not a member")
	// ErrEmailTaken is returned by UserRepository.Create on a duplicate email.
	ErrEmailTaken = errors.New("email already registered")
)

// UserRepository handles user data.
type UserRepository interface {
	Create(ctx context.Context, email, fullName, bio, passwordHash string) (*models.User, error)

	// GetByID returns a user, or nil, nil if not found.
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// GetByEmail is used for login and signup duplicate checks.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// ListExcept returns every user but the caller, ordered by name.
	ListExcept(ctx context.Context, userID uuid.UUID) ([]models.User, error)

	// UpdateProfile applies the non-nil fields. Returns nil, nil if the user is gone.
	UpdateProfile(ctx context.Context, userID uuid.UUID, upd models.ProfileUpdate) (*models.User, error)
}

// GroupRepository handles group rows.
type GroupRepository interface {
	// Create inserts the group and all initial members in one transaction.
	// Every initial member shares the same joined_at.
	Create(ctx context.Context, name string, createdBy uuid.UUID, memberIDs []uuid.UUID) (*models.Group, []models.GroupMember, error)

	// GetByID returns a group, or nil, nil if not found.
	GetByID(ctx context.Context, groupID uuid.UUID) (*models.Group, error)

	// ListForUser returns the groups the user currently belongs to, newest first.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Group, error)

	// Update applies the non-nil fields. Returns nil, nil if the group is gone.
	Update(ctx context.Context, groupID uuid.UUID, upd models.GroupUpdate) (*models.Group, error)
}

// MembershipRepository is the durable half of the membership ledger.
type MembershipRepository interface {
	// Join adds the member with joined_at = now and persists the system
	// notice with created_at = joined_at, atomically. Returns ErrAlreadyMember
	// without writing anything if the user is already in the group.
	Join(ctx context.Context, groupID, userID uuid.UUID, notice string) (*models.GroupMember, *models.Message, error)

	// Leave removes the member and persists the system notice, atomically.
	// Returns ErrNotMember without writing anything if there is no membership.
	Leave(ctx context.Context, groupID, userID uuid.UUID, notice string) (*models.Message, error)

	// GetMember returns the membership row, or nil, nil if absent.
	GetMember(ctx context.Context, groupID, userID uuid.UUID) (*models.GroupMember, error)

	// ListMembers returns the current members ordered by joined_at.
	ListMembers(ctx context.Context, groupID uuid.UUID) ([]models.GroupMember, error)

	// ListGroupIDs returns the ids of every group the user belongs to.
	// Called on each websocket connect to rebuild room subscriptions.
	ListGroupIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// MessageRepository handles message persistence and receipts.
type MessageRepository interface {
	// Create persists a message and returns it with ID and CreatedAt populated.
	// A zero CreatedAt is assigned by the store.
	Create(ctx context.Context, msg *models.Message) (*models.Message, error)

	// ListDirect returns both directions between a and b, oldest first.
	ListDirect(ctx context.Context, a, b uuid.UUID) ([]models.Message, error)

	// ListGroup returns group and system messages created strictly after
	// `after`, oldest first.
	ListGroup(ctx context.Context, groupID uuid.UUID, after time.Time) ([]models.Message, error)

	// MarkDirectSeen flips seen on every unseen message peer -> viewer
	// created at or before `until` and returns only the rows that changed.
	MarkDirectSeen(ctx context.Context, viewerID, peerID uuid.UUID, until time.Time) ([]models.Message, error)

	// MarkGroupSeen adds the viewer to seen_by on group messages created in
	// (after, until], authored by someone else and not yet containing the
	// viewer. Returns only the rows that changed, with their new seen_by.
	MarkGroupSeen(ctx context.Context, groupID, viewerID uuid.UUID, after, until time.Time) ([]models.Message, error)

	// CountUnseenDirect returns sender -> number of unseen messages to userID.
	// Senders with nothing unseen are absent.
	CountUnseenDirect(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error)

	// CountUnseenGroups returns group -> number of messages newer than
	// max(watermark, joined_at) not sent by userID, for every group the user
	// belongs to (zero counts included).
	CountUnseenGroups(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error)
}

// WatermarkRepository tracks "last seen at" per (user, scope).
type WatermarkRepository interface {
	// Advance upserts the watermark to the store's now and returns it. It
	// never moves backwards. Readers use the returned instant as the upper
	// bound of their seen-mark so the two cannot disagree.
	Advance(ctx context.Context, userID uuid.UUID, scope models.Scope) (*models.Watermark, error)

	// Get returns the watermark, or nil, nil if the user never read the scope.
	Get(ctx context.Context, userID uuid.UUID, scope models.Scope) (*models.Watermark, error)
}

// Store bundles every repository. Both the postgres and the memory backend
// provide one.
type Store struct {
	Users       UserRepository
	Groups      GroupRepository
	Memberships MembershipRepository
	Messages    MessageRepository
	Watermarks  WatermarkRepository
}
