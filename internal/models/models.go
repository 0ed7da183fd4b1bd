package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// User is a person who can chat. The ID never changes; the profile fields
// are edited through the profile endpoint.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Bio          string    `json:"bio"`
	ProfilePic   string    `json:"profile_pic"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProfileUpdate carries the mutable user fields. A nil field is left as is.
type ProfileUpdate struct {
	FullName   *string
	Bio        *string
	ProfilePic *string
}

// Group is a named conversation with a changing member list.
type Group struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Bio        string    `json:"bio"`
	ProfilePic string    `json:"profile_pic"`
	CreatedBy  uuid.UUID `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// GroupUpdate carries the mutable group fields. A nil field is left as is.
type GroupUpdate struct {
	Name       *string
	Bio        *string
	ProfilePic *string
}

// GroupMember mirrors the group_members table.
//
// JoinedAt is the visibility floor for the member: a group message is part
// of their history only if it was created strictly after JoinedAt.
type GroupMember struct {
	GroupID  uuid.UUID `json:"group_id"`
	UserID   uuid.UUID `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Visible reports whether a message created at t falls inside the member's
// join-time window.
func (m GroupMember) Visible(t time.Time) bool {
	return t.After(m.JoinedAt)
}

type MessageKind string

const (
	KindDirect MessageKind = "direct"
	KindGroup  MessageKind = "group"
	KindSystem MessageKind = "system"
)

// Message is a single persisted chat message.
//
// Kind decides which of the optional fields are meaningful:
//
//	direct: RecipientID set, Seen tracked
//	group:  GroupID set, SeenBy tracked, MembersAtSend frozen at send time
//	system: GroupID set, membership notices (joins, exits), no receipts
type Message struct {
	ID          uuid.UUID   `json:"id"`
	Kind        MessageKind `json:"kind"`
	SenderID    uuid.UUID   `json:"sender_id"`
	RecipientID *uuid.UUID  `json:"recipient_id,omitempty"`
	GroupID     *uuid.UUID  `json:"group_id,omitempty"`
	Text        string      `json:"text,omitempty"`
	Image       string      `json:"image,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`

	Seen          bool        `json:"seen"`
	SeenBy        []uuid.UUID `json:"seen_by,omitempty"`
	MembersAtSend []uuid.UUID `json:"members_at_send,omitempty"`
}

// Validate checks that the fields set match the message kind.
func (m *Message) Validate() error {
	switch m.Kind {
	case KindDirect:
		if m.RecipientID == nil || m.GroupID != nil {
			return fmt.Errorf("direct message needs exactly a recipient")
		}
	case KindGroup:
		if m.GroupID == nil || m.RecipientID != nil {
			return fmt.Errorf("group message needs exactly a group")
		}
		if len(m.MembersAtSend) == 0 {
			return fmt.Errorf("group message needs a member snapshot")
		}
	case KindSystem:
		if m.GroupID == nil || m.RecipientID != nil {
			return fmt.Errorf("system message must target a group")
		}
	default:
		return fmt.Errorf("unknown message kind %q", m.Kind)
	}
	if m.Text == "" && m.Image == "" {
		return fmt.Errorf("message has no content")
	}
	return nil
}

// SeenByUser reports whether userID is in SeenBy.
func (m *Message) SeenByUser(userID uuid.UUID) bool {
	for _, id := range m.SeenBy {
		if id == userID {
			return true
		}
	}
	return false
}

// SeenByAll reports whether every recipient frozen at send time has seen a
// group message. The denominator is MembersAtSend minus the sender, so a
// member leaving later neither shrinks nor grows it.
func (m *Message) SeenByAll() bool {
	if m.Kind != KindGroup {
		return m.Seen
	}
	for _, id := range m.MembersAtSend {
		if id == m.SenderID {
			continue
		}
		if !m.SeenByUser(id) {
			return false
		}
	}
	return true
}

type ScopeKind string

const (
	ScopeDirect ScopeKind = "direct"
	ScopeGroup  ScopeKind = "group"
)

// Scope names one conversation from a user's point of view: the peer for a
// direct chat, the group for a group chat.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

func DirectScope(peerID uuid.UUID) Scope { return Scope{Kind: ScopeDirect, ID: peerID} }
func GroupScope(groupID uuid.UUID) Scope { return Scope{Kind: ScopeGroup, ID: groupID} }

// Watermark is the latest time a user acknowledged reading a scope.
// It only moves forward.
type Watermark struct {
	UserID     uuid.UUID `json:"user_id"`
	Scope      Scope     `json:"scope"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
