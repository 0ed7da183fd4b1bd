package realtime

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Outbound event names. They are part of the client contract.
const (
	EventNewMessage         = "newMessage"
	EventNewGroupMessage    = "newGroupMessage"
	EventTyping             = "typing"
	EventStopTyping         = "stopTyping"
	EventGroupTyping        = "group-typing"
	EventGroupStopTyping    = "group-stopTyping"
	EventOnlineUsers        = "getOnlineUsers"
	EventMessageSeenUpdate  = "message-seen-update"
	EventGroupSeenUpdate    = "group-seen-update"
	EventMemberAdded        = "member-added"
	EventMemberExited       = "member-exited"
	EventGroupCreated       = "group-created"
	EventAddedToGroup       = "addedToGroup"
	EventProfileUpdate      = "profile-update"
	EventGroupProfileUpdate = "group-profile-update"
)

// Inbound websocket event names.
const (
	InboundTyping          = "typing"
	InboundStopTyping      = "stopTyping"
	InboundGroupTyping     = "group-typing"
	InboundGroupStopTyping = "group-stopTyping"
	InboundMarkSeen        = "mark-seen"
	InboundMarkGroupSeen   = "mark-group-seen"
)

// Frame is the wire shape in both directions: {"event": name, "data": payload}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame marshals one outbound event. It is encoded once per emit and
// the same bytes go to every session.
func EncodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// Scope is a named fan-out target: a user's sessions, a group's subscribed
// sessions, or everyone on the instance.
type Scope string

const AllScope Scope = "all"

func UserScope(userID uuid.UUID) Scope  { return Scope("user:" + userID.String()) }
func GroupScope(groupID uuid.UUID) Scope { return Scope("group:" + groupID.String()) }

// Exclude filters recipients of one delivery. Zero values exclude nothing.
type Exclude struct {
	UserID    uuid.UUID `json:"user_id"`
	SessionID string    `json:"session_id,omitempty"`
}

func (e Exclude) skips(s *Session) bool {
	if e.SessionID != "" && s.ID == e.SessionID {
		return true
	}
	return e.UserID != uuid.Nil && s.UserID == e.UserID
}

// Envelope is what travels through a Broker: an encoded frame plus the
// routing needed to deliver it on every instance.
type Envelope struct {
	Scope   Scope           `json:"scope"`
	Event   string          `json:"event"`
	Exclude Exclude         `json:"exclude"`
	Frame   json.RawMessage `json:"frame"`
}
