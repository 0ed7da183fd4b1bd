package chat

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/pulsechat/internal/realtime"
	"github.com/lalith-99/pulsechat/internal/repository"
	"github.com/stretchr/testify/require"
)

func onlineSet(t *testing.T, frames []realtime.Frame) []uuid.UUID {
	t.Helper()
	presence := only(frames, realtime.EventOnlineUsers)
	require.NotEmpty(t, presence)
	return decode[[]uuid.UUID](t, presence[len(presence)-1])
}

func TestPresence_MultiSession(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	watcherID, a := f.user(t, "watcher"), f.user(t, "ana")
	watcher := f.connect(t, watcherID)
	drain(watcher)

	// Given a opens two sessions, only the first is a transition
	a1 := f.connect(t, a)
	req.ElementsMatch([]uuid.UUID{watcherID, a}, onlineSet(t, drain(watcher)))
	drain(a1)
	a2 := f.connect(t, a)
	req.Empty(only(drain(watcher), realtime.EventOnlineUsers))

	// And the second session still gets the current set, on its own
	req.ElementsMatch([]uuid.UUID{watcherID, a}, onlineSet(t, drain(a2)))
	req.Empty(only(drain(a1), realtime.EventOnlineUsers))

	// When one closes a stays online
	f.svc.Disconnect(ctx, a1)
	req.Empty(only(drain(watcher), realtime.EventOnlineUsers))

	// When the last closes a goes offline
	f.svc.Disconnect(ctx, a2)
	req.Equal([]uuid.UUID{watcherID}, onlineSet(t, drain(watcher)))
}

// leavingMemberships removes the member right after the first group list
// is read, racing a leave against a connect.
type leavingMemberships struct {
	repository.MembershipRepository
	leave func()
}

func (m *leavingMemberships) ListGroupIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := m.MembershipRepository.ListGroupIDs(ctx, userID)
	if m.leave != nil {
		fn := m.leave
		m.leave = nil
		fn()
	}
	return ids, err
}

func TestConnect_LeaveDuringConnectDropsSubscription(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "ana"), f.user(t, "bo")
	g := f.group(t, a, b)

	// Given b leaves after the connect read b's groups
	wrapped := &leavingMemberships{MembershipRepository: f.store.Memberships}
	wrapped.leave = func() {
		req.NoError(f.svc.RemoveMember(ctx, g, b))
	}
	f.store.Memberships = wrapped

	// When the connect finishes
	b1 := f.connect(t, b)

	// Then the session does not listen on the group it left
	req.False(f.hub.Registry.IsSubscribed(b1, realtime.GroupScope(g)))
	drain(b1)
	_, err := f.svc.SendGroup(ctx, a, g, SendInput{Text: "after"})
	req.NoError(err)
	req.Empty(only(drain(b1), realtime.EventNewGroupMessage))
}

func TestConnect_ResubscribesGroups(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "ana"), f.user(t, "bo")
	g := f.group(t, a, b)

	// b was offline when the group was created
	b1 := f.connect(t, b)
	req.True(f.hub.Registry.IsSubscribed(b1, realtime.GroupScope(g)))
	drain(b1)

	_, err := f.svc.SendGroup(ctx, a, g, SendInput{Text: "hi"})
	req.NoError(err)
	req.Len(only(drain(b1), realtime.EventNewGroupMessage), 1)

	// After disconnect nothing is delivered and the outbox is closed
	f.svc.Disconnect(ctx, b1)
	req.False(f.hub.Registry.IsSubscribed(b1, realtime.GroupScope(g)))
	_, open := <-b1.Outbox()
	req.False(open)
}

func TestTyping(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	a, b, c := f.user(t, "ana"), f.user(t, "bo"), f.user(t, "cy")
	a1, b1, c1 := f.connect(t, a), f.connect(t, b), f.connect(t, c)
	g := f.group(t, a, b)
	drain(a1)
	drain(b1)
	drain(c1)

	f.svc.Typing(ctx, a1, b, false)
	f.svc.Typing(ctx, a1, b, true)
	frames := drain(b1)
	req.Len(frames, 2)
	req.Equal(realtime.EventTyping, frames[0].Event)
	req.Equal(realtime.EventStopTyping, frames[1].Event)
	req.Equal(TypingSignal{From: a}, decode[TypingSignal](t, frames[0]))

	// Group typing reaches other members only
	f.svc.GroupTyping(ctx, a1, g, false)
	req.Len(only(drain(b1), realtime.EventGroupTyping), 1)
	req.Empty(drain(a1))

	// A session outside the group is ignored
	f.svc.GroupTyping(ctx, c1, g, false)
	req.Empty(drain(a1))
	req.Empty(drain(b1))
}

func TestDispatch(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "ana"), f.user(t, "bo")
	a1, b1 := f.connect(t, a), f.connect(t, b)
	g := f.group(t, a, b)

	_, err := f.svc.SendDirect(ctx, a, b, SendInput{Text: "direct"}, "")
	req.NoError(err)
	_, err = f.svc.SendGroup(ctx, a, g, SendInput{Text: "group"})
	req.NoError(err)
	drain(a1)
	drain(b1)

	raw := func(v any) json.RawMessage {
		data, err := json.Marshal(v)
		req.NoError(err)
		return data
	}

	f.svc.Dispatch(ctx, b1, realtime.InboundMarkSeen, raw(map[string]uuid.UUID{"peer_id": a}))
	f.svc.Dispatch(ctx, b1, realtime.InboundMarkGroupSeen, raw(map[string]uuid.UUID{"group_id": g}))
	f.svc.Dispatch(ctx, b1, realtime.InboundTyping, raw(map[string]uuid.UUID{"to": a}))
	f.svc.Dispatch(ctx, b1, realtime.InboundGroupStopTyping, raw(map[string]uuid.UUID{"group_id": g}))

	// Malformed and unknown frames are dropped without side effects
	f.svc.Dispatch(ctx, b1, realtime.InboundMarkSeen, json.RawMessage(`"nope"`))
	f.svc.Dispatch(ctx, b1, "launch-rockets", nil)

	toA := drain(a1)
	req.Len(only(toA, realtime.EventMessageSeenUpdate), 1)
	req.Len(only(toA, realtime.EventGroupSeenUpdate), 1)
	req.Len(only(toA, realtime.EventTyping), 1)
	req.Len(only(toA, realtime.EventGroupStopTyping), 1)

	unseen, err := f.svc.UnseenDirect(ctx, b)
	req.NoError(err)
	req.Zero(unseen[a])
}

func TestUpdateProfile(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "ana"), f.user(t, "bo")
	b1 := f.connect(t, b)
	drain(b1)

	bio := "hello there"
	u, err := f.svc.UpdateProfile(ctx, a, ProfileInput{Bio: &bio})
	req.NoError(err)
	req.Equal("hello there", u.Bio)
	req.Len(only(drain(b1), realtime.EventProfileUpdate), 1)

	_, err = f.svc.UpdateProfile(ctx, uuid.New(), ProfileInput{Bio: &bio})
	req.ErrorIs(err, ErrUserNotFound)
}

func TestListUsersAndGroups(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "ana"), f.user(t, "bo")
	f.connect(t, b)
	g := f.group(t, a, b)

	_, err := f.svc.SendDirect(ctx, b, a, SendInput{Text: "psst"}, "")
	req.NoError(err)
	_, err = f.svc.SendGroup(ctx, b, g, SendInput{Text: "team"})
	req.NoError(err)

	users, err := f.svc.ListUsers(ctx, a)
	req.NoError(err)
	req.Len(users.Users, 1)
	req.Equal(1, users.Unseen[b])
	req.Equal([]uuid.UUID{b}, users.Online)

	groups, err := f.svc.MyGroups(ctx, a)
	req.NoError(err)
	req.Len(groups.Groups, 1)
	req.Equal(1, groups.Unseen[g])
}
