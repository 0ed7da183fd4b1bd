package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/pulsechat/internal/models"
	"github.com/lalith-99/pulsechat/internal/repository"
	"github.com/stretchr/testify/require"
)

func frozenClock() func() time.Time {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t0 }
}

func TestTick_NeverRepeats(t *testing.T) {
	req := require.New(t)
	d := &db{now: frozenClock()}

	// Given a clock that never moves
	a := d.tick()
	b := d.tick()

	// Then the store still hands out strictly increasing times
	req.True(b.After(a))
}

func TestUsers_DuplicateEmail(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := New()

	_, err := store.Users.Create(ctx, "ana@example.com", "Ana", "", "hash")
	req.NoError(err)

	_, err = store.Users.Create(ctx, "ANA@example.com", "Other", "", "hash")
	req.ErrorIs(err, repository.ErrEmailTaken)
}

func TestUsers_ListExceptAndUpdate(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := New()

	ana, _ := store.Users.Create(ctx, "ana@example.com", "Ana", "", "h")
	_, _ = store.Users.Create(ctx, "bo@example.com", "Bo", "", "h")

	others, err := store.Users.ListExcept(ctx, ana.ID)
	req.NoError(err)
	req.Len(others, 1)
	req.Equal("Bo", others[0].FullName)

	bio := "hello"
	updated, err := store.Users.UpdateProfile(ctx, ana.ID, models.ProfileUpdate{Bio: &bio})
	req.NoError(err)
	req.Equal("hello", updated.Bio)
	req.Equal("Ana", updated.FullName)

	missing, err := store.Users.UpdateProfile(ctx, uuid.New(), models.ProfileUpdate{Bio: &bio})
	req.NoError(err)
	req.Nil(missing)
}

func TestGroups_CreateSharesJoinTime(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := New()
	a, b := uuid.New(), uuid.New()

	g, members, err := store.Groups.Create(ctx, "team", a, []uuid.UUID{a, b, a})
	req.NoError(err)

	// Duplicates in the initial list collapse to one row
	req.Len(members, 2)
	for _, m := range members {
		req.True(m.JoinedAt.Equal(g.CreatedAt))
	}

	ids, err := store.Memberships.ListGroupIDs(ctx, b)
	req.NoError(err)
	req.Equal([]uuid.UUID{g.ID}, ids)
}

func TestMemberships_JoinWritesNoticeAtJoinTime(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := New()
	a, c := uuid.New(), uuid.New()
	g, _, _ := store.Groups.Create(ctx, "team", a, []uuid.UUID{a})

	m, notice, err := store.Memberships.Join(ctx, g.ID, c, "c joined")
	req.NoError(err)
	req.Equal(models.KindSystem, notice.Kind)
	req.True(notice.CreatedAt.Equal(m.JoinedAt))

	// The joiner's window is strict, so the notice is outside it
	history, err := store.Messages.ListGroup(ctx, g.ID, m.JoinedAt)
	req.NoError(err)
	req.Empty(history)

	// A second join is refused and writes nothing
	_, _, err = store.Memberships.Join(ctx, g.ID, c, "c joined")
	req.ErrorIs(err, repository.ErrAlreadyMember)

	all, err := store.Messages.ListGroup(ctx, g.ID, time.Time{})
	req.NoError(err)
	req.Len(all, 1)
}

func TestMemberships_Leave(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := New()
	a, b := uuid.New(), uuid.New()
	g, _, _ := store.Groups.Create(ctx, "team", a, []uuid.UUID{a, b})

	notice, err := store.Memberships.Leave(ctx, g.ID, b, "b left")
	req.NoError(err)
	req.Equal("b left", notice.Text)

	m, err := store.Memberships.GetMember(ctx, g.ID, b)
	req.NoError(err)
	req.Nil(m)

	_, err = store.Memberships.Leave(ctx, g.ID, b, "b left")
	req.ErrorIs(err, repository.ErrNotMember)
}

func TestMessages_MarkDirectSeenIsIdempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := New()
	a, b := uuid.New(), uuid.New()

	for _, text := range []string{"one", "two"} {
		_, err := store.Messages.Create(ctx, &models.Message{Kind: models.KindDirect, SenderID: a, RecipientID: &b, Text: text})
		req.NoError(err)
	}
	// b -> a is not touched by b reading a
	_, err := store.Messages.Create(ctx, &models.Message{Kind: models.KindDirect, SenderID: b, RecipientID: &a, Text: "reply"})
	req.NoError(err)

	counts, err := store.Messages.CountUnseenDirect(ctx, b)
	req.NoError(err)
	req.Equal(map[uuid.UUID]int{a: 2}, counts)

	w, err := store.Watermarks.Advance(ctx, b, models.DirectScope(a))
	req.NoError(err)

	changed, err := store.Messages.MarkDirectSeen(ctx, b, a, w.LastSeenAt)
	req.NoError(err)
	req.Len(changed, 2)

	changed, err = store.Messages.MarkDirectSeen(ctx, b, a, w.LastSeenAt)
	req.NoError(err)
	req.Empty(changed)

	counts, err = store.Messages.CountUnseenDirect(ctx, a)
	req.NoError(err)
	req.Equal(map[uuid.UUID]int{b: 1}, counts)

	thread, err := store.Messages.ListDirect(ctx, a, b)
	req.NoError(err)
	req.Len(thread, 3)
	req.Equal("one", thread[0].Text)
	req.Equal("reply", thread[2].Text)
}

func TestMessages_GroupSeenAndUnseenCounts(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := New()
	a, b := uuid.New(), uuid.New()
	g, members, _ := store.Groups.Create(ctx, "team", a, []uuid.UUID{a, b})
	snapshot := []uuid.UUID{a, b}

	// Given two messages from a
	for _, text := range []string{"hi", "there"} {
		_, err := store.Messages.Create(ctx, &models.Message{Kind: models.KindGroup, SenderID: a, GroupID: &g.ID, Text: text, MembersAtSend: snapshot})
		req.NoError(err)
	}

	counts, err := store.Messages.CountUnseenGroups(ctx, b)
	req.NoError(err)
	req.Equal(2, counts[g.ID])

	// The sender's own messages never count
	counts, err = store.Messages.CountUnseenGroups(ctx, a)
	req.NoError(err)
	req.Equal(map[uuid.UUID]int{g.ID: 0}, counts)

	// When b marks the group seen
	w, err := store.Watermarks.Advance(ctx, b, models.GroupScope(g.ID))
	req.NoError(err)

	changed, err := store.Messages.MarkGroupSeen(ctx, g.ID, b, members[1].JoinedAt, w.LastSeenAt)
	req.NoError(err)
	req.Len(changed, 2)
	req.True(changed[0].SeenByAll())

	// Then nothing is unseen and a second mark changes nothing
	counts, err = store.Messages.CountUnseenGroups(ctx, b)
	req.NoError(err)
	req.Equal(0, counts[g.ID])

	changed, err = store.Messages.MarkGroupSeen(ctx, g.ID, b, members[1].JoinedAt, w.LastSeenAt)
	req.NoError(err)
	req.Empty(changed)
}

func TestMessages_SeenMarkStopsAtUpperBound(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := New(WithClock(frozenClock()))
	a, b := uuid.New(), uuid.New()
	g, members, _ := store.Groups.Create(ctx, "team", a, []uuid.UUID{a, b})

	// Given b's watermark is taken before a's message lands
	w, err := store.Watermarks.Advance(ctx, b, models.GroupScope(g.ID))
	req.NoError(err)
	late, err := store.Messages.Create(ctx, &models.Message{Kind: models.KindGroup, SenderID: a, GroupID: &g.ID, Text: "late", MembersAtSend: []uuid.UUID{a, b}})
	req.NoError(err)
	_, err = store.Messages.Create(ctx, &models.Message{Kind: models.KindDirect, SenderID: a, RecipientID: &b, Text: "late"})
	req.NoError(err)

	// When the marks run bounded by that watermark
	changed, err := store.Messages.MarkGroupSeen(ctx, g.ID, b, members[1].JoinedAt, w.LastSeenAt)
	req.NoError(err)
	req.Empty(changed)
	changed, err = store.Messages.MarkDirectSeen(ctx, b, a, w.LastSeenAt)
	req.NoError(err)
	req.Empty(changed)

	// Then both late messages stay unseen and counted
	groups, err := store.Messages.CountUnseenGroups(ctx, b)
	req.NoError(err)
	req.Equal(1, groups[g.ID])
	directs, err := store.Messages.CountUnseenDirect(ctx, b)
	req.NoError(err)
	req.Equal(1, directs[a])

	thread, err := store.Messages.ListGroup(ctx, g.ID, members[1].JoinedAt)
	req.NoError(err)
	req.Equal(late.ID, thread[len(thread)-1].ID)
	req.Empty(thread[len(thread)-1].SeenBy)
}

func TestWatermarks_Monotonic(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := New(WithClock(frozenClock()))
	u := uuid.New()
	scope := models.GroupScope(uuid.New())

	none, err := store.Watermarks.Get(ctx, u, scope)
	req.NoError(err)
	req.Nil(none)

	first, err := store.Watermarks.Advance(ctx, u, scope)
	req.NoError(err)
	second, err := store.Watermarks.Advance(ctx, u, scope)
	req.NoError(err)
	req.True(second.LastSeenAt.After(first.LastSeenAt))

	got, err := store.Watermarks.Get(ctx, u, scope)
	req.NoError(err)
	req.True(got.LastSeenAt.Equal(second.LastSeenAt))
}
