//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/pulsechat/internal/db"
	"github.com/lalith-99/pulsechat/internal/models"
	"github.com/lalith-99/pulsechat/internal/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Run with:
//
//	PULSECHAT_TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/repository/postgres/
func newTestStore(t *testing.T) *repository.Store {
	t.Helper()
	url := os.Getenv("PULSECHAT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PULSECHAT_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	database, err := db.New(ctx, url, 4, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(database.Close)
	require.NoError(t, database.Migrate(ctx))
	return NewStore(database.Pool())
}

func createUser(t *testing.T, store *repository.Store, name string) uuid.UUID {
	t.Helper()
	u, err := store.Users.Create(context.Background(), name+"-"+uuid.NewString()+"@example.com", name, "", "hash")
	require.NoError(t, err)
	return u.ID
}

func TestMessageStore_GroupSeenAndUnseenCounts(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)
	a, b := createUser(t, store, "ana"), createUser(t, store, "bo")

	g, members, err := store.Groups.Create(ctx, "team", a, []uuid.UUID{a, b})
	req.NoError(err)
	joined := members[0].JoinedAt

	// Given two messages from a after the join
	for _, text := range []string{"hi", "there"} {
		_, err := store.Messages.Create(ctx, &models.Message{
			Kind:          models.KindGroup,
			SenderID:      a,
			GroupID:       &g.ID,
			Text:          text,
			MembersAtSend: []uuid.UUID{a, b},
		})
		req.NoError(err)
	}

	counts, err := store.Messages.CountUnseenGroups(ctx, b)
	req.NoError(err)
	req.Equal(2, counts[g.ID])

	// The sender's own messages never count, and the group still shows up
	counts, err = store.Messages.CountUnseenGroups(ctx, a)
	req.NoError(err)
	req.Equal(map[uuid.UUID]int{g.ID: 0}, counts)

	// When b marks the group seen
	w, err := store.Watermarks.Advance(ctx, b, models.GroupScope(g.ID))
	req.NoError(err)
	changed, err := store.Messages.MarkGroupSeen(ctx, g.ID, b, joined, w.LastSeenAt)
	req.NoError(err)
	req.Len(changed, 2)
	for _, m := range changed {
		req.Equal([]uuid.UUID{b}, m.SeenBy)
		req.True(m.SeenByAll())
	}

	// Then nothing is unseen and a second mark changes nothing
	counts, err = store.Messages.CountUnseenGroups(ctx, b)
	req.NoError(err)
	req.Equal(0, counts[g.ID])

	changed, err = store.Messages.MarkGroupSeen(ctx, g.ID, b, joined, w.LastSeenAt)
	req.NoError(err)
	req.Empty(changed)

	// And a message past the watermark is neither marked nor hidden
	late, err := store.Messages.Create(ctx, &models.Message{
		Kind:          models.KindGroup,
		SenderID:      a,
		GroupID:       &g.ID,
		Text:          "late",
		MembersAtSend: []uuid.UUID{a, b},
		CreatedAt:     w.LastSeenAt.Add(time.Millisecond),
	})
	req.NoError(err)

	changed, err = store.Messages.MarkGroupSeen(ctx, g.ID, b, joined, w.LastSeenAt)
	req.NoError(err)
	req.Empty(changed)

	counts, err = store.Messages.CountUnseenGroups(ctx, b)
	req.NoError(err)
	req.Equal(1, counts[g.ID])

	history, err := store.Messages.ListGroup(ctx, g.ID, joined)
	req.NoError(err)
	req.Equal(late.ID, history[len(history)-1].ID)
	req.Empty(history[len(history)-1].SeenBy)
}

func TestMessageStore_CountUnseenGroupsUsesJoinFloor(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)
	a, c := createUser(t, store, "ana"), createUser(t, store, "cy")

	g, _, err := store.Groups.Create(ctx, "team", a, []uuid.UUID{a})
	req.NoError(err)
	_, err = store.Messages.Create(ctx, &models.Message{
		Kind: models.KindGroup, SenderID: a, GroupID: &g.ID, Text: "before", MembersAtSend: []uuid.UUID{a},
	})
	req.NoError(err)

	// Given c joins after a message was sent, with no watermark yet
	member, _, err := store.Memberships.Join(ctx, g.ID, c, "cy joined the group")
	req.NoError(err)

	// Then the earlier message is not counted against c
	counts, err := store.Messages.CountUnseenGroups(ctx, c)
	req.NoError(err)
	req.Equal(0, counts[g.ID])

	_, err = store.Messages.Create(ctx, &models.Message{
		Kind:          models.KindGroup,
		SenderID:      a,
		GroupID:       &g.ID,
		Text:          "after",
		MembersAtSend: []uuid.UUID{a, c},
		CreatedAt:     member.JoinedAt.Add(time.Millisecond),
	})
	req.NoError(err)

	counts, err = store.Messages.CountUnseenGroups(ctx, c)
	req.NoError(err)
	req.Equal(1, counts[g.ID])
}
