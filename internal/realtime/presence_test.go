package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPresence_TransitionsOnlyOnEdges(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub(t)
	presence := NewPresence(hub, NewLocalOnlineSet(), zaptest.NewLogger(t))

	watcher := NewSession(uuid.New(), nil, 16)
	hub.Registry.Register(watcher)
	user := uuid.New()

	// Given a user opens two sessions
	req.True(presence.Connected(ctx, user))
	req.False(presence.Connected(ctx, user))

	// Then only the first one broadcast the online set
	frames := drain(watcher)
	req.Len(frames, 1)
	req.Equal(EventOnlineUsers, frames[0].Event)
	var online []uuid.UUID
	req.NoError(json.Unmarshal(frames[0].Data, &online))
	req.Equal([]uuid.UUID{user}, online)

	// When one session closes the user stays online
	req.False(presence.Disconnected(ctx, user))
	req.Empty(drain(watcher))

	// When the last closes the user goes offline
	req.True(presence.Disconnected(ctx, user))
	frames = drain(watcher)
	req.Len(frames, 1)
	req.JSONEq(`[]`, string(frames[0].Data))
}

func TestLocalOnlineSet_RemoveUnknown(t *testing.T) {
	req := require.New(t)
	set := NewLocalOnlineSet()

	last, err := set.Remove(context.Background(), uuid.New())
	req.NoError(err)
	req.False(last)
}

func TestParsePresence(t *testing.T) {
	req := require.New(t)
	live := uuid.New()

	ids := parsePresence(map[string]string{
		live.String():       "2",
		uuid.New().String(): "0",
		"not-a-uuid":        "1",
		uuid.New().String(): "x",
	})

	req.Equal([]uuid.UUID{live}, ids)
}

func TestPresence_SendToReachesOnlyTheNewSession(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub(t)
	presence := NewPresence(hub, NewLocalOnlineSet(), zaptest.NewLogger(t))
	user := uuid.New()
	s1, s2 := NewSession(user, nil, 8), NewSession(user, nil, 8)

	hub.Registry.Register(s1)
	req.True(presence.Connected(ctx, user))
	drain(s1)

	hub.Registry.Register(s2)
	req.False(presence.Connected(ctx, user))
	presence.SendTo(ctx, s2)

	req.Empty(drain(s1))
	frames := drain(s2)
	req.Len(frames, 1)
	var online []uuid.UUID
	req.NoError(json.Unmarshal(frames[0].Data, &online))
	req.Equal([]uuid.UUID{user}, online)
}
