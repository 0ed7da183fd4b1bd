package chat

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/pulsechat/internal/mocks"
	"github.com/lalith-99/pulsechat/internal/realtime"
	"github.com/lalith-99/pulsechat/internal/repository"
	"github.com/lalith-99/pulsechat/internal/repository/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	svc      *Service
	store    *repository.Store
	hub      *realtime.Hub
	uploader *mocks.MockUploader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	logger := zaptest.NewLogger(t)

	store := memory.New()
	registry := realtime.NewRegistry(logger)
	hub := realtime.NewHub(registry, realtime.NewLocalBroker(registry), logger)
	presence := realtime.NewPresence(hub, realtime.NewLocalOnlineSet(), logger)
	uploader := mocks.NewMockUploader(ctrl)

	return &fixture{
		svc:      NewService(store, hub, presence, uploader, logger),
		store:    store,
		hub:      hub,
		uploader: uploader,
	}
}

func (f *fixture) user(t *testing.T, name string) uuid.UUID {
	t.Helper()
	u, err := f.store.Users.Create(context.Background(), name+"@example.com", name, "", "hash")
	require.NoError(t, err)
	return u.ID
}

// connect opens a live session and discards the presence broadcast it
// triggers so tests start from an empty outbox.
func (f *fixture) connect(t *testing.T, userID uuid.UUID) *realtime.Session {
	t.Helper()
	sess := realtime.NewSession(userID, nil, 64)
	require.NoError(t, f.svc.Connect(context.Background(), sess))
	return sess
}

func (f *fixture) group(t *testing.T, creator uuid.UUID, members ...uuid.UUID) uuid.UUID {
	t.Helper()
	g, err := f.svc.CreateGroup(context.Background(), creator, CreateGroupInput{Name: "team", Members: members})
	require.NoError(t, err)
	return g.ID
}

func drain(sess *realtime.Session) []realtime.Frame {
	var frames []realtime.Frame
	for {
		select {
		case raw, ok := <-sess.Outbox():
			if !ok {
				return frames
			}
			var fr realtime.Frame
			if err := json.Unmarshal(raw, &fr); err == nil {
				frames = append(frames, fr)
			}
		default:
			return frames
		}
	}
}

// only returns the frames with the given event name.
func only(frames []realtime.Frame, event string) []realtime.Frame {
	var out []realtime.Frame
	for _, fr := range frames {
		if fr.Event == event {
			out = append(out, fr)
		}
	}
	return out
}

func decode[T any](t *testing.T, fr realtime.Frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(fr.Data, &v))
	return v
}
