package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestHub(t *testing.T) *Hub {
	logger := zaptest.NewLogger(t)
	registry := NewRegistry(logger)
	return NewHub(registry, NewLocalBroker(registry), logger)
}

func TestHub_EmitWireFrame(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t)
	user := uuid.New()
	s := NewSession(user, nil, 4)
	hub.Registry.Register(s)

	hub.EmitToUser(context.Background(), user, EventTyping, map[string]string{"from": "peer"})

	frames := drain(s)
	req.Len(frames, 1)
	req.Equal(EventTyping, frames[0].Event)
	req.JSONEq(`{"from":"peer"}`, string(frames[0].Data))
}

func TestHub_UnencodableEventIsDropped(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t)
	user := uuid.New()
	s := NewSession(user, nil, 4)
	hub.Registry.Register(s)

	hub.EmitToUser(context.Background(), user, EventTyping, make(chan int))

	req.Empty(drain(s))
}

func TestDecodeEnvelope(t *testing.T) {
	req := require.New(t)
	frame, err := EncodeFrame(EventNewMessage, map[string]string{"text": "hi"})
	req.NoError(err)
	sent := Envelope{
		Scope:   UserScope(uuid.New()),
		Event:   EventNewMessage,
		Exclude: Exclude{SessionID: "s-1"},
		Frame:   frame,
	}
	payload, err := json.Marshal(sent)
	req.NoError(err)

	got, err := decodeEnvelope(string(payload))
	req.NoError(err)
	req.Equal(sent.Scope, got.Scope)
	req.Equal(sent.Exclude, got.Exclude)
	req.JSONEq(string(frame), string(got.Frame))

	_, err = decodeEnvelope(`{"event":"x"}`)
	req.Error(err)
	_, err = decodeEnvelope(`not json`)
	req.Error(err)
}
