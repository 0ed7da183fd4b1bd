package realtime

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Broker moves envelopes to every instance that may hold a recipient.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
}

// LocalBroker delivers straight into the local registry. It is the broker
// for single-instance runs and for tests, where delivery is synchronous.
type LocalBroker struct {
	registry *Registry
}

func NewLocalBroker(registry *Registry) *LocalBroker {
	return &LocalBroker{registry: registry}
}

func (b *LocalBroker) Publish(_ context.Context, env Envelope) error {
	b.registry.Deliver(env)
	return nil
}

// Hub is what the domain layer pushes through. It pairs the local registry
// with a broker and never surfaces transport failures to callers: pushes
// are best effort and pull reconciliation covers anything lost.
type Hub struct {
	Registry *Registry
	broker   Broker
	logger   *zap.Logger
}

func NewHub(registry *Registry, broker Broker, logger *zap.Logger) *Hub {
	return &Hub{Registry: registry, broker: broker, logger: logger}
}

// Emit encodes the event once and publishes it to the scope.
func (h *Hub) Emit(ctx context.Context, scope Scope, event string, data any, exclude Exclude) {
	frame, err := EncodeFrame(event, data)
	if err != nil {
		h.logger.Error("encode event", zap.String("event", event), zap.Error(err))
		return
	}
	env := Envelope{Scope: scope, Event: event, Exclude: exclude, Frame: frame}
	if err := h.broker.Publish(ctx, env); err != nil {
		h.logger.Warn("publish event",
			zap.String("event", event),
			zap.String("scope", string(scope)),
			zap.Error(err),
		)
	}
}

// EmitToUser pushes to every session of one user.
func (h *Hub) EmitToUser(ctx context.Context, userID uuid.UUID, event string, data any) {
	h.Emit(ctx, UserScope(userID), event, data, Exclude{})
}
