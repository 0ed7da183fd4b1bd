package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/lalith-99/pulsechat/internal/observ"
	"go.uber.org/zap"
)

type sessionSet map[*Session]struct{}

// Registry is the instance-local connection registry: which sessions each
// user holds and which sessions listen on each scope.
//
// Deliveries take the read lock and never block. Register, Unregister and
// the subscribe calls take the write lock.
type Registry struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]sessionSet
	scopes map[Scope]sessionSet
	subs   map[*Session]map[Scope]struct{}
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		users:  make(map[uuid.UUID]sessionSet),
		scopes: make(map[Scope]sessionSet),
		subs:   make(map[*Session]map[Scope]struct{}),
		logger: logger,
	}
}

// Register adds the session and subscribes it to its user scope and the
// all scope. It reports whether this is the user's first live session here.
func (r *Registry) Register(s *Session) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.users[s.UserID]
	if !ok {
		set = make(sessionSet)
		r.users[s.UserID] = set
	}
	first = len(set) == 0
	set[s] = struct{}{}
	r.subs[s] = make(map[Scope]struct{})

	r.subscribeLocked(s, UserScope(s.UserID))
	r.subscribeLocked(s, AllScope)

	observ.LiveSessions.Inc()
	observ.OnlineUsers.Set(float64(len(r.users)))
	return first
}

// Unregister releases every subscription the session holds and closes its
// outbox. Frames still queued are dropped. It reports whether the user has
// no live sessions left here. Calling it twice is a no-op.
func (r *Registry) Unregister(s *Session) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	scopes, ok := r.subs[s]
	if !ok {
		return false
	}
	for scope := range scopes {
		r.unsubscribeLocked(s, scope)
	}
	delete(r.subs, s)

	set := r.users[s.UserID]
	delete(set, s)
	if len(set) == 0 {
		delete(r.users, s.UserID)
		last = true
	}

	s.closed = true
	close(s.send)

	observ.LiveSessions.Dec()
	observ.OnlineUsers.Set(float64(len(r.users)))
	return last
}

// Subscribe adds one registered session to a scope.
func (r *Registry) Subscribe(s *Session, scope Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[s]; ok {
		r.subscribeLocked(s, scope)
	}
}

// Unsubscribe removes one session from a scope.
func (r *Registry) Unsubscribe(s *Session, scope Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(s, scope)
}

// SubscribeUser subscribes every live session of the user to the scope.
func (r *Registry) SubscribeUser(userID uuid.UUID, scope Scope) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for s := range r.users[userID] {
		r.subscribeLocked(s, scope)
		n++
	}
	return n
}

// UnsubscribeUser removes every live session of the user from the scope.
func (r *Registry) UnsubscribeUser(userID uuid.UUID, scope Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for s := range r.users[userID] {
		r.unsubscribeLocked(s, scope)
	}
}

// IsSubscribed reports whether the session currently listens on scope.
func (r *Registry) IsSubscribed(s *Session, scope Scope) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.scopes[scope][s]
	return ok
}

func (r *Registry) subscribeLocked(s *Session, scope Scope) {
	set, ok := r.scopes[scope]
	if !ok {
		set = make(sessionSet)
		r.scopes[scope] = set
	}
	set[s] = struct{}{}
	r.subs[s][scope] = struct{}{}
}

func (r *Registry) unsubscribeLocked(s *Session, scope Scope) {
	if set, ok := r.scopes[scope]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(r.scopes, scope)
		}
	}
	if scopes, ok := r.subs[s]; ok {
		delete(scopes, scope)
	}
}

// Deliver queues a frame on every session subscribed to env.Scope except
// the excluded ones. A full outbox drops the frame for that session only.
// It returns the number of sessions that accepted the frame.
func (r *Registry) Deliver(env Envelope) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for s := range r.scopes[env.Scope] {
		if env.Exclude.skips(s) {
			continue
		}
		if r.offerLocked(s, env) {
			delivered++
		}
	}
	return delivered
}

// DeliverTo queues a frame on one session of this instance, bypassing the
// broker. Scope and Exclude are ignored.
func (r *Registry) DeliverTo(s *Session, env Envelope) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.subs[s]; !ok {
		return false
	}
	return r.offerLocked(s, env)
}

// Caller holds r.mu.
func (r *Registry) offerLocked(s *Session, env Envelope) bool {
	if s.closed {
		return false
	}
	select {
	case s.send <- env.Frame:
		observ.PushesTotal.WithLabelValues(env.Event, "sent").Inc()
		return true
	default:
		observ.PushesTotal.WithLabelValues(env.Event, "dropped").Inc()
		r.logger.Debug("outbox full, dropping push",
			zap.String("event", env.Event),
			zap.String("session_id", s.ID),
			zap.Stringer("user_id", s.UserID),
		)
		return false
	}
}

// OnlineUsers returns the users holding at least one session here.
func (r *Registry) OnlineUsers() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	return ids
}

// SessionCount returns the user's live sessions on this instance.
func (r *Registry) SessionCount(userID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}
