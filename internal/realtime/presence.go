package realtime

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OnlineSet counts live sessions per user. Add and Remove report whether
// the user crossed the offline/online boundary.
type OnlineSet interface {
	Add(ctx context.Context, userID uuid.UUID) (first bool, err error)
	Remove(ctx context.Context, userID uuid.UUID) (last bool, err error)
	List(ctx context.Context) ([]uuid.UUID, error)
}

// LocalOnlineSet keeps the counts in process. Correct for one instance.
type LocalOnlineSet struct {
	mu     sync.Mutex
	online map[uuid.UUID]int
}

func NewLocalOnlineSet() *LocalOnlineSet {
	return &LocalOnlineSet{online: make(map[uuid.UUID]int)}
}

func (p *LocalOnlineSet) Add(_ context.Context, userID uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID]++
	return p.online[userID] == 1, nil
}

func (p *LocalOnlineSet) Remove(_ context.Context, userID uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	count, ok := p.online[userID]
	if !ok {
		return false, nil
	}
	if count <= 1 {
		delete(p.online, userID)
		return true, nil
	}
	p.online[userID] = count - 1
	return false, nil
}

func (p *LocalOnlineSet) List(_ context.Context) ([]uuid.UUID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(p.online))
	for id := range p.online {
		ids = append(ids, id)
	}
	return ids, nil
}

// RedisOnlineSet keeps the counts in a Redis hash so presence spans every
// instance. HINCRBY is atomic, so the 0->1 and 1->0 edges are seen by
// exactly one caller cluster-wide.
//
// TODO: counts of an instance that dies without unregistering stay in the
// hash; track them per instance with a heartbeat key and reap on expiry.
type RedisOnlineSet struct {
	client *redis.Client
	key    string
}

func NewRedisOnlineSet(client *redis.Client) *RedisOnlineSet {
	return &RedisOnlineSet{client: client, key: redisPresenceKey}
}

func (p *RedisOnlineSet) Add(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := p.client.HIncrBy(ctx, p.key, userID.String(), 1).Result()
	if err != nil {
		return false, fmt.Errorf("incr presence: %w", err)
	}
	return n == 1, nil
}

func (p *RedisOnlineSet) Remove(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := p.client.HIncrBy(ctx, p.key, userID.String(), -1).Result()
	if err != nil {
		return false, fmt.Errorf("decr presence: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	if err := p.client.HDel(ctx, p.key, userID.String()).Err(); err != nil {
		return true, fmt.Errorf("clear presence: %w", err)
	}
	return n == 0, nil
}

func (p *RedisOnlineSet) List(ctx context.Context) ([]uuid.UUID, error) {
	counts, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}
	return parsePresence(counts), nil
}

func parsePresence(counts map[string]string) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(counts))
	for field, raw := range counts {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			continue
		}
		id, err := uuid.Parse(field)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Presence turns session registration into online/offline transitions and
// broadcasts the full online set whenever one happens.
type Presence struct {
	hub    *Hub
	set    OnlineSet
	logger *zap.Logger
}

func NewPresence(hub *Hub, set OnlineSet, logger *zap.Logger) *Presence {
	return &Presence{hub: hub, set: set, logger: logger}
}

// Connected records a new session. It returns true on OFFLINE->ONLINE.
func (p *Presence) Connected(ctx context.Context, userID uuid.UUID) bool {
	first, err := p.set.Add(ctx, userID)
	if err != nil {
		p.logger.Warn("presence add failed", zap.Stringer("user_id", userID), zap.Error(err))
		return false
	}
	if first {
		p.Broadcast(ctx)
	}
	return first
}

// Disconnected records a closed session. It returns true on ONLINE->OFFLINE.
func (p *Presence) Disconnected(ctx context.Context, userID uuid.UUID) bool {
	last, err := p.set.Remove(ctx, userID)
	if err != nil {
		p.logger.Warn("presence remove failed", zap.Stringer("user_id", userID), zap.Error(err))
	}
	if last {
		p.Broadcast(ctx)
	}
	return last
}

// Online returns the current online set.
func (p *Presence) Online(ctx context.Context) []uuid.UUID {
	ids, err := p.set.List(ctx)
	if err != nil {
		p.logger.Warn("presence list failed", zap.Error(err))
		return []uuid.UUID{}
	}
	return ids
}

// SendTo pushes the online set to one local session only. A session that
// opens while its user is already online gets no broadcast, so it needs
// its own copy.
func (p *Presence) SendTo(ctx context.Context, s *Session) {
	frame, err := EncodeFrame(EventOnlineUsers, p.Online(ctx))
	if err != nil {
		p.logger.Error("encode event", zap.String("event", EventOnlineUsers), zap.Error(err))
		return
	}
	p.hub.Registry.DeliverTo(s, Envelope{Event: EventOnlineUsers, Frame: frame})
}

// Broadcast pushes the full online set to every session.
func (p *Presence) Broadcast(ctx context.Context) {
	p.hub.Emit(ctx, AllScope, EventOnlineUsers, p.Online(ctx), Exclude{})
}
