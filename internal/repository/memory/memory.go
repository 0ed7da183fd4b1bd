// Package memory is an in-process repository backend. It is used by tests
// and by STORAGE=memory for single-instance development runs.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/pulsechat/internal/models"
	"github.com/lalith-99/pulsechat/internal/repository"
)

// Option configures the in-memory backend.
type Option func(*db)

// WithClock replaces time.Now. Tests pass a clock that ticks on every call
// so created_at ordering is deterministic.
func WithClock(now func() time.Time) Option {
	return func(d *db) { d.now = now }
}

type memberKey struct {
	group uuid.UUID
	user  uuid.UUID
}

type watermarkKey struct {
	user  uuid.UUID
	scope models.Scope
}

// db is the shared state behind every repository. One mutex guards it all;
// each repository method is a single critical section, which gives the same
// atomicity the Postgres transactions give.
type db struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time

	users      map[uuid.UUID]*models.User
	groups     map[uuid.UUID]*models.Group
	members    map[memberKey]*models.GroupMember
	messages   []*models.Message
	watermarks map[watermarkKey]time.Time
}

// New returns a repository.Store backed by process memory.
func New(opts ...Option) *repository.Store {
	d := &db{
		now:        time.Now,
		users:      make(map[uuid.UUID]*models.User),
		groups:     make(map[uuid.UUID]*models.Group),
		members:    make(map[memberKey]*models.GroupMember),
		watermarks: make(map[watermarkKey]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	return &repository.Store{
		Users:       &userRepo{d},
		Groups:      &groupRepo{d},
		Memberships: &membershipRepo{d},
		Messages:    &messageRepo{d},
		Watermarks:  &watermarkRepo{d},
	}
}

// tick returns the store time. It never repeats or goes backwards, so two
// writes in the same critical path still get distinct, ordered timestamps.
// Caller holds d.mu.
func (d *db) tick() time.Time {
	t := d.now().UTC()
	if !t.After(d.last) {
		t = d.last.Add(time.Microsecond)
	}
	d.last = t
	return t
}

func cloneMessage(m *models.Message) models.Message {
	c := *m
	c.SeenBy = slices.Clone(m.SeenBy)
	c.MembersAtSend = slices.Clone(m.MembersAtSend)
	return c
}

func (d *db) insertMessage(msg *models.Message) (*models.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	stored := cloneMessage(msg)
	stored.ID = uuid.New()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = d.tick()
	}
	if stored.SeenBy == nil {
		stored.SeenBy = []uuid.UUID{}
	}
	d.messages = append(d.messages, &stored)
	out := cloneMessage(&stored)
	return &out, nil
}

func (d *db) groupMembers(groupID uuid.UUID) []models.GroupMember {
	members := make([]models.GroupMember, 0)
	for k, m := range d.members {
		if k.group == groupID {
			members = append(members, *m)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].UserID.String() < members[j].UserID.String()
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members
}

type userRepo struct{ *db }

func (r *userRepo) Create(_ context.Context, email, fullName, bio, passwordHash string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return nil, repository.ErrEmailTaken
		}
	}
	u := &models.User{
		ID:           uuid.New(),
		Email:        email,
		FullName:     fullName,
		Bio:          bio,
		PasswordHash: passwordHash,
		CreatedAt:    r.tick(),
	}
	r.users[u.ID] = u
	out := *u
	return &out, nil
}

func (r *userRepo) GetByID(_ context.Context, userID uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			out := *u
			return &out, nil
		}
	}
	return nil, nil
}

func (r *userRepo) ListExcept(_ context.Context, userID uuid.UUID) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]models.User, 0, len(r.users))
	for id, u := range r.users {
		if id != userID {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].FullName < users[j].FullName })
	return users, nil
}

func (r *userRepo) UpdateProfile(_ context.Context, userID uuid.UUID, upd models.ProfileUpdate) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, nil
	}
	if upd.FullName != nil {
		u.FullName = *upd.FullName
	}
	if upd.Bio != nil {
		u.Bio = *upd.Bio
	}
	if upd.ProfilePic != nil {
		u.ProfilePic = *upd.ProfilePic
	}
	out := *u
	return &out, nil
}

type groupRepo struct{ *db }

func (r *groupRepo) Create(_ context.Context, name string, createdBy uuid.UUID, memberIDs []uuid.UUID) (*models.Group, []models.GroupMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.tick()
	g := &models.Group{ID: uuid.New(), Name: name, CreatedBy: createdBy, CreatedAt: now}
	r.groups[g.ID] = g

	members := make([]models.GroupMember, 0, len(memberIDs))
	for _, id := range memberIDs {
		k := memberKey{group: g.ID, user: id}
		if _, dup := r.members[k]; dup {
			continue
		}
		m := &models.GroupMember{GroupID: g.ID, UserID: id, JoinedAt: now}
		r.members[k] = m
		members = append(members, *m)
	}
	out := *g
	return &out, members, nil
}

func (r *groupRepo) GetByID(_ context.Context, groupID uuid.UUID) (*models.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[groupID]
	if !ok {
		return nil, nil
	}
	out := *g
	return &out, nil
}

func (r *groupRepo) ListForUser(_ context.Context, userID uuid.UUID) ([]models.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	groups := make([]models.Group, 0)
	for k := range r.members {
		if k.user != userID {
			continue
		}
		if g, ok := r.groups[k.group]; ok {
			groups = append(groups, *g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].CreatedAt.After(groups[j].CreatedAt) })
	return groups, nil
}

func (r *groupRepo) Update(_ context.Context, groupID uuid.UUID, upd models.GroupUpdate) (*models.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[groupID]
	if !ok {
		return nil, nil
	}
	if upd.Name != nil {
		g.Name = *upd.Name
	}
	if upd.Bio != nil {
		g.Bio = *upd.Bio
	}
	if upd.ProfilePic != nil {
		g.ProfilePic = *upd.ProfilePic
	}
	out := *g
	return &out, nil
}

type membershipRepo struct{ *db }

func (r *membershipRepo) Join(_ context.Context, groupID, userID uuid.UUID, notice string) (*models.GroupMember, *models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := memberKey{group: groupID, user: userID}
	if _, ok := r.members[k]; ok {
		return nil, nil, repository.ErrAlreadyMember
	}
	m := &models.GroupMember{GroupID: groupID, UserID: userID, JoinedAt: r.tick()}

	msg, err := r.insertMessage(&models.Message{
		Kind:      models.KindSystem,
		SenderID:  userID,
		GroupID:   &groupID,
		Text:      notice,
		CreatedAt: m.JoinedAt,
	})
	if err != nil {
		return nil, nil, err
	}
	r.members[k] = m
	out := *m
	return &out, msg, nil
}

func (r *membershipRepo) Leave(_ context.Context, groupID, userID uuid.UUID, notice string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := memberKey{group: groupID, user: userID}
	if _, ok := r.members[k]; !ok {
		return nil, repository.ErrNotMember
	}
	msg, err := r.insertMessage(&models.Message{
		Kind:     models.KindSystem,
		SenderID: userID,
		GroupID:  &groupID,
		Text:     notice,
	})
	if err != nil {
		return nil, err
	}
	delete(r.members, k)
	return msg, nil
}

func (r *membershipRepo) GetMember(_ context.Context, groupID, userID uuid.UUID) (*models.GroupMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[memberKey{group: groupID, user: userID}]
	if !ok {
		return nil, nil
	}
	out := *m
	return &out, nil
}

func (r *membershipRepo) ListMembers(_ context.Context, groupID uuid.UUID) ([]models.GroupMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.groupMembers(groupID), nil
}

func (r *membershipRepo) ListGroupIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]uuid.UUID, 0)
	for k := range r.members {
		if k.user == userID {
			ids = append(ids, k.group)
		}
	}
	return ids, nil
}

type messageRepo struct{ *db }

func (r *messageRepo) Create(_ context.Context, msg *models.Message) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertMessage(msg)
}

// filter copies the matching messages out, oldest first. Caller holds r.mu.
func (r *messageRepo) filter(keep func(*models.Message) bool) []models.Message {
	out := make([]models.Message, 0)
	for _, m := range r.messages {
		if keep(m) {
			out = append(out, cloneMessage(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *messageRepo) ListDirect(_ context.Context, a, b uuid.UUID) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.filter(func(m *models.Message) bool {
		if m.Kind != models.KindDirect {
			return false
		}
		return (m.SenderID == a && *m.RecipientID == b) || (m.SenderID == b && *m.RecipientID == a)
	}), nil
}

func (r *messageRepo) ListGroup(_ context.Context, groupID uuid.UUID, after time.Time) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.filter(func(m *models.Message) bool {
		return m.GroupID != nil && *m.GroupID == groupID && m.CreatedAt.After(after)
	}), nil
}

func (r *messageRepo) MarkDirectSeen(_ context.Context, viewerID, peerID uuid.UUID, until time.Time) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := make([]models.Message, 0)
	for _, m := range r.messages {
		if m.Kind != models.KindDirect || m.Seen {
			continue
		}
		if m.SenderID != peerID || *m.RecipientID != viewerID || m.CreatedAt.After(until) {
			continue
		}
		m.Seen = true
		changed = append(changed, cloneMessage(m))
	}
	return changed, nil
}

func (r *messageRepo) MarkGroupSeen(_ context.Context, groupID, viewerID uuid.UUID, after, until time.Time) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := make([]models.Message, 0)
	for _, m := range r.messages {
		if m.Kind != models.KindGroup || *m.GroupID != groupID {
			continue
		}
		if !m.CreatedAt.After(after) || m.CreatedAt.After(until) {
			continue
		}
		if m.SenderID == viewerID || m.SeenByUser(viewerID) {
			continue
		}
		m.SeenBy = append(m.SeenBy, viewerID)
		changed = append(changed, cloneMessage(m))
	}
	return changed, nil
}

func (r *messageRepo) CountUnseenDirect(_ context.Context, userID uuid.UUID) (map[uuid.UUID]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[uuid.UUID]int)
	for _, m := range r.messages {
		if m.Kind == models.KindDirect && *m.RecipientID == userID && !m.Seen {
			counts[m.SenderID]++
		}
	}
	return counts, nil
}

func (r *messageRepo) CountUnseenGroups(_ context.Context, userID uuid.UUID) (map[uuid.UUID]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	floors := make(map[uuid.UUID]time.Time)
	for k, m := range r.members {
		if k.user != userID {
			continue
		}
		floor := m.JoinedAt
		if seen, ok := r.watermarks[watermarkKey{user: userID, scope: models.GroupScope(k.group)}]; ok && seen.After(floor) {
			floor = seen
		}
		floors[k.group] = floor
	}

	counts := make(map[uuid.UUID]int, len(floors))
	for groupID := range floors {
		counts[groupID] = 0
	}
	for _, m := range r.messages {
		if m.GroupID == nil || m.SenderID == userID {
			continue
		}
		floor, member := floors[*m.GroupID]
		if member && m.CreatedAt.After(floor) {
			counts[*m.GroupID]++
		}
	}
	return counts, nil
}

type watermarkRepo struct{ *db }

func (r *watermarkRepo) Advance(_ context.Context, userID uuid.UUID, scope models.Scope) (*models.Watermark, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := watermarkKey{user: userID, scope: scope}
	now := r.tick()
	if prev, ok := r.watermarks[k]; !ok || now.After(prev) {
		r.watermarks[k] = now
	}
	return &models.Watermark{UserID: userID, Scope: scope, LastSeenAt: r.watermarks[k]}, nil
}

func (r *watermarkRepo) Get(_ context.Context, userID uuid.UUID, scope models.Scope) (*models.Watermark, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen, ok := r.watermarks[watermarkKey{user: userID, scope: scope}]
	if !ok {
		return nil, nil
	}
	return &models.Watermark{UserID: userID, Scope: scope, LastSeenAt: seen}, nil
}
