package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/pulsechat/internal/models"
)

const messageColumns = `id, kind, sender_id, recipient_id, group_id, body, image, created_at, seen, seen_by, members_at_send`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so message inserts
// can join the membership transactions.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var (
		msg  models.Message
		kind string
	)
	err := row.Scan(
		&msg.ID,
		&kind,
		&msg.SenderID,
		&msg.RecipientID,
		&msg.GroupID,
		&msg.Text,
		&msg.Image,
		&msg.CreatedAt,
		&msg.Seen,
		&msg.SeenBy,
		&msg.MembersAtSend,
	)
	if err != nil {
		return nil, err
	}
	msg.Kind = models.MessageKind(kind)
	return &msg, nil
}

func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func insertMessage(ctx context.Context, q querier, msg *models.Message) (*models.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	var createdAt *time.Time
	if !msg.CreatedAt.IsZero() {
		createdAt = &msg.CreatedAt
	}
	seenBy := msg.SeenBy
	if seenBy == nil {
		seenBy = []uuid.UUID{}
	}
	members := msg.MembersAtSend
	if members == nil {
		members = []uuid.UUID{}
	}

	query := `
		INSERT INTO messages (kind, sender_id, recipient_id, group_id, body, image, created_at, seen, seen_by, members_at_send)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7::timestamptz, now()), $8, $9, $10)
		RETURNING ` + messageColumns

	saved, err := scanMessage(q.QueryRow(ctx, query,
		string(msg.Kind),
		msg.SenderID,
		msg.RecipientID,
		msg.GroupID,
		msg.Text,
		msg.Image,
		createdAt,
		msg.Seen,
		seenBy,
		members,
	))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return saved, nil
}

func (s *MessageStore) Create(ctx context.Context, msg *models.Message) (*models.Message, error) {
	return insertMessage(ctx, s.pool, msg)
}

func (s *MessageStore) ListDirect(ctx context.Context, a, b uuid.UUID) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE kind = 'direct'
		  AND ((sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1))
		ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, a, b)
	if err != nil {
		return nil, fmt.Errorf("list direct messages: %w", err)
	}
	return collectMessages(rows)
}

// ListGroup never returns rows at or before `after`: callers pass the
// viewer's joined_at and older history is excluded by the query itself.
func (s *MessageStore) ListGroup(ctx context.Context, groupID uuid.UUID, after time.Time) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE group_id = $1 AND created_at > $2
		ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, groupID, after)
	if err != nil {
		return nil, fmt.Errorf("list group messages: %w", err)
	}
	return collectMessages(rows)
}

// MarkDirectSeen is a single conditional UPDATE. "AND NOT seen" makes it
// idempotent: a second call returns no rows.
func (s *MessageStore) MarkDirectSeen(ctx context.Context, viewerID, peerID uuid.UUID, until time.Time) ([]models.Message, error) {
	query := `
		UPDATE messages SET seen = true
		WHERE kind = 'direct' AND sender_id = $2 AND recipient_id = $1 AND NOT seen
		  AND created_at <= $3
		RETURNING ` + messageColumns

	rows, err := s.pool.Query(ctx, query, viewerID, peerID, until)
	if err != nil {
		return nil, fmt.Errorf("mark direct seen: %w", err)
	}
	return collectMessages(rows)
}

func (s *MessageStore) MarkGroupSeen(ctx context.Context, groupID, viewerID uuid.UUID, after, until time.Time) ([]models.Message, error) {
	query := `
		UPDATE messages SET seen_by = array_append(seen_by, $2)
		WHERE group_id = $1
		  AND kind = 'group'
		  AND created_at > $3
		  AND created_at <= $4
		  AND sender_id <> $2
		  AND NOT ($2 = ANY(seen_by))
		RETURNING ` + messageColumns

	rows, err := s.pool.Query(ctx, query, groupID, viewerID, after, until)
	if err != nil {
		return nil, fmt.Errorf("mark group seen: %w", err)
	}
	return collectMessages(rows)
}

func (s *MessageStore) CountUnseenDirect(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error) {
	query := `
		SELECT sender_id, count(*)
		FROM messages
		WHERE kind = 'direct' AND recipient_id = $1 AND NOT seen
		GROUP BY sender_id`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("count unseen direct: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			sender uuid.UUID
			n      int
		)
		if err := rows.Scan(&sender, &n); err != nil {
			return nil, fmt.Errorf("scan unseen direct: %w", err)
		}
		counts[sender] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unseen direct: %w", err)
	}
	return counts, nil
}

// CountUnseenGroups computes every group count in one pass. The floor is
// the later of the watermark and joined_at, so a fresh member never counts
// history from before they joined.
func (s *MessageStore) CountUnseenGroups(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error) {
	query := `
		SELECT gm.group_id, count(m.id)
		FROM group_members gm
		LEFT JOIN watermarks w
		       ON w.user_id = gm.user_id AND w.scope_kind = 'group' AND w.scope_id = gm.group_id
		LEFT JOIN messages m
		       ON m.group_id = gm.group_id
		      AND m.sender_id <> gm.user_id
		      AND m.created_at > GREATEST(gm.joined_at, COALESCE(w.last_seen_at, gm.joined_at))
		WHERE gm.user_id = $1
		GROUP BY gm.group_id`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("count unseen groups: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			groupID uuid.UUID
			n       int
		)
		if err := rows.Scan(&groupID, &n); err != nil {
			return nil, fmt.Errorf("scan unseen group: %w", err)
		}
		counts[groupID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unseen groups: %w", err)
	}
	return counts, nil
}
