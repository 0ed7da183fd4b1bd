package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/pulsechat/internal/models"
	"github.com/lalith-99/pulsechat/internal/repository"
)

type MembershipStore struct {
	pool *pgxpool.Pool
}

func NewMembershipStore(pool *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

func collectMembers(rows pgx.Rows) ([]models.GroupMember, error) {
	defer rows.Close()

	members := make([]models.GroupMember, 0)
	for rows.Next() {
		var m models.GroupMember
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

// Join inserts the membership and the "joined" notice in one transaction.
//
// ON CONFLICT DO NOTHING + RETURNING yields no row for an existing member,
// which is how a duplicate add is detected without a separate lookup.
func (s *MembershipStore) Join(ctx context.Context, groupID, userID uuid.UUID, notice string) (*models.GroupMember, *models.Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin join: %w", err)
	}
	defer tx.Rollback(ctx)

	var m models.GroupMember
	err = tx.QueryRow(ctx, `
		INSERT INTO group_members (group_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (group_id, user_id) DO NOTHING
		RETURNING group_id, user_id, joined_at`, groupID, userID).Scan(&m.GroupID, &m.UserID, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, repository.ErrAlreadyMember
		}
		return nil, nil, fmt.Errorf("add member: %w", err)
	}

	// The notice shares the join instant. The joiner's window is strictly
	// after joined_at, so only earlier members ever see it.
	msg, err := insertMessage(ctx, tx, &models.Message{
		Kind:      models.KindSystem,
		SenderID:  userID,
		GroupID:   &groupID,
		Text:      notice,
		CreatedAt: m.JoinedAt,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit join: %w", err)
	}
	return &m, msg, nil
}

func (s *MembershipStore) Leave(ctx context.Context, groupID, userID uuid.UUID, notice string) (*models.Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin leave: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM group_members
		WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, repository.ErrNotMember
	}

	msg, err := insertMessage(ctx, tx, &models.Message{
		Kind:     models.KindSystem,
		SenderID: userID,
		GroupID:  &groupID,
		Text:     notice,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit leave: %w", err)
	}
	return msg, nil
}

func (s *MembershipStore) GetMember(ctx context.Context, groupID, userID uuid.UUID) (*models.GroupMember, error) {
	query := `
		SELECT group_id, user_id, joined_at
		FROM group_members
		WHERE group_id = $1 AND user_id = $2`

	var m models.GroupMember
	err := s.pool.QueryRow(ctx, query, groupID, userID).Scan(&m.GroupID, &m.UserID, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &m, nil
}

func (s *MembershipStore) ListMembers(ctx context.Context, groupID uuid.UUID) ([]models.GroupMember, error) {
	query := `
		SELECT group_id, user_id, joined_at
		FROM group_members
		WHERE group_id = $1
		ORDER BY joined_at, user_id`

	rows, err := s.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return collectMembers(rows)
}

func (s *MembershipStore) ListGroupIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT group_id FROM group_members WHERE user_id = $1`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list group ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("collect group ids: %w", err)
	}
	return ids, nil
}
