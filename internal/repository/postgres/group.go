package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/pulsechat/internal/models"
)

const groupColumns = `id, name, bio, profile_pic, created_by, created_at`

type GroupStore struct {
	pool *pgxpool.Pool
}

func NewGroupStore(pool *pgxpool.Pool) *GroupStore {
	return &GroupStore{pool: pool}
}

func scanGroup(row pgx.Row) (*models.Group, error) {
	var g models.Group
	err := row.Scan(
		&g.ID,
		&g.Name,
		&g.Bio,
		&g.ProfilePic,
		&g.CreatedBy,
		&g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// Create inserts the group and its initial members in one transaction.
// now() is frozen for the whole transaction, so every member gets the same
// joined_at, equal to the group's created_at.
func (s *GroupStore) Create(ctx context.Context, name string, createdBy uuid.UUID, memberIDs []uuid.UUID) (*models.Group, []models.GroupMember, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin create group: %w", err)
	}
	defer tx.Rollback(ctx)

	g, err := scanGroup(tx.QueryRow(ctx, `
		INSERT INTO groups (name, created_by)
		VALUES ($1, $2)
		RETURNING `+groupColumns, name, createdBy))
	if err != nil {
		return nil, nil, fmt.Errorf("insert group: %w", err)
	}

	rows, err := tx.Query(ctx, `
		INSERT INTO group_members (group_id, user_id)
		SELECT $1, member FROM unnest($2::uuid[]) AS member
		ON CONFLICT (group_id, user_id) DO NOTHING
		RETURNING group_id, user_id, joined_at`, g.ID, memberIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("insert initial members: %w", err)
	}
	members, err := collectMembers(rows)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit create group: %w", err)
	}
	return g, members, nil
}

func (s *GroupStore) GetByID(ctx context.Context, groupID uuid.UUID) (*models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`

	g, err := scanGroup(s.pool.QueryRow(ctx, query, groupID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (s *GroupStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Group, error) {
	query := `
		SELECT g.id, g.name, g.bio, g.profile_pic, g.created_by, g.created_at
		FROM groups g
		JOIN group_members gm ON gm.group_id = g.id
		WHERE gm.user_id = $1
		ORDER BY g.created_at DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	groups := make([]models.Group, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}

	return groups, nil
}

func (s *GroupStore) Update(ctx context.Context, groupID uuid.UUID, upd models.GroupUpdate) (*models.Group, error) {
	query := `
		UPDATE groups SET
			name        = COALESCE($2, name),
			bio         = COALESCE($3, bio),
			profile_pic = COALESCE($4, profile_pic)
		WHERE id = $1
		RETURNING ` + groupColumns

	g, err := scanGroup(s.pool.QueryRow(ctx, query, groupID, upd.Name, upd.Bio, upd.ProfilePic))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update group: %w", err)
	}
	return g, nil
}
