package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/pulsechat/internal/models"
	"github.com/lalith-99/pulsechat/internal/repository"
)

const userColumns = `id, email, full_name, bio, profile_pic, password_hash, created_at`

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.FullName,
		&u.Bio,
		&u.ProfilePic,
		&u.PasswordHash,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user row. Postgres generates the UUID and timestamp.
func (s *UserStore) Create(ctx context.Context, email, fullName, bio, passwordHash string) (*models.User, error) {
	query := `
		INSERT INTO users (email, full_name, bio, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns

	u, err := scanUser(s.pool.QueryRow(ctx, query, email, fullName, bio, passwordHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, repository.ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(s.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	u, err := scanUser(s.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *UserStore) ListExcept(ctx context.Context, userID uuid.UUID) ([]models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id <> $1
		ORDER BY full_name, id`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// UpdateProfile uses COALESCE so a NULL parameter keeps the stored value.
func (s *UserStore) UpdateProfile(ctx context.Context, userID uuid.UUID, upd models.ProfileUpdate) (*models.User, error) {
	query := `
		UPDATE users SET
			full_name   = COALESCE($2, full_name),
			bio         = COALESCE($3, bio),
			profile_pic = COALESCE($4, profile_pic)
		WHERE id = $1
		RETURNING ` + userColumns

	u, err := scanUser(s.pool.QueryRow(ctx, query, userID, upd.FullName, upd.Bio, upd.ProfilePic))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}
