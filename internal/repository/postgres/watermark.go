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

type WatermarkStore struct {
	pool *pgxpool.Pool
}

func NewWatermarkStore(pool *pgxpool.Pool) *WatermarkStore {
	return &WatermarkStore{pool: pool}
}

// Advance upserts last_seen_at = now(). GREATEST keeps the watermark
// monotonic even if two instances with skewed transactions race.
func (s *WatermarkStore) Advance(ctx context.Context, userID uuid.UUID, scope models.Scope) (*models.Watermark, error) {
	query := `
		INSERT INTO watermarks (user_id, scope_kind, scope_id, last_seen_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, scope_kind, scope_id)
		DO UPDATE SET last_seen_at = GREATEST(watermarks.last_seen_at, EXCLUDED.last_seen_at)
		RETURNING last_seen_at`

	w := models.Watermark{UserID: userID, Scope: scope}
	if err := s.pool.QueryRow(ctx, query, userID, string(scope.Kind), scope.ID).Scan(&w.LastSeenAt); err != nil {
		return nil, fmt.Errorf("advance watermark: %w", err)
	}
	return &w, nil
}

func (s *WatermarkStore) Get(ctx context.Context, userID uuid.UUID, scope models.Scope) (*models.Watermark, error) {
	query := `
		SELECT last_seen_at
		FROM watermarks
		WHERE user_id = $1 AND scope_kind = $2 AND scope_id = $3`

	w := models.Watermark{UserID: userID, Scope: scope}
	err := s.pool.QueryRow(ctx, query, userID, string(scope.Kind), scope.ID).Scan(&w.LastSeenAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get watermark: %w", err)
	}
	return &w, nil
}
