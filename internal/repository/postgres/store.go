package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/pulsechat/internal/repository"
)

// Compile-time proof that the stores satisfy the repository contracts.
var (
	_ repository.UserRepository       = (*UserStore)(nil)
	_ repository.GroupRepository      = (*GroupStore)(nil)
	_ repository.MembershipRepository = (*MembershipStore)(nil)
	_ repository.MessageRepository    = (*MessageStore)(nil)
	_ repository.WatermarkRepository  = (*WatermarkStore)(nil)
)

// NewStore wires every Postgres store onto one shared pool. The pool is
// goroutine-safe.
func NewStore(pool *pgxpool.Pool) *repository.Store {
	return &repository.Store{
		Users:       NewUserStore(pool),
		Groups:      NewGroupStore(pool),
		Memberships: NewMembershipStore(pool),
		Messages:    NewMessageStore(pool),
		Watermarks:  NewWatermarkStore(pool),
	}
}
