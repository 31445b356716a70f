package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository lists the members the admin view manages.
type Repository interface {
	ListMembers(ctx context.Context) ([]Member, error)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGRepository reads members from PostgreSQL.
type PGRepository struct {
	db querier
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{db: pool}
}

// ListMembers returns every authorization record ordered by creation time.
func (r *PGRepository) ListMembers(ctx context.Context) ([]Member, error) {
	rows, err := r.db.Query(ctx, `
		SELECT ar.identity_id, u.email, u.name, ar.is_admin, ar.capabilities, ar.created_at
		FROM authorization_records ar
		JOIN users u ON u.id = ar.identity_id
		ORDER BY ar.created_at, u.email`)
	if err != nil {
		return nil, fmt.Errorf("admin: list members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var (
			m    Member
			caps []byte
		)
		if err := rows.Scan(&m.IdentityID, &m.Email, &m.Name, &m.IsAdmin, &caps, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(caps) > 0 {
			if err := json.Unmarshal(caps, &m.Capabilities); err != nil {
				return nil, fmt.Errorf("admin: decode capabilities: %w", err)
			}
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
