package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists sales. Every method is scoped to an owner.
type Repository interface {
	List(ctx context.Context, ownerID string, status Status, limit, offset int) ([]Sale, int, error)
	Get(ctx context.Context, ownerID, id string) (Sale, error)
	Create(ctx context.Context, ownerID string, in Input) (Sale, error)
	Complete(ctx context.Context, ownerID, id string) (Sale, error)
	Delete(ctx context.Context, ownerID, id string) error
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db dbtx
}

// NewRepository returns the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const saleSelect = `
	SELECT s.id::text, s.owner_id::text, s.client_id::text, c.name, s.sale_date,
	       COALESCE(s.instagram, ''), COALESCE(s.notes, ''), s.is_completed, s.completed_at, s.created_at
	FROM sales s
	JOIN clients c ON c.id = s.client_id`

func statusClause(status Status) string {
	switch status {
	case StatusOpen:
		return " AND NOT s.is_completed"
	case StatusCompleted:
		return " AND s.is_completed"
	}
	return ""
}

func (r *repository) List(ctx context.Context, ownerID string, status Status, limit, offset int) ([]Sale, int, error) {
	where := " WHERE s.owner_id = $1" + statusClause(status)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM sales s`+where, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sales: %w", err)
	}

	rows, err := r.db.Query(ctx, saleSelect+where+`
		ORDER BY s.sale_date DESC, s.created_at DESC
		LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	var out []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, ownerID, id string) (Sale, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Sale{}, ErrNotFound
	}
	return oneSale(r.db.QueryRow(ctx, saleSelect+` WHERE s.owner_id = $1 AND s.id = $2`, ownerID, id))
}

func (r *repository) Create(ctx context.Context, ownerID string, in Input) (Sale, error) {
	id := uuid.NewString()
	tag, err := r.db.Exec(ctx, `
		INSERT INTO sales (id, owner_id, client_id, sale_date, instagram, notes)
		SELECT $1, $2, c.id, $4, NULLIF($5, ''), NULLIF($6, '')
		FROM clients c
		WHERE c.id = $3 AND c.owner_id = $2`,
		id, ownerID, in.ClientID, in.SaleDate, in.Instagram, in.Notes)
	if err != nil {
		return Sale{}, fmt.Errorf("create sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Sale{}, ErrUnknownClient
	}
	return r.Get(ctx, ownerID, id)
}

func (r *repository) Complete(ctx context.Context, ownerID, id string) (Sale, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Sale{}, ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE sales SET is_completed = TRUE, completed_at = NOW()
		WHERE owner_id = $1 AND id = $2 AND NOT is_completed`, ownerID, id)
	if err != nil {
		return Sale{}, fmt.Errorf("complete sale: %w", err)
	}
	sale, err := r.Get(ctx, ownerID, id)
	if err != nil {
		return Sale{}, err
	}
	if tag.RowsAffected() == 0 {
		return sale, ErrAlreadyCompleted
	}
	return sale, nil
}

func (r *repository) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM sales WHERE owner_id = $1 AND id = $2`, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func oneSale(row pgx.Row) (Sale, error) {
	s, err := scanSale(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrNotFound
		}
		return Sale{}, err
	}
	return s, nil
}

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.OwnerID, &s.ClientID, &s.ClientName, &s.SaleDate,
		&s.Instagram, &s.Notes, &s.IsCompleted, &s.CompletedAt, &s.CreatedAt)
	return s, err
}
