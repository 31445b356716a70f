package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists clients. Every method is scoped to an owner.
type Repository interface {
	List(ctx context.Context, ownerID string, limit, offset int) ([]Client, int, error)
	Get(ctx context.Context, ownerID, id string) (Client, error)
	Create(ctx context.Context, ownerID string, in Input) (Client, error)
	Update(ctx context.Context, ownerID, id string, in Input) (Client, error)
	Delete(ctx context.Context, ownerID, id string) error
	Options(ctx context.Context, ownerID string) ([]Option, error)
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

const clientColumns = `id::text, owner_id::text, name, COALESCE(email, ''), COALESCE(phone, ''),
	COALESCE(instagram, ''), COALESCE(notes, ''), created_at, updated_at`

func (r *repository) List(ctx context.Context, ownerID string, limit, offset int) ([]Client, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM clients WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count clients: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE owner_id = $1
		ORDER BY lower(name), created_at
		LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, ownerID, id string) (Client, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Client{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE owner_id = $1 AND id = $2`, ownerID, id)
	return oneClient(row)
}

func (r *repository) Create(ctx context.Context, ownerID string, in Input) (Client, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO clients (id, owner_id, name, email, phone, instagram, notes)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''))
		RETURNING `+clientColumns,
		uuid.NewString(), ownerID, in.Name, in.Email, in.Phone, in.Instagram, in.Notes)
	c, err := scanClient(row)
	if err != nil {
		return Client{}, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}

func (r *repository) Update(ctx context.Context, ownerID, id string, in Input) (Client, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Client{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `
		UPDATE clients
		SET name = $3, email = NULLIF($4, ''), phone = NULLIF($5, ''),
		    instagram = NULLIF($6, ''), notes = NULLIF($7, ''), updated_at = NOW()
		WHERE owner_id = $1 AND id = $2
		RETURNING `+clientColumns,
		ownerID, id, in.Name, in.Email, in.Phone, in.Instagram, in.Notes)
	return oneClient(row)
}

func (r *repository) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM clients WHERE owner_id = $1 AND id = $2`, ownerID, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrInUse
		}
		return fmt.Errorf("delete client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Options(ctx context.Context, ownerID string) ([]Option, error) {
	rows, err := r.db.Query(ctx, `SELECT id::text, name FROM clients WHERE owner_id = $1 ORDER BY lower(name)`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("client options: %w", err)
	}
	defer rows.Close()
	var out []Option
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func oneClient(row pgx.Row) (Client, error) {
	c, err := scanClient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, ErrNotFound
		}
		return Client{}, err
	}
	return c, nil
}

func scanClient(row pgx.Row) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Email, &c.Phone, &c.Instagram, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
