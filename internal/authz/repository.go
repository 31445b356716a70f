package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRecordExists indicates the identity already has a record.
var ErrRecordExists = errors.New("authz: authorization record already exists")

// Writer is the admin-only write interface. Each call updates one field and
// returns the row as persisted.
type Writer interface {
	SetAdmin(ctx context.Context, identityID string, isAdmin bool) (Record, error)
	SetCapability(ctx context.Context, identityID string, c Capability, granted bool) (Record, error)
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// PGRepository persists authorization records in PostgreSQL.
type PGRepository struct {
	db dbtx
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{db: pool}
}

// WithTx returns a repository bound to tx.
func (r *PGRepository) WithTx(tx pgx.Tx) *PGRepository {
	return &PGRepository{db: tx}
}

const recordColumns = `identity_id, is_admin, capabilities, created_at`

// FindByIdentity fetches the record of identityID. Zero rows is not an error.
func (r *PGRepository) FindByIdentity(ctx context.Context, identityID string) (Record, bool, error) {
	row := r.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM authorization_records WHERE identity_id = $1`, identityID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("authz: find record: %w", err)
	}
	return rec, true, nil
}

// SetAdmin updates the admin flag of identityID.
func (r *PGRepository) SetAdmin(ctx context.Context, identityID string, isAdmin bool) (Record, error) {
	row := r.db.QueryRow(ctx, `UPDATE authorization_records SET is_admin = $2 WHERE identity_id = $1 RETURNING `+recordColumns, identityID, isAdmin)
	return updatedRecord(row)
}

// SetCapability updates a single capability of identityID.
func (r *PGRepository) SetCapability(ctx context.Context, identityID string, c Capability, granted bool) (Record, error) {
	if !c.Valid() {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownCapability, c)
	}
	row := r.db.QueryRow(ctx, `
		UPDATE authorization_records
		SET capabilities = jsonb_set(capabilities, ARRAY[$2::text], to_jsonb($3::boolean), true)
		WHERE identity_id = $1
		RETURNING `+recordColumns, identityID, string(c), granted)
	return updatedRecord(row)
}

// Create inserts a new record. It is used by provisioning only.
func (r *PGRepository) Create(ctx context.Context, rec Record) (Record, error) {
	caps, err := json.Marshal(rec.Capabilities)
	if err != nil {
		return Record{}, fmt.Errorf("authz: encode capabilities: %w", err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO authorization_records (identity_id, is_admin, capabilities, created_at)
		VALUES ($1, $2, $3::jsonb, $4)
		RETURNING `+recordColumns, rec.IdentityID, rec.IsAdmin, string(caps), createdAt)
	out, err := scanRecord(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrRecordExists
		}
		return Record{}, fmt.Errorf("authz: create record: %w", err)
	}
	return out, nil
}

func updatedRecord(row pgx.Row) (Record, error) {
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNoRecord
		}
		return Record{}, fmt.Errorf("authz: update record: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec  Record
		caps []byte
	)
	if err := row.Scan(&rec.IdentityID, &rec.IsAdmin, &caps, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	if len(caps) > 0 {
		if err := json.Unmarshal(caps, &rec.Capabilities); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

var (
	_ Reader = (*PGRepository)(nil)
	_ Writer = (*PGRepository)(nil)
)
