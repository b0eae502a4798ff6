package tables

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// Repository persists dining tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a table.
func (r *Repository) Create(ctx context.Context, name string) (Table, error) {
	var t Table
	err := r.pool.QueryRow(ctx, `INSERT INTO dining_tables (name) VALUES ($1) RETURNING id, name, is_occupied`, name).
		Scan(&t.ID, &t.Name, &t.IsOccupied)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Table{}, ErrDuplicateTable
		}
		return Table{}, err
	}
	return t, nil
}

// List returns tables ordered by name.
func (r *Repository) List(ctx context.Context) ([]Table, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, is_occupied FROM dining_tables ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Table
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.ID, &t.Name, &t.IsOccupied); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Get loads a table.
func (r *Repository) Get(ctx context.Context, id int64) (Table, error) {
	return NewTxRepository(r.pool).Get(ctx, id)
}

// SetOccupied flips the occupancy flag.
func (r *Repository) SetOccupied(ctx context.Context, id int64, occupied bool) (Table, error) {
	return NewTxRepository(r.pool).SetOccupied(ctx, id, occupied)
}

// TxRepository runs table statements on a caller-provided connection or
// transaction, so order workflows can occupy and free tables atomically with
// their own writes.
type TxRepository struct {
	q db.DBTX
}

// NewTxRepository binds statements to q.
func NewTxRepository(q db.DBTX) *TxRepository {
	return &TxRepository{q: q}
}

// Get loads a table.
func (r *TxRepository) Get(ctx context.Context, id int64) (Table, error) {
	var t Table
	err := r.q.QueryRow(ctx, `SELECT id, name, is_occupied FROM dining_tables WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.IsOccupied)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Table{}, ErrTableNotFound
		}
		return Table{}, err
	}
	return t, nil
}

// SetOccupied sets the flag unconditionally.
func (r *TxRepository) SetOccupied(ctx context.Context, id int64, occupied bool) (Table, error) {
	var t Table
	err := r.q.QueryRow(ctx, `UPDATE dining_tables SET is_occupied = $2 WHERE id = $1 RETURNING id, name, is_occupied`, id, occupied).
		Scan(&t.ID, &t.Name, &t.IsOccupied)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Table{}, ErrTableNotFound
		}
		return Table{}, err
	}
	return t, nil
}
