package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service. Other
// packages obtain one through NewTxRepository to consume stock inside their
// own transactions.
type TxRepository interface {
	InsertItem(ctx context.Context, item StockItem) (StockItem, error)
	LockItems(ctx context.Context, ids []int64) ([]StockItem, error)
	UpdateItem(ctx context.Context, item StockItem) error
	InsertHistory(ctx context.Context, entry HistoryEntry) (HistoryEntry, error)
}

type txRepo struct {
	q db.DBTX
}

// NewTxRepository binds the inventory statements to q, normally an open pgx.Tx.
func NewTxRepository(q db.DBTX) TxRepository {
	return &txRepo{q: q}
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

const itemColumns = `id, name, units, quantity, unit_price, created_at, updated_at`

func scanItem(row pgx.Row) (StockItem, error) {
	var item StockItem
	err := row.Scan(&item.ID, &item.Name, &item.Units, &item.Quantity, &item.UnitPrice, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func collectItems(rows pgx.Rows) ([]StockItem, error) {
	defer rows.Close()
	var items []StockItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetItem loads a stock item without locking it.
func (r *Repository) GetItem(ctx context.Context, id int64) (StockItem, error) {
	item, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockItem{}, ErrItemNotFound
		}
		return StockItem{}, err
	}
	return item, nil
}

// GetItems loads the given items keyed by id. Missing ids are absent from the map.
func (r *Repository) GetItems(ctx context.Context, ids []int64) (map[int64]StockItem, error) {
	out := make(map[int64]StockItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	items, err := collectItems(rows)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

// ListItems returns all stock items ordered by name.
func (r *Repository) ListItems(ctx context.Context) ([]StockItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM stock_items ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

// ListBelow returns items whose quantity is under threshold.
func (r *Repository) ListBelow(ctx context.Context, threshold decimal.Decimal) ([]StockItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE quantity < $1 ORDER BY quantity, name`, threshold)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

// ListHistory returns ledger entries newest first.
func (r *Repository) ListHistory(ctx context.Context, filter HistoryFilter) ([]HistoryEntry, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.ItemID != 0 {
		add("h.item_id = $%d", filter.ItemID)
	}
	if filter.Kind != "" {
		add("h.change_kind = $%d", string(filter.Kind))
	}
	if !filter.From.IsZero() {
		add("h.created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("h.created_at < $%d", filter.To)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT h.id, h.item_id, s.name, h.units, h.change_kind, h.quantity, h.unit_price, h.reason, h.created_at
FROM stock_history h JOIN stock_items s ON s.id = h.item_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY h.created_at DESC, h.id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.ItemID, &e.ItemName, &e.Units, &kind, &e.Quantity, &e.UnitPrice, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = ChangeKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepo) InsertItem(ctx context.Context, item StockItem) (StockItem, error) {
	created, err := scanItem(r.q.QueryRow(ctx, `INSERT INTO stock_items (name, units, quantity, unit_price)
VALUES ($1, $2, $3, $4) RETURNING `+itemColumns, item.Name, item.Units, item.Quantity, item.UnitPrice))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return StockItem{}, ErrDuplicateItem
		}
		return StockItem{}, err
	}
	return created, nil
}

// LockItems locks rows in ascending id order so concurrent writers touching
// overlapping sets queue instead of deadlocking.
func (r *txRepo) LockItems(ctx context.Context, ids []int64) ([]StockItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.q.Query(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func (r *txRepo) UpdateItem(ctx context.Context, item StockItem) error {
	tag, err := r.q.Exec(ctx, `UPDATE stock_items SET units = $2, quantity = $3, unit_price = $4, updated_at = $5 WHERE id = $1`,
		item.ID, item.Units, item.Quantity, item.UnitPrice, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepo) InsertHistory(ctx context.Context, entry HistoryEntry) (HistoryEntry, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	err := r.q.QueryRow(ctx, `INSERT INTO stock_history (item_id, units, change_kind, quantity, unit_price, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		entry.ItemID, entry.Units, string(entry.Kind), entry.Quantity, entry.UnitPrice, entry.Reason, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return HistoryEntry{}, err
	}
	return entry, nil
}
