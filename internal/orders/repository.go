package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/sequence"
	"github.com/odyssey-erp/backoffice/internal/tables"
)

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TableStore occupies and frees tables inside an order transaction.
type TableStore interface {
	Get(ctx context.Context, id int64) (tables.Table, error)
	SetOccupied(ctx context.Context, id int64, occupied bool) (tables.Table, error)
}

// TxRepository exposes transactional operations used by service. Counter,
// Stock and Tables share the order's transaction.
type TxRepository interface {
	Counter() sequence.Counter
	Stock() inventory.TxRepository
	Tables() TableStore
	InsertOrder(ctx context.Context, order Order) (Order, error)
	InsertItem(ctx context.Context, item Item) (Item, error)
	UpdateTotal(ctx context.Context, id int64, total decimal.Decimal) error
	LockOrder(ctx context.Context, id int64) (Order, error)
	UpdateStatus(ctx context.Context, order Order) error
}

type txRepo struct {
	q       db.DBTX
	counter *sequence.TxCounter
	stock   inventory.TxRepository
	tables  *tables.TxRepository
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			q:       tx,
			counter: sequence.NewTxCounter(tx),
			stock:   inventory.NewTxRepository(tx),
			tables:  tables.NewTxRepository(tx),
		})
	})
}

const orderColumns = `id, order_number, customer, table_id, status, total_price, created_by, created_at, started_at, completed_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		status string
	)
	err := row.Scan(&o.ID, &o.Number, &o.Customer, &o.TableID, &status, &o.TotalPrice, &o.CreatedBy,
		&o.CreatedAt, &o.StartedAt, &o.CompletedAt)
	o.Status = Status(status)
	return o, err
}

// Get loads an order with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	items, err := r.items(ctx, []int64{id})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[id]
	return o, nil
}

// List returns orders newest first. Empty statuses match every status; a zero
// start disables the date window.
func (r *Repository) List(ctx context.Context, statuses []Status, start, end time.Time) ([]Order, error) {
	var (
		clauses []string
		args    []any
	)
	if len(statuses) > 0 {
		raw := make([]string, 0, len(statuses))
		for _, s := range statuses {
			raw = append(raw, string(s))
		}
		args = append(args, raw)
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if !start.IsZero() {
		args = append(args, start, end)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d AND created_at < $%d", len(args)-1, len(args)))
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var (
		out []Order
		ids []int64
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}
	items, err := r.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (r *Repository) items(ctx context.Context, orderIDs []int64) (map[int64][]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, menu_item_id, name, quantity, unit_price, total_price
FROM order_items WHERE order_id = ANY($1) ORDER BY id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]Item, len(orderIDs))
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.Quantity, &it.UnitPrice, &it.TotalPrice); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

func (r *txRepo) Counter() sequence.Counter { return r.counter }

func (r *txRepo) Stock() inventory.TxRepository { return r.stock }

func (r *txRepo) Tables() TableStore { return r.tables }

func (r *txRepo) InsertOrder(ctx context.Context, o Order) (Order, error) {
	return scanOrder(r.q.QueryRow(ctx, `INSERT INTO orders (order_number, customer, table_id, status, total_price, created_by)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+orderColumns,
		o.Number, o.Customer, o.TableID, string(o.Status), o.TotalPrice, o.CreatedBy))
}

func (r *txRepo) InsertItem(ctx context.Context, it Item) (Item, error) {
	err := r.q.QueryRow(ctx, `INSERT INTO order_items (order_id, menu_item_id, name, quantity, unit_price, total_price)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		it.OrderID, it.MenuItemID, it.Name, it.Quantity, it.UnitPrice, it.TotalPrice).Scan(&it.ID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Item{}, fmt.Errorf("%w: id %d", ErrMenuItemNotFound, it.MenuItemID)
		}
		return Item{}, err
	}
	return it, nil
}

func (r *txRepo) UpdateTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	tag, err := r.q.Exec(ctx, `UPDATE orders SET total_price = $2 WHERE id = $1`, id, total)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *txRepo) LockOrder(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	return o, nil
}

func (r *txRepo) UpdateStatus(ctx context.Context, o Order) error {
	tag, err := r.q.Exec(ctx, `UPDATE orders SET status = $2, started_at = $3, completed_at = $4 WHERE id = $1`,
		o.ID, string(o.Status), o.StartedAt, o.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}
