package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/inventory"
)

// Repository runs the report queries against PostgreSQL. Every window is
// half-open: [start, end).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Sales returns the total and count of Ready orders created in the window.
func (r *Repository) Sales(ctx context.Context, start, end time.Time) (decimal.Decimal, int64, error) {
	var (
		total decimal.Decimal
		count int64
	)
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(total_price), 0), COUNT(*) FROM orders
WHERE status = 'Ready' AND created_at >= $1 AND created_at < $2`, start, end).Scan(&total, &count)
	return total, count, err
}

// Expense values the Used ledger entries of the window.
func (r *Repository) Expense(ctx context.Context, start, end time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity * unit_price), 0) FROM stock_history
WHERE change_kind = $3 AND created_at >= $1 AND created_at < $2`, start, end, string(inventory.ChangeUsed)).Scan(&total)
	return total, err
}

// PopularItems ranks menu items on Ready orders by quantity sold.
func (r *Repository) PopularItems(ctx context.Context, start, end time.Time, limit int) ([]PopularItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT oi.menu_item_id, MIN(oi.name), SUM(oi.quantity)::BIGINT AS qty
FROM order_items oi JOIN orders o ON o.id = oi.order_id
WHERE o.status = 'Ready' AND o.created_at >= $1 AND o.created_at < $2
GROUP BY oi.menu_item_id ORDER BY qty DESC, oi.menu_item_id LIMIT $3`, start, end, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (PopularItem, error) {
		var p PopularItem
		err := row.Scan(&p.MenuItemID, &p.Name, &p.Quantity)
		return p, err
	})
}

// IngredientUsage ranks stock items by quantity consumed.
func (r *Repository) IngredientUsage(ctx context.Context, start, end time.Time, limit int) ([]IngredientUsage, error) {
	rows, err := r.pool.Query(ctx, `SELECT h.item_id, s.name, s.units, SUM(h.quantity) AS qty
FROM stock_history h JOIN stock_items s ON s.id = h.item_id
WHERE h.change_kind = $3 AND h.created_at >= $1 AND h.created_at < $2
GROUP BY h.item_id, s.name, s.units ORDER BY qty DESC, h.item_id LIMIT $4`, start, end, string(inventory.ChangeUsed), limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (IngredientUsage, error) {
		var u IngredientUsage
		err := row.Scan(&u.ItemID, &u.Name, &u.Units, &u.Quantity)
		return u, err
	})
}

// DailySales sums Ready order totals per UTC day.
func (r *Repository) DailySales(ctx context.Context, start, end time.Time) ([]DayAmount, error) {
	return r.daily(ctx, `SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day, SUM(total_price)
FROM orders WHERE status = 'Ready' AND created_at >= $1 AND created_at < $2
GROUP BY day ORDER BY day`, start, end)
}

// DailyExpenses values Used ledger entries per UTC day.
func (r *Repository) DailyExpenses(ctx context.Context, start, end time.Time) ([]DayAmount, error) {
	return r.daily(ctx, `SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day, SUM(quantity * unit_price)
FROM stock_history WHERE change_kind = '`+string(inventory.ChangeUsed)+`' AND created_at >= $1 AND created_at < $2
GROUP BY day ORDER BY day`, start, end)
}

func (r *Repository) daily(ctx context.Context, query string, start, end time.Time) ([]DayAmount, error) {
	rows, err := r.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DayAmount, error) {
		var d DayAmount
		if err := row.Scan(&d.Day, &d.Amount); err != nil {
			return DayAmount{}, err
		}
		d.Day = time.Date(d.Day.Year(), d.Day.Month(), d.Day.Day(), 0, 0, 0, 0, time.UTC)
		return d, nil
	})
}
