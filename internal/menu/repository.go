package menu

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// Repository persists menu items in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations. Recipes obtain one through
// NewTxRepository to sync their menu item inside the recipe transaction.
type TxRepository interface {
	InsertItem(ctx context.Context, item MenuItem) (MenuItem, error)
	UpsertByRecipe(ctx context.Context, item MenuItem) (MenuItem, error)
	LockItem(ctx context.Context, id int64) (MenuItem, error)
	UpdateItem(ctx context.Context, item MenuItem) error
	DeleteItem(ctx context.Context, id int64) error
	ReplaceIngredients(ctx context.Context, menuItemID int64, source Source, lines []IngredientLine) error
	Ingredients(ctx context.Context, menuItemID int64) ([]Ingredient, error)
}

type txRepo struct {
	q db.DBTX
}

// NewTxRepository binds the menu statements to q.
func NewTxRepository(q db.DBTX) TxRepository {
	return &txRepo{q: q}
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

const itemColumns = `id, name, category, price, recipe_id, created_at, updated_at`

func scanItem(row pgx.Row) (MenuItem, error) {
	var item MenuItem
	err := row.Scan(&item.ID, &item.Name, &item.Category, &item.Price, &item.RecipeID, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

// Get loads a menu item with all its ingredient rows.
func (r *Repository) Get(ctx context.Context, id int64) (MenuItem, error) {
	item, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM menu_items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MenuItem{}, ErrItemNotFound
		}
		return MenuItem{}, err
	}
	item.Ingredients, err = (&txRepo{q: r.pool}).Ingredients(ctx, id)
	if err != nil {
		return MenuItem{}, err
	}
	return item, nil
}

// List returns menu items ordered by category and name.
func (r *Repository) List(ctx context.Context) ([]MenuItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM menu_items ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MenuItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Resolve loads the menu items named by id or exact name together with their
// per-unit needs. Items that do not exist are absent from the result.
func (r *Repository) Resolve(ctx context.Context, ids []int64, names []string) ([]Sellable, error) {
	if ids == nil {
		ids = []int64{}
	}
	if names == nil {
		names = []string{}
	}
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM menu_items WHERE id = ANY($1) OR name = ANY($2) ORDER BY id`, ids, names)
	if err != nil {
		return nil, err
	}
	var (
		items []Sellable
		found []int64
	)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, Sellable{MenuItem: item})
		found = append(found, item.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	recipeRows, err := r.pool.Query(ctx, `SELECT mi.id, ri.stock_item_id, ri.quantity
FROM menu_items mi JOIN recipe_ingredients ri ON ri.recipe_id = mi.recipe_id
WHERE mi.id = ANY($1)`, found)
	if err != nil {
		return nil, err
	}
	recipeLines := make(map[int64][]IngredientLine, len(items))
	for recipeRows.Next() {
		var (
			menuItemID int64
			line       IngredientLine
		)
		if err := recipeRows.Scan(&menuItemID, &line.StockItemID, &line.Quantity); err != nil {
			recipeRows.Close()
			return nil, err
		}
		recipeLines[menuItemID] = append(recipeLines[menuItemID], line)
	}
	recipeRows.Close()
	if err := recipeRows.Err(); err != nil {
		return nil, err
	}

	ingRows, err := r.pool.Query(ctx, `SELECT menu_item_id, stock_item_id, quantity_needed, source
FROM menu_item_ingredients WHERE menu_item_id = ANY($1)`, found)
	if err != nil {
		return nil, err
	}
	defer ingRows.Close()
	stored := make(map[int64][]Ingredient, len(items))
	for ingRows.Next() {
		var (
			menuItemID int64
			ing        Ingredient
			source     string
		)
		if err := ingRows.Scan(&menuItemID, &ing.StockItemID, &ing.QuantityNeeded, &source); err != nil {
			return nil, err
		}
		ing.Source = Source(source)
		stored[menuItemID] = append(stored[menuItemID], ing)
	}
	if err := ingRows.Err(); err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Needs = CombineNeeds(recipeLines[items[i].ID], stored[items[i].ID])
	}
	return items, nil
}

func (r *txRepo) InsertItem(ctx context.Context, item MenuItem) (MenuItem, error) {
	created, err := scanItem(r.q.QueryRow(ctx, `INSERT INTO menu_items (name, category, price, recipe_id)
VALUES ($1, $2, $3, $4) RETURNING `+itemColumns, item.Name, item.Category, item.Price, item.RecipeID))
	if err != nil {
		return MenuItem{}, err
	}
	return created, nil
}

func (r *txRepo) UpsertByRecipe(ctx context.Context, item MenuItem) (MenuItem, error) {
	return scanItem(r.q.QueryRow(ctx, `INSERT INTO menu_items (name, category, price, recipe_id)
VALUES ($1, $2, $3, $4)
ON CONFLICT (recipe_id) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category, price = EXCLUDED.price, updated_at = NOW()
RETURNING `+itemColumns, item.Name, item.Category, item.Price, item.RecipeID))
}

func (r *txRepo) LockItem(ctx context.Context, id int64) (MenuItem, error) {
	item, err := scanItem(r.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM menu_items WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MenuItem{}, ErrItemNotFound
		}
		return MenuItem{}, err
	}
	return item, nil
}

func (r *txRepo) UpdateItem(ctx context.Context, item MenuItem) error {
	tag, err := r.q.Exec(ctx, `UPDATE menu_items SET name = $2, category = $3, price = $4, updated_at = $5 WHERE id = $1`,
		item.ID, item.Name, item.Category, item.Price, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepo) DeleteItem(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM menu_items WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrItemOrdered
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepo) ReplaceIngredients(ctx context.Context, menuItemID int64, source Source, lines []IngredientLine) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM menu_item_ingredients WHERE menu_item_id = $1 AND source = $2`, menuItemID, string(source)); err != nil {
		return err
	}
	for _, line := range lines {
		_, err := r.q.Exec(ctx, `INSERT INTO menu_item_ingredients (menu_item_id, stock_item_id, quantity_needed, source)
VALUES ($1, $2, $3, $4)`, menuItemID, line.StockItemID, line.Quantity, string(source))
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return ErrStockItemNotFound
			}
			return err
		}
	}
	return nil
}

func (r *txRepo) Ingredients(ctx context.Context, menuItemID int64) ([]Ingredient, error) {
	rows, err := r.q.Query(ctx, `SELECT mii.id, mii.stock_item_id, s.name, s.units, mii.quantity_needed, mii.source
FROM menu_item_ingredients mii JOIN stock_items s ON s.id = mii.stock_item_id
WHERE mii.menu_item_id = $1 ORDER BY mii.source, mii.stock_item_id`, menuItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Ingredient
	for rows.Next() {
		var (
			ing    Ingredient
			source string
		)
		if err := rows.Scan(&ing.ID, &ing.StockItemID, &ing.StockItemName, &ing.Units, &ing.QuantityNeeded, &source); err != nil {
			return nil, err
		}
		ing.Source = Source(source)
		out = append(out, ing)
	}
	return out, rows.Err()
}
